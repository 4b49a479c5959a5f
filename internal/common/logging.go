// Package common provides shared utilities for frontier
package common

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/phuslu/log"
)

// Logger wraps log.Logger to provide a consistent interface
type Logger struct {
	log.Logger
}

// parseLevel maps a config level name to a log.Level. "disabled" silences
// everything below panic.
func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "disabled", "off", "none":
		return log.PanicLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithOutput creates a JSON logger writing to a specific output
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	return &Logger{Logger: log.Logger{
		Level:      parseLevel(level),
		TimeFormat: time.RFC3339,
		Writer:     &log.IOWriter{Writer: w},
	}}
}

// NewLoggerFromConfig builds a logger from the logging section of the config.
// Outputs may include "console" (stderr) and "file" (rotating file at FilePath).
func NewLoggerFromConfig(cfg LoggingConfig) *Logger {
	var writers log.MultiEntryWriter

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"console"}
	}

	for _, out := range outputs {
		switch strings.ToLower(out) {
		case "console":
			if strings.EqualFold(cfg.Format, "json") {
				writers = append(writers, &log.IOWriter{Writer: os.Stderr})
			} else {
				writers = append(writers, &log.ConsoleWriter{Writer: os.Stderr, ColorOutput: true})
			}
		case "file":
			if cfg.FilePath == "" {
				continue
			}
			writers = append(writers, &log.FileWriter{
				Filename:     cfg.FilePath,
				MaxSize:      int64(cfg.MaxSizeMB) * 1024 * 1024,
				MaxBackups:   cfg.MaxBackups,
				EnsureFolder: true,
				LocalTime:    true,
			})
		}
	}

	var w log.Writer = &writers
	if len(writers) == 0 {
		w = &log.IOWriter{Writer: io.Discard}
	}

	return &Logger{Logger: log.Logger{
		Level:      parseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Writer:     w,
	}}
}

// NewSilentLogger creates a logger that discards all output
func NewSilentLogger() *Logger {
	return &Logger{Logger: log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}}
}

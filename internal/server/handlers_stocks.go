package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/frontier/internal/optimizer"
)

const maxTickerLength = 20

// validateTicker normalises a path ticker and rejects anything outside the
// symbol alphabet providers use (letters, digits, . - _ ^ =).
// Returns the normalised ticker or an error message.
func validateTicker(ticker string) (string, string) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", "ticker is required"
	}
	if len(ticker) > maxTickerLength {
		return "", fmt.Sprintf("ticker exceeds %d characters", maxTickerLength)
	}
	if strings.Contains(ticker, "..") {
		return "", "invalid ticker format"
	}
	for _, c := range ticker {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '-', c == '_', c == '^', c == '=':
		default:
			return "", "invalid ticker format"
		}
	}
	return ticker, ""
}

// parseStartDate accepts YYYY-MM-DD or RFC 3339. Empty means now.
func parseStartDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// handleStockHistory handles GET /api/stocks/{ticker}?start=YYYY-MM-DD.
func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request, rawTicker string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ticker, errMsg := validateTicker(rawTicker)
	if errMsg != "" {
		WriteErrorWithCode(w, http.StatusBadRequest, errMsg, "invalid_input")
		return
	}

	start, err := parseStartDate(r.URL.Query().Get("start"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, "start must be YYYY-MM-DD", "invalid_input")
		return
	}

	history, err := s.app.SimulationService.GetStockHistory(r.Context(), ticker, start)
	if err != nil {
		if errors.Is(err, optimizer.ErrInvalidInput) {
			writeServiceError(w, err)
			return
		}
		s.logger.Error().Err(err).Str("ticker", ticker).Msg("Stock history fetch failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch stock data")
		return
	}

	WriteJSON(w, http.StatusOK, history)
}

// handleStockChart handles GET /api/stocks/{ticker}/chart?period=1y.
func (s *Server) handleStockChart(w http.ResponseWriter, r *http.Request, rawTicker string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ticker, errMsg := validateTicker(rawTicker)
	if errMsg != "" {
		WriteErrorWithCode(w, http.StatusBadRequest, errMsg, "invalid_input")
		return
	}

	png, err := s.app.SimulationService.GetStockChart(r.Context(), ticker, r.URL.Query().Get("period"))
	if err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Stock chart failed")
		writeServiceError(w, err)
		return
	}

	WritePNG(w, png)
}

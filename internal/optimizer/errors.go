package optimizer

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidInput is the parent of every input validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyUniverse is returned when no assets are supplied.
	ErrEmptyUniverse = fmt.Errorf("%w: empty asset universe", ErrInvalidInput)

	// ErrInvalidSampleCount is returned when the sample count is not positive.
	ErrInvalidSampleCount = fmt.Errorf("%w: sample count must be positive", ErrInvalidInput)

	// ErrInsufficientHistory is returned when fewer than two aligned daily
	// returns remain after truncating to the shortest series.
	ErrInsufficientHistory = errors.New("insufficient history")
)

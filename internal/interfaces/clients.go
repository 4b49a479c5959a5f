// Package interfaces defines service contracts for frontier
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/frontier/internal/models"
)

// ErrNoData is returned by a PriceClient when the provider has no bars for a
// ticker in the requested range.
var ErrNoData = errors.New("no price data")

// PriceClient provides daily closing prices
type PriceClient interface {
	// Name identifies the provider in logs and responses
	Name() string

	// GetHistory returns closes in [from, to], sorted ascending by date.
	// Bars without a close are dropped.
	GetHistory(ctx context.Context, ticker string, from, to time.Time) (*models.PriceHistory, error)
}

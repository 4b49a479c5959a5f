// Package models defines data structures for frontier
package models

import (
	"time"
)

// PriceBar is a single daily close
type PriceBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceHistory holds chronological (oldest first) closes for one ticker
type PriceHistory struct {
	Ticker string     `json:"ticker"`
	Prices []PriceBar `json:"prices"`
}

// Closes returns the closing prices in date order
func (h *PriceHistory) Closes() []float64 {
	out := make([]float64, len(h.Prices))
	for i, bar := range h.Prices {
		out[i] = bar.Close
	}
	return out
}

// Len returns the number of bars
func (h *PriceHistory) Len() int {
	return len(h.Prices)
}

// LastDate returns the date of the most recent bar, or the zero time
func (h *PriceHistory) LastDate() time.Time {
	if len(h.Prices) == 0 {
		return time.Time{}
	}
	return h.Prices[len(h.Prices)-1].Date
}

// Package common provides shared utilities for frontier
package common

import "time"

// FreshnessPriceHistory is how long a fetched daily price history is reused.
// Daily closes only change once per session.
const FreshnessPriceHistory = 1 * time.Hour

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	return IsFreshAt(updated, time.Now(), ttl)
}

// IsFreshAt is IsFresh against an explicit clock
func IsFreshAt(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}

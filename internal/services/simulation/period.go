package simulation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/frontier/internal/optimizer"
)

// ErrInvalidPeriod is returned for period strings that cannot be resolved
var ErrInvalidPeriod = fmt.Errorf("%w: invalid period", optimizer.ErrInvalidInput)

// maxPeriodYears bounds "max" and oversized explicit periods
const maxPeriodYears = 30

// PeriodRange resolves a lookback period such as "1y", "6mo", "2w", "30d",
// "ytd" or "max" into a [from, to] range ending at now.
func PeriodRange(period string, now time.Time) (from, to time.Time, err error) {
	p := strings.ToLower(strings.TrimSpace(period))
	to = now

	switch p {
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), to, nil
	case "max":
		return now.AddDate(-maxPeriodYears, 0, 0), to, nil
	}

	// Split "<n><unit>"
	i := 0
	for i < len(p) && p[i] >= '0' && p[i] <= '9' {
		i++
	}
	if i == 0 || i == len(p) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	n, convErr := strconv.Atoi(p[:i])
	if convErr != nil || n <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	switch p[i:] {
	case "d":
		from = now.AddDate(0, 0, -n)
	case "w", "wk":
		from = now.AddDate(0, 0, -7*n)
	case "m", "mo":
		from = now.AddDate(0, -n, 0)
	case "y":
		from = now.AddDate(-n, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	if from.Before(now.AddDate(-maxPeriodYears, 0, 0)) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q exceeds %d years", ErrInvalidPeriod, period, maxPeriodYears)
	}
	return from, to, nil
}

package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

var ErrUnknownPeriod = errors.New("unknown trading period")

// ParsePeriod converts a trading period length such as 5min, 2h or 1d into a duration.
func ParsePeriod(period string) (time.Duration, error) {
	normalized := strings.TrimSpace(strings.ToLower(period))
	normalized = strings.ReplaceAll(normalized, "min", "m")

	duration, err := str2duration.ParseDuration(normalized)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
	return duration, nil
}

// PeriodsPerYear is the number of trading periods in 365 days.
func PeriodsPerYear(period string) (float64, error) {
	duration, err := ParsePeriod(period)
	if err != nil {
		return 0, err
	}
	return float64(365*24*time.Hour) / float64(duration), nil
}

package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ezquant/azfolio/azfolio/dataset"
	"github.com/ezquant/azfolio/azfolio/model"
)

var ErrUnsupportedPeriod = errors.New("period not supported by exchange")

// Feeder provides historical candles of a pair. Pairs use the QUOTE_BASE
// notation of the data directory, e.g. BTC_ETH for ETH quoted in BTC.
type Feeder interface {
	CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]model.Candle, error)
}

// SplitPair returns the quote and base assets of a QUOTE_BASE pair.
func SplitPair(pair string) (quote, base string, err error) {
	parts := strings.Split(strings.ToUpper(pair), "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair %q, expected QUOTE_BASE", pair)
	}
	return parts[0], parts[1], nil
}

// supportedPeriod validates period against the lengths an exchange accepts.
func supportedPeriod(period string, supported []time.Duration) (time.Duration, error) {
	duration, err := dataset.ParsePeriod(period)
	if err != nil {
		return 0, err
	}
	for _, d := range supported {
		if d == duration {
			return duration, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedPeriod, period)
}

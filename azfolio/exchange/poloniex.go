package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jpillora/backoff"

	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/plus/localkv"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

const (
	PoloniexURL = "https://poloniex.com"

	// periods per returnChartData request
	poloniexChunk = 500
)

var poloniexPeriods = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

type poloniexCandle struct {
	Date   int64   `json:"date"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type poloniexError struct {
	Error string `json:"error"`
}

type Poloniex struct {
	client   *resty.Client
	cache    *localkv.LocalKV
	retries  int
	minDelay time.Duration
	maxDelay time.Duration
}

type PoloniexOption func(*Poloniex)

func WithPoloniexURL(url string) PoloniexOption {
	return func(p *Poloniex) {
		p.client.SetBaseURL(url)
	}
}

// WithPoloniexCache stores downloaded chunks, a chunk already in the cache is not requested again.
func WithPoloniexCache(cache *localkv.LocalKV) PoloniexOption {
	return func(p *Poloniex) {
		p.cache = cache
	}
}

func WithPoloniexRetry(retries int, minDelay, maxDelay time.Duration) PoloniexOption {
	return func(p *Poloniex) {
		p.retries = retries
		p.minDelay = minDelay
		p.maxDelay = maxDelay
	}
}

func NewPoloniex(options ...PoloniexOption) *Poloniex {
	p := &Poloniex{
		client: resty.New().
			SetBaseURL(PoloniexURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
		retries:  5,
		minDelay: time.Second,
		maxDelay: 30 * time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Poloniex) CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]model.Candle, error) {
	if _, _, err := SplitPair(pair); err != nil {
		return nil, err
	}
	duration, err := supportedPeriod(period, poloniexPeriods)
	if err != nil {
		return nil, err
	}

	chunk := duration * poloniexChunk
	candles := make([]model.Candle, 0)
	for from := start; from.Before(end); from = from.Add(chunk) {
		to := from.Add(chunk - time.Second)
		if to.After(end) {
			to = end
		}

		raw, err := p.chunk(ctx, pair, duration, from, to)
		if err != nil {
			return nil, err
		}
		for _, c := range raw {
			// an empty range is answered with a single zero candle
			if c.Date == 0 {
				continue
			}
			candles = append(candles, model.Candle{
				Time:   time.Unix(c.Date, 0).UTC(),
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
		}
	}
	return candles, nil
}

func (p *Poloniex) cacheKey(pair string, period time.Duration, from, to time.Time) string {
	return fmt.Sprintf("poloniex:%s:%d:%d-%d", pair, int64(period.Seconds()), from.Unix(), to.Unix())
}

func (p *Poloniex) chunk(ctx context.Context, pair string, period time.Duration, from, to time.Time) ([]poloniexCandle, error) {
	key := p.cacheKey(pair, period, from, to)
	if p.cache != nil {
		if value, err := p.cache.Get(key); err == nil {
			var cached []poloniexCandle
			if err := json.Unmarshal([]byte(value), &cached); err == nil {
				return cached, nil
			}
			log.Warnf("poloniex: discard corrupted cache entry %s", key)
		}
	}

	candles, err := p.fetch(ctx, pair, period, from, to)
	if err != nil {
		return nil, err
	}

	// the current chunk is still growing
	if p.cache != nil && to.Before(time.Now().Add(-period)) {
		value, err := json.Marshal(candles)
		if err == nil {
			err = p.cache.Set(key, string(value))
		}
		if err != nil {
			log.WithError(err).Warnf("poloniex: cache %s", key)
		}
	}
	return candles, nil
}

func (p *Poloniex) fetch(ctx context.Context, pair string, period time.Duration, from, to time.Time) ([]poloniexCandle, error) {
	b := &backoff.Backoff{
		Min:    p.minDelay,
		Max:    p.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			delay := b.Duration()
			log.Warnf("poloniex: %s request failed (%v), retry %d in %s", pair, lastErr, attempt, delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		candles, err := p.request(ctx, pair, period, from, to)
		if err == nil {
			return candles, nil
		}
		if errors.Is(err, errPermanent) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("poloniex: %s: giving up after %d retries: %w", pair, p.retries, lastErr)
}

var errPermanent = errors.New("poloniex: request rejected")

func (p *Poloniex) request(ctx context.Context, pair string, period time.Duration, from, to time.Time) ([]poloniexCandle, error) {
	var candles []poloniexCandle
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"command":      "returnChartData",
			"currencyPair": pair,
			"start":        fmt.Sprint(from.Unix()),
			"end":          fmt.Sprint(to.Unix()),
			"period":       fmt.Sprint(int64(period.Seconds())),
		}).
		Get("/public")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return nil, fmt.Errorf("poloniex: status %d", resp.StatusCode())
	}

	var apiErr poloniexError
	if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("%w: %s", errPermanent, apiErr.Error)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), &candles); err != nil {
		return nil, fmt.Errorf("poloniex: decode chart data: %w", err)
	}
	return candles, nil
}

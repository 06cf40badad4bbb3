package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/samber/lo"

	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

const binanceKlinesLimit = 1000

var binanceIntervals = map[time.Duration]string{
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	24 * time.Hour:   "1d",
}

type Binance struct {
	client *binance.Client
}

type BinanceOption func(*Binance)

// WithBinanceBaseURL points the client to another endpoint, e.g. a test server.
func WithBinanceBaseURL(url string) BinanceOption {
	return func(b *Binance) {
		b.client.BaseURL = url
	}
}

// NewBinance creates a public data feeder. Historical klines do not need credentials.
func NewBinance(options ...BinanceOption) *Binance {
	b := &Binance{client: binance.NewClient("", "")}
	for _, option := range options {
		option(b)
	}
	return b
}

// Symbol converts BTC_ETH into ETHBTC.
func (b *Binance) Symbol(pair string) (string, error) {
	quote, base, err := SplitPair(pair)
	if err != nil {
		return "", err
	}
	return base + quote, nil
}

func (b *Binance) CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]model.Candle, error) {
	symbol, err := b.Symbol(pair)
	if err != nil {
		return nil, err
	}

	duration, err := supportedPeriod(period, lo.Keys(binanceIntervals))
	if err != nil {
		return nil, err
	}
	interval := binanceIntervals[duration]

	candles := make([]model.Candle, 0)
	from := start
	for from.Before(end) {
		klines, err := b.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(binanceKlinesLimit).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			candle, err := binanceCandle(k)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}

		from = time.UnixMilli(klines[len(klines)-1].OpenTime).Add(duration)
		log.Debugf("binance: %s %d candles up to %s", symbol, len(candles), from.Format(time.RFC3339))

		if len(klines) < binanceKlinesLimit {
			break
		}
	}

	return candles, nil
}

func binanceCandle(k *binance.Kline) (model.Candle, error) {
	values := make([]float64, 5)
	for i, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("binance kline %d: %w", k.OpenTime, err)
		}
		values[i] = v
	}

	return model.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

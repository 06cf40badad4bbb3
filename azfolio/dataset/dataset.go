package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

var (
	ErrNotEnoughPeriods = errors.New("not enough periods")
	ErrNoPairs          = errors.New("no pairs to load")
)

// BenchmarkPair is the pair used to express BTC in dollars.
const BenchmarkPair = "USDT_BTC"

type Options struct {
	Dir       string
	Pairs     []string
	NumAssets int
	StartDate string
	EndDate   string
	Period    string
}

func (o Options) path(pair string) string {
	return Path(o.Dir, pair, o.StartDate, o.EndDate, o.Period)
}

// AssetName returns the traded asset of a BTC quoted pair, BTC_ETH -> ETH.
func AssetName(pair string) string {
	parts := strings.Split(pair, "_")
	return parts[len(parts)-1]
}

// Load reads the first NumAssets pairs and aligns them on their common timestamps.
func Load(opts Options) (*model.PriceTensor, error) {
	if _, err := ParsePeriod(opts.Period); err != nil {
		return nil, err
	}

	pairs := lo.Uniq(opts.Pairs)
	if opts.NumAssets > 0 && opts.NumAssets < len(pairs) {
		pairs = pairs[:opts.NumAssets]
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	series := make([]map[int64]model.Candle, len(pairs))
	var common map[int64]bool
	for i, pair := range pairs {
		candles, err := ReadFile(opts.path(pair))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", pair, err)
		}

		series[i] = lo.KeyBy(candles, func(c model.Candle) int64 {
			return c.Time.Unix()
		})

		next := make(map[int64]bool, len(series[i]))
		for ts := range series[i] {
			if common == nil || common[ts] {
				next[ts] = true
			}
		}
		common = next
		log.Debugf("dataset: %s loaded with %d candles", pair, len(candles))
	}

	timestamps := lo.Keys(common)
	slices.Sort(timestamps)
	if len(timestamps) < 2 {
		return nil, fmt.Errorf("%w: %d common periods", ErrNotEnoughPeriods, len(timestamps))
	}

	assets := lo.Map(pairs, func(pair string, _ int) string {
		return AssetName(pair)
	})
	tensor := model.NewPriceTensor(assets, len(timestamps))
	for t, ts := range timestamps {
		tensor.Times[t] = time.Unix(ts, 0).UTC()
		for a := range pairs {
			candle := series[a][ts]
			tensor.Data[model.FeatureClose][a][t] = candle.Close
			tensor.Data[model.FeatureHigh][a][t] = candle.High
			tensor.Data[model.FeatureLow][a][t] = candle.Low
		}
	}

	return tensor, nil
}

// Benchmark loads the close prices of BenchmarkPair for the same range, restricted to times.
func Benchmark(opts Options, times []time.Time) ([]float64, error) {
	candles, err := ReadFile(opts.path(BenchmarkPair))
	if err != nil {
		return nil, fmt.Errorf("load benchmark: %w", err)
	}

	closes := lo.KeyBy(candles, func(c model.Candle) int64 {
		return c.Time.Unix()
	})
	prices := make([]float64, 0, len(times))
	for _, t := range times {
		candle, ok := closes[t.Unix()]
		if !ok {
			return nil, fmt.Errorf("%w: benchmark has no candle at %s", ErrNotEnoughPeriods, t.Format(time.RFC3339))
		}
		prices = append(prices, candle.Close)
	}
	return prices, nil
}

// SplitSteps divides periods into train, validation and test sets.
func SplitSteps(periods int, ratioTrain, ratioValidation float64) (model.Steps, error) {
	if ratioTrain < 0 || ratioValidation < 0 || ratioTrain+ratioValidation > 1 {
		return model.Steps{}, fmt.Errorf("invalid split ratios %.2f/%.2f", ratioTrain, ratioValidation)
	}

	train := int(ratioTrain * float64(periods))
	validation := int(ratioValidation * float64(periods))
	steps := model.Steps{
		Train:      train,
		Validation: validation,
		Test:       periods - train - validation,
	}
	if steps.Test < 1 {
		return steps, fmt.Errorf("%w: empty test set", ErrNotEnoughPeriods)
	}
	return steps, nil
}

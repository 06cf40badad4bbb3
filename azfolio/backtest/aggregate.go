package backtest

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/ezquant/azfolio/azfolio/tools/log"
)

const notAvailable = "NA"

var (
	ErrEmptyHistory = errors.New("no runs left to aggregate")
	ErrMalformedRun = errors.New("run has no initial weights")
)

// Filter drops runs whose initial allocation is outside [MinWeight, MaxWeight].
type Filter struct {
	MinWeight float64
	MaxWeight float64
}

// DefaultFilter ignores runs with negative weights or with a single weight above 0.7.
var DefaultFilter = Filter{MinWeight: 0, MaxWeight: 0.7}

// Apply returns the runs of history that pass the filter. The input is not modified.
func (f Filter) Apply(history History) History {
	filtered := History{}
	for key, run := range history {
		weights := run.InitialWeights
		// cash plus at least one asset
		if len(weights) < 2 {
			log.Debugf("ignoring run %s: %d initial weights", key, len(weights))
			continue
		}
		if lo.SomeBy(weights, func(w float64) bool { return w < f.MinWeight }) {
			continue
		}
		if lo.SomeBy(weights, func(w float64) bool { return w > f.MaxWeight }) {
			continue
		}
		filtered[key] = run
	}
	return filtered
}

// Stats holds the per-run series and shared metadata of a filtered history.
type Stats struct {
	DynamicPFValues     []float64
	DynamicMDDs         []float64
	DynamicSharpeRatios []float64

	StaticPFValues     []float64
	StaticMDDs         []float64
	StaticSharpeRatios []float64

	CashInvestments      []float64
	CryptoWeightAverages []float64
	CryptoWeightStdDevs  []float64

	FirstKey      string
	AssetList     []string
	EqPFValue     float64
	EqSharpeRatio float64
	EqMDD         float64

	TestStart           string
	TestEnd             string
	TradingPeriodLength string
}

// Aggregate walks the filtered history in key order and collects its statistics.
// The first run provides the asset list and the equal weighted baseline; the
// test window and trading period come from the last run that records them.
func Aggregate(filtered History) (Stats, error) {
	if len(filtered) == 0 {
		return Stats{}, ErrEmptyHistory
	}

	keys := filtered.Keys()
	first := filtered[keys[0]]

	stats := Stats{
		FirstKey:            keys[0],
		AssetList:           first.AssetList,
		EqPFValue:           first.EqualWeight.PortfolioValue,
		EqSharpeRatio:       first.EqualWeight.SharpeRatio,
		EqMDD:               first.EqualWeight.MDD,
		TestStart:           notAvailable,
		TestEnd:             notAvailable,
		TradingPeriodLength: notAvailable,
	}

	for _, key := range keys {
		run := filtered[key]
		if len(run.InitialWeights) == 0 {
			return Stats{}, fmt.Errorf("%w: %s", ErrMalformedRun, key)
		}

		if run.TestStart != "" {
			stats.TestStart = run.TestStart
		}
		if run.TestEnd != "" {
			stats.TestEnd = run.TestEnd
		}
		if run.TradingPeriodLength != "" {
			stats.TradingPeriodLength = run.TradingPeriodLength
		}

		stats.DynamicPFValues = append(stats.DynamicPFValues, run.Dynamic.PortfolioValue)
		stats.DynamicMDDs = append(stats.DynamicMDDs, run.Dynamic.MDD)
		stats.DynamicSharpeRatios = append(stats.DynamicSharpeRatios, run.Dynamic.SharpeRatio)

		stats.StaticPFValues = append(stats.StaticPFValues, run.Static.PortfolioValue)
		stats.StaticMDDs = append(stats.StaticMDDs, run.Static.MDD)
		stats.StaticSharpeRatios = append(stats.StaticSharpeRatios, run.Static.SharpeRatio)

		stats.CashInvestments = append(stats.CashInvestments, run.InitialWeights[0])

		cryptoWeights := run.InitialWeights[1:]
		mean, std := stat.PopMeanStdDev(cryptoWeights, nil)
		stats.CryptoWeightAverages = append(stats.CryptoWeightAverages, mean)
		stats.CryptoWeightStdDevs = append(stats.CryptoWeightStdDevs, std)
	}

	return stats, nil
}

// Simulations is the number of runs the statistics were built from.
func (s Stats) Simulations() int {
	return len(s.DynamicPFValues)
}

package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot/vg"

	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

// HistogramPath is where the histogram grid of a session is written.
func HistogramPath(dir, session string) string {
	return filepath.Join(dir, fmt.Sprintf("histogram_%s.png", session))
}

// SessionTitle turns a session name like Bear_year__2018 into a title.
func SessionTitle(session string) string {
	return strings.ReplaceAll(session, "_", " ")
}

// HistogramCharts lays out the distributions of a session, two per row:
// portfolio values, Sharpe ratios and drawdowns of both agents, then the weight statistics.
func HistogramCharts(stats backtest.Stats) []Chart {
	hist := func(title, xlabel string, values []float64) Chart {
		return Chart{
			Title:  title,
			XLabel: xlabel,
			YLabel: "Count",
			Bins:   DefaultBins,
			Series: []Series{{Name: xlabel, Style: StyleHistogram, Values: values}},
		}
	}

	return []Chart{
		hist("Dynamic agent: Distribution of Portfolio Values", "Portfolio value", stats.DynamicPFValues),
		hist("Static agent: Distribution of Portfolio Values", "Portfolio value", stats.StaticPFValues),
		hist("Dynamic agent: Distribution of Sharpe Ratios", "Sharpe ratio", stats.DynamicSharpeRatios),
		hist("Static agent: Distribution of Sharpe Ratios", "Sharpe ratio", stats.StaticSharpeRatios),
		hist("Dynamic agent: Distribution of Maximum Drawdowns", "Maximum drawdown", stats.DynamicMDDs),
		hist("Static agent: Distribution of Maximum Drawdowns", "Maximum drawdown", stats.StaticMDDs),
		hist("Both agents: Distribution of the average of weights", "Average weight", stats.CryptoWeightAverages),
		hist("Both agents: Distribution of the standard deviation of weights", "Stdev of weights", stats.CryptoWeightStdDevs),
	}
}

// Histograms writes the 4x2 histogram grid of a session to dir and returns the file path.
func Histograms(dir, session string, stats backtest.Stats) (string, error) {
	path := HistogramPath(dir, session)
	log.Infof("Saving plot to path: %s", path)

	if err := SaveGrid(path, HistogramCharts(stats), 4, 2, 16.6*vg.Inch, 18.7*vg.Inch); err != nil {
		return "", fmt.Errorf("histograms of %s: %w", session, err)
	}
	return path, nil
}

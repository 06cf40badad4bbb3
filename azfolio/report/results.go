package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

const (
	TimestampLayout  = "2006-01-02_15:04:05"
	DefaultSMAPeriod = 10
)

// StrategyResult is the test set outcome of one strategy.
type StrategyResult struct {
	Name    string
	Metrics backtest.Metrics
}

type TrainResultsInput struct {
	Name    string
	Assets  []string
	Times   []time.Time
	Agent   []float64
	Equal   []float64
	BTC     []float64
	Weights [][]float64
	// Indicators are drawn over the agent's values. Without indicators an SMA of
	// SMAPeriod is drawn, DefaultSMAPeriod when zero.
	Indicators []Indicator
	SMAPeriod  int
}

// OutputName names train result files: the session name, else "test" in test mode, else the timestamp.
func OutputName(session string, testMode bool, now time.Time) string {
	switch {
	case session != "":
		return session
	case testMode:
		return "test"
	default:
		return now.Format(TimestampLayout)
	}
}

func TrainResultsPath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf("train_results_%s.png", name))
}

// TrainResultsCharts builds the portfolio value progress and the weight evolution of the test set.
func TrainResultsCharts(in TrainResultsInput) []Chart {
	progress := Chart{
		Title:  "Portfolio Value (Test Set)",
		YLabel: "Portfolio value",
		Time:   in.Times,
		Series: []Series{
			{Name: "Agent", Values: in.Agent},
			{Name: "Equally weighted", Values: in.Equal},
		},
	}
	if len(in.BTC) > 0 {
		progress.Series = append(progress.Series, Series{Name: "BTC only", Values: in.BTC})
	}

	indicators := in.Indicators
	if len(indicators) == 0 {
		period := in.SMAPeriod
		if period <= 0 {
			period = DefaultSMAPeriod
		}
		indicators = []Indicator{SMA(period)}
	}
	for _, indicator := range indicators {
		if len(in.Agent) <= indicator.Warmup()+1 {
			continue
		}
		indicator.Load(in.Agent)
		progress.Series = append(progress.Series, indicator.Series())
	}

	weights := Chart{
		Title:  "Weight evolution",
		YLabel: "Weight",
		Time:   in.Times,
	}
	names := append([]string{model.CashName}, in.Assets...)
	for j, name := range names {
		if name == model.CashName {
			continue
		}
		values := make([]float64, len(in.Weights))
		for t := range in.Weights {
			if j < len(in.Weights[t]) {
				values[t] = in.Weights[t][j]
			}
		}
		// the first allocation is chosen before the test set starts
		weights.Series = append(weights.Series, Series{Name: name, Values: values, Warmup: 1})
	}

	return []Chart{progress, weights}
}

// TrainResults writes the train results plot to dir and returns the file path.
func TrainResults(dir string, in TrainResultsInput) (string, error) {
	path := TrainResultsPath(dir, in.Name)
	log.Infof("Saving plot to path: %s", path)

	if err := SaveGrid(path, TrainResultsCharts(in), 1, 2, 16*vg.Inch, 6*vg.Inch); err != nil {
		return "", fmt.Errorf("train results: %w", err)
	}
	return path, nil
}

// SharpeTable compares the final value, Sharpe ratio and drawdown of the strategies.
func SharpeTable(w io.Writer, results []StrategyResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			r.Name,
			strconv.FormatFloat(backtest.Round(r.Metrics.MDD, 3), 'f', -1, 64),
			strconv.FormatFloat(backtest.Round(r.Metrics.PortfolioValue, 2), 'f', -1, 64),
			strconv.FormatFloat(backtest.Round(r.Metrics.SharpeRatio, 3), 'f', -1, 64),
		})
	}

	RenderTable(w, backtest.Table{
		Header: []string{"Strategy", "MDD", "fAPV", "Sharpe"},
		Rows:   rows,
	})
}

type TrainParameters struct {
	Timestamp     time.Time
	Duration      time.Duration
	StartDate     string
	EndDate       string
	Batches       int
	Episodes      int
	BatchSize     int
	TradingPeriod string
	WindowLength  int
	HiddenSize    int
	Epsilon       float64
	LearningRate  float64
	Penalty       float64
}

// TrainParams writes the parameters a training session ran with.
func TrainParams(w io.Writer, p TrainParameters) error {
	_, err := fmt.Fprintf(w, `Training timestamp: %s
Training duration: %.1f seconds
Start date:  %s
End date:  %s

No. batches: %d
No. episodes: %d
Batch size: %d

Trading period: %s
Train window length: %d

Hidden size: %d

Epsilon greedy threshold: %g
Learning rate: %g
Max weight penalty: %g
`,
		p.Timestamp.Format(TimestampLayout), p.Duration.Seconds(), p.StartDate, p.EndDate,
		p.Batches, p.Episodes, p.BatchSize,
		p.TradingPeriod, p.WindowLength,
		p.HiddenSize,
		p.Epsilon, p.LearningRate, p.Penalty)
	return err
}

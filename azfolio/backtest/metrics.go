package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarises one portfolio value series.
type Metrics struct {
	PortfolioValue float64 `json:"pf_value"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MDD            float64 `json:"mdd"`
}

// Evaluate computes final value, Sharpe ratio and maximum drawdown of a value series.
func Evaluate(values []float64, riskFree float64) Metrics {
	if len(values) == 0 {
		return Metrics{}
	}
	return Metrics{
		PortfolioValue: values[len(values)-1],
		SharpeRatio:    SharpeRatio(values, riskFree),
		MDD:            MaxDrawdown(values),
	}
}

// Returns converts a value series into simple per-period returns.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// SharpeRatio is the mean excess per-period return over its population standard deviation.
func SharpeRatio(values []float64, riskFree float64) float64 {
	returns := Returns(values)
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean - riskFree) / std
}

// RangeRatio is the total change of a value series over the population standard
// deviation of its values.
func RangeRatio(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	std := stat.PopStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (values[len(values)-1] - values[0]) / std
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive fraction of the peak.
func MaxDrawdown(values []float64) float64 {
	var peak, maxDD float64
	for i, v := range values {
		if i == 0 || v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Summary is the population mean and standard deviation of a sample.
type Summary struct {
	Mean  float64
	Stdev float64
}

// Describe returns the population mean and standard deviation of values.
func Describe(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return Summary{Mean: mean, Stdev: std}
}

// Round rounds x to prec decimals.
func Round(x float64, prec int) float64 {
	pow := math.Pow(10, float64(prec))
	return math.Round(x*pow) / pow
}

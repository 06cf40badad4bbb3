package report

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// Indicator is an overlay computed from the agent's portfolio value series.
type Indicator interface {
	Name() string
	Warmup() int
	Load(values []float64)
	Series() Series
}

func SMA(period int) Indicator {
	return &sma{Period: period}
}

type sma struct {
	Period int
	Values []float64
}

func (e sma) Name() string {
	return fmt.Sprintf("SMA(%d)", e.Period)
}

func (e sma) Warmup() int {
	return e.Period - 1
}

func (e *sma) Load(values []float64) {
	e.Values = talib.Sma(values, e.Period)
}

func (e sma) Series() Series {
	return Series{Name: "Agent " + e.Name(), Values: e.Values, Warmup: e.Warmup(), Dashed: true}
}

func EMA(period int) Indicator {
	return &ema{Period: period}
}

type ema struct {
	Period int
	Values []float64
}

func (e ema) Name() string {
	return fmt.Sprintf("EMA(%d)", e.Period)
}

func (e ema) Warmup() int {
	return e.Period - 1
}

func (e *ema) Load(values []float64) {
	e.Values = talib.Ema(values, e.Period)
}

func (e ema) Series() Series {
	return Series{Name: "Agent " + e.Name(), Values: e.Values, Warmup: e.Warmup(), Dashed: true}
}

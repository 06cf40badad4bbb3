package model

import (
	"fmt"
	"time"
)

// Feature indexes inside a PriceTensor.
const (
	FeatureClose = iota
	FeatureHigh
	FeatureLow
	NumFeatures
)

// CashName is the asset the portfolio values are quoted in.
const CashName = "BTC"

type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (c Candle) String() string {
	return fmt.Sprintf("[%s] O: %f | H: %f | L: %f | C: %f | V: %f",
		c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// PriceTensor holds aligned price data as features x assets x periods.
type PriceTensor struct {
	Assets []string
	Times  []time.Time
	Data   [][][]float64
}

// NewPriceTensor allocates an empty tensor for the given assets and period count.
func NewPriceTensor(assets []string, periods int) *PriceTensor {
	data := make([][][]float64, NumFeatures)
	for f := range data {
		data[f] = make([][]float64, len(assets))
		for a := range data[f] {
			data[f][a] = make([]float64, periods)
		}
	}
	return &PriceTensor{
		Assets: assets,
		Times:  make([]time.Time, periods),
		Data:   data,
	}
}

func (p *PriceTensor) NumAssets() int {
	return len(p.Assets)
}

func (p *PriceTensor) Periods() int {
	if len(p.Data) == 0 || len(p.Data[0]) == 0 {
		return 0
	}
	return len(p.Data[0][0])
}

func (p *PriceTensor) Close(asset, t int) float64 {
	return p.Data[FeatureClose][asset][t]
}

func (p *PriceTensor) Value(feature, asset, t int) float64 {
	return p.Data[feature][asset][t]
}

// Steps is the train/validation/test split of a tensor, in periods.
type Steps struct {
	Train      int `json:"train"`
	Validation int `json:"validation"`
	Test       int `json:"test"`
}

// TestStart is the first period of the test set.
func (s Steps) TestStart() int {
	return s.Train + s.Validation
}

func (s Steps) Total() int {
	return s.Train + s.Validation + s.Test
}

// PerformanceLists collects the value series produced by a rollout of every strategy.
type PerformanceLists struct {
	Policy         []float64
	Static         []float64
	Equal          []float64
	Cash           []float64
	SingleAsset    [][]float64
	Weights        [][]float64
	InitialWeights []float64
}

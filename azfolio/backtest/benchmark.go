package backtest

import (
	"math"
)

// Backfill replaces missing prices (NaN, Inf or non-positive) with the next valid
// price. Trailing gaps take the last valid price.
func Backfill(prices []float64) []float64 {
	filled := make([]float64, len(prices))
	copy(filled, prices)

	next := math.NaN()
	for i := len(filled) - 1; i >= 0; i-- {
		if valid(filled[i]) {
			next = filled[i]
			continue
		}
		filled[i] = next
	}

	last := math.NaN()
	for i := range filled {
		if valid(filled[i]) {
			last = filled[i]
			continue
		}
		filled[i] = last
	}
	return filled
}

func valid(price float64) bool {
	return !math.IsNaN(price) && !math.IsInf(price, 0) && price > 0
}

// BuyAndHold scales a price series into the value of an investment of initial
// made at the first price: v0 = initial, v_i = v_{i-1} * (1 + pct_change_i).
func BuyAndHold(prices []float64, initial float64) []float64 {
	if len(prices) == 0 {
		return []float64{}
	}

	prices = Backfill(prices)
	values := make([]float64, len(prices))
	values[0] = initial
	for i := 1; i < len(prices); i++ {
		change := 0.0
		if valid(prices[i-1]) && valid(prices[i]) {
			change = prices[i]/prices[i-1] - 1
		}
		values[i] = values[i-1] * (change + 1)
	}
	return values
}

// TestPeriod returns the part of a series that falls in the test set.
func TestPeriod(series []float64, testStart int) []float64 {
	if testStart >= len(series) {
		return []float64{}
	}
	if testStart < 0 {
		testStart = 0
	}
	return series[testStart:]
}

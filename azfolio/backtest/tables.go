package backtest

import (
	"strconv"
)

// Table is a titled grid of already formatted cells.
type Table struct {
	Header []string
	Rows   [][]string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(Round(v, 4), 'f', -1, 64)
}

func describeRow(name string, values []float64) []string {
	summary := Describe(values)
	return []string{name, formatFloat(summary.Mean), formatFloat(summary.Stdev)}
}

// DynamicTable summarises the agent that rebalances every period.
func (s Stats) DynamicTable() Table {
	return s.agentTable("Dynamic agent", s.DynamicPFValues, s.DynamicSharpeRatios, s.DynamicMDDs)
}

// StaticTable summarises the agent that holds its initial allocation.
func (s Stats) StaticTable() Table {
	return s.agentTable("Static agent", s.StaticPFValues, s.StaticSharpeRatios, s.StaticMDDs)
}

func (s Stats) agentTable(title string, pfValues, sharpeRatios, mdds []float64) Table {
	return Table{
		Header: []string{title, "Average", "Stdev"},
		Rows: [][]string{
			describeRow("Ptf. value", pfValues),
			describeRow("Sharpe ratio", sharpeRatios),
			describeRow("MDD", mdds),
			describeRow("Average of weights", s.CryptoWeightAverages),
			describeRow("Stdev of weights", s.CryptoWeightStdDevs),
			describeRow("Cash weight (BTC)", s.CashInvestments),
		},
	}
}

// EqualWeightTable reports the equal weighted baseline of the first run.
func (s Stats) EqualWeightTable() Table {
	return Table{
		Header: []string{"Equal weighted", "Average"},
		Rows: [][]string{
			{"Ptf. value", formatFloat(s.EqPFValue)},
			{"Sharpe ratio", formatFloat(s.EqSharpeRatio)},
			{"MDD", formatFloat(s.EqMDD)},
		},
	}
}

// ParameterTable reports the simulation parameters.
func (s Stats) ParameterTable(simulations int) Table {
	return Table{
		Header: []string{"Parameter", "Value"},
		Rows: [][]string{
			{"No. of simulations", strconv.Itoa(simulations)},
			{"No. of assets", strconv.Itoa(len(s.AssetList))},
			{"Start date", s.TestStart},
			{"End date", s.TestEnd},
			{"Trading period", s.TradingPeriodLength},
		},
	}
}

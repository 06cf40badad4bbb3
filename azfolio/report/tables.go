package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/ezquant/azfolio/azfolio/backtest"
)

// RenderTable writes a table with the header style used by every report.
func RenderTable(w io.Writer, table backtest.Table) {
	writer := tablewriter.NewWriter(w)
	writer.SetHeader(table.Header)
	writer.SetAutoFormatHeaders(false)
	writer.SetAlignment(tablewriter.ALIGN_RIGHT)
	writer.AppendBulk(table.Rows)
	writer.Render()
}

// SimulationTables writes the simulation statistics of a session: the dynamic agent,
// the static agent, the equally weighted baseline and the simulation parameters.
func SimulationTables(w io.Writer, session string, simulations int, stats backtest.Stats) error {
	if _, err := fmt.Fprintf(w, "[Simulation statistics] %s\n", SessionTitle(session)); err != nil {
		return err
	}

	for _, table := range []backtest.Table{
		stats.DynamicTable(),
		stats.StaticTable(),
		stats.EqualWeightTable(),
		stats.ParameterTable(simulations),
	} {
		RenderTable(w, table)
	}
	return nil
}

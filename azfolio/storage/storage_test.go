package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azfolio/azfolio/backtest"
)

func sampleRun(value float64) backtest.Run {
	return backtest.Run{
		AssetList:           []string{"ETH", "XRP"},
		InitialWeights:      []float64{0.2, 0.5, 0.3},
		Dynamic:             backtest.Metrics{PortfolioValue: value, SharpeRatio: 0.1, MDD: 0.2},
		Static:              backtest.Metrics{PortfolioValue: 9000, SharpeRatio: -0.1, MDD: 0.3},
		EqualWeight:         backtest.Metrics{PortfolioValue: 9500, SharpeRatio: 0.05, MDD: 0.25},
		TestStart:           "20190201",
		TestEnd:             "20190301",
		TradingPeriodLength: "4h",
	}
}

func TestRuns(t *testing.T) {
	runs, err := FromMemory()
	require.NoError(t, err)
	defer runs.Close()

	require.NoError(t, runs.Save("bear", "2019-03-01_10:00:00", sampleRun(11000)))
	require.NoError(t, runs.Save("bear", "2019-03-01_11:00:00", sampleRun(12000)))
	require.NoError(t, runs.Save("bull", "2019-03-01_10:00:00", sampleRun(13000)))

	history, err := runs.List("bear")
	require.NoError(t, err)
	assert.Equal(t, []string{"2019-03-01_10:00:00", "2019-03-01_11:00:00"}, history.Keys())
	assert.Equal(t, sampleRun(11000), history["2019-03-01_10:00:00"])

	sessions, err := runs.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"bear", "bull"}, sessions)

	t.Run("saving an existing key replaces the run", func(t *testing.T) {
		require.NoError(t, runs.Save("bear", "2019-03-01_10:00:00", sampleRun(15000)))

		count, err := runs.Count("bear")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		history, err := runs.List("bear")
		require.NoError(t, err)
		assert.Equal(t, 15000.0, history["2019-03-01_10:00:00"].Dynamic.PortfolioValue)
	})

	_, err = runs.List("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRuns_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	runs, err := FromFile(path)
	require.NoError(t, err)
	require.NoError(t, runs.Save("s", "k", sampleRun(1)))
	require.NoError(t, runs.Close())

	runs, err = FromFile(path)
	require.NoError(t, err)
	defer runs.Close()

	history, err := runs.List("s")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	stats, err := backtest.Aggregate(backtest.DefaultFilter.Apply(history))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, stats.DynamicPFValues)
}

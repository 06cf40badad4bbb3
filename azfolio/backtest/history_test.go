package backtest

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryFile_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	file := NewHistoryFile(dir, "Bear_year__2018")
	file.now = func() time.Time {
		return time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC)
	}

	_, err := file.Load()
	require.ErrorIs(t, err, os.ErrNotExist)

	run := Run{
		AssetList:      []string{"ETH"},
		InitialWeights: []float64{0.5, 0.5},
		Dynamic:        Metrics{PortfolioValue: 1, SharpeRatio: 2, MDD: 0.3},
	}

	key, err := file.Append(run)
	require.NoError(t, err)
	assert.Equal(t, "2019-03-01_10:00:00", key)

	key, err = file.Append(run)
	require.NoError(t, err)
	assert.Equal(t, "2019-03-01_10:00:00_001", key)

	history, err := file.Load()
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, run, history["2019-03-01_10:00:00"])
	assert.Equal(t, []string{"2019-03-01_10:00:00", "2019-03-01_10:00:00_001"}, history.Keys())
	assert.FileExists(t, HistoryPath(dir, "Bear_year__2018"))
}

func TestHistoryFile_DecodesJSONKeys(t *testing.T) {
	dir := t.TempDir()
	raw := `{
  "2020-01-01_00:00:00": {
    "asset_list": ["ETH", "XRP"],
    "initial_weights": [0.2, 0.4, 0.4],
    "dynamic": {"pf_value": 1.5, "sharpe_ratio": 0.1, "mdd": 0.2},
    "static": {"pf_value": 1.2, "sharpe_ratio": 0.05, "mdd": 0.3},
    "eq_weight": {"pf_value": 1.1, "sharpe_ratio": 0.01, "mdd": 0.4},
    "trading_period_length": "4h"
  }
}`
	require.NoError(t, os.WriteFile(HistoryPath(dir, "s"), []byte(raw), 0644))

	history, err := NewHistoryFile(dir, "s").Load()
	require.NoError(t, err)

	run := history["2020-01-01_00:00:00"]
	assert.Equal(t, []string{"ETH", "XRP"}, run.AssetList)
	assert.Equal(t, 1.5, run.Dynamic.PortfolioValue)
	assert.Equal(t, 0.3, run.Static.MDD)
	assert.Equal(t, 0.01, run.EqualWeight.SharpeRatio)
	assert.Equal(t, "4h", run.TradingPeriodLength)
	assert.Empty(t, run.TestStart)
}

func TestHistoryFile_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(HistoryPath(dir, "bad"), []byte("{"), 0644))

	_, err := NewHistoryFile(dir, "bad").Load()
	assert.Error(t, err)
}

func TestHistoryFile_CollisionKeysSortInOrder(t *testing.T) {
	file := NewHistoryFile(t.TempDir(), "busy")
	file.now = func() time.Time {
		return time.Date(2019, 3, 1, 10, 0, 0, 0, time.UTC)
	}

	var appended []string
	for i := 0; i < 12; i++ {
		key, err := file.Append(Run{Dynamic: Metrics{PortfolioValue: float64(i)}})
		require.NoError(t, err)
		appended = append(appended, key)
	}
	assert.Equal(t, "2019-03-01_10:00:00_011", appended[11])

	history, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, appended, history.Keys())
	assert.Equal(t, 0.0, history[history.Keys()[0]].Dynamic.PortfolioValue)
}

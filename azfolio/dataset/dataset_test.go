package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azfolio/azfolio/model"
)

func TestParsePeriod(t *testing.T) {
	tt := []struct {
		period string
		want   time.Duration
	}{
		{"5min", 5 * time.Minute},
		{"15min", 15 * time.Minute},
		{"30min", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tc := range tt {
		t.Run(tc.period, func(t *testing.T) {
			got, err := ParsePeriod(tc.period)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParsePeriod("weekly")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
	_, err = ParsePeriod("")
	assert.ErrorIs(t, err, ErrUnknownPeriod)
}

func TestPeriodsPerYear(t *testing.T) {
	n, err := PeriodsPerYear("1d")
	require.NoError(t, err)
	assert.InDelta(t, 365, n, 1e-9)
}

func TestPath(t *testing.T) {
	got := Path("data", "BTC_ETH", "20190101", "20190301", "4h")
	assert.Equal(t, filepath.Join("data", "BTC_ETH", "20190101-20190301", "BTC_ETH_20190101-20190301_4h.csv"), got)
}

func TestReadCSV(t *testing.T) {
	raw := `date,high,low,open,close,volume
1546300800,0.04,0.03,0.035,0.036,10
1546315200,,,,,0
1546329600,0.05,0.04,0.041,0.045,12
1546344000,0.05,0.04,0.041,0,3
`
	candles, err := ReadCSV(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, candles, 4)

	assert.Equal(t, time.Unix(1546300800, 0).UTC(), candles[0].Time)
	assert.Equal(t, 0.036, candles[0].Close)
	assert.Equal(t, 0.045, candles[1].Close, "blank close is back filled")
	assert.Equal(t, 0.05, candles[1].High)
	assert.Equal(t, 0.045, candles[3].Close, "zero close at the tail is forward filled")

	t.Run("column order follows the header", func(t *testing.T) {
		candles, err := ReadCSV(strings.NewReader("close,date\n2.5,100\n"))
		require.NoError(t, err)
		require.Len(t, candles, 1)
		assert.Equal(t, 2.5, candles[0].Close)
		assert.Equal(t, 2.5, candles[0].High)
	})

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("date,open\n1,2\n"))
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("date,close\nyesterday,2\n"))
		assert.Error(t, err)
	})
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	candles := []model.Candle{
		{Time: time.Unix(100, 0).UTC(), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 7},
		{Time: time.Unix(200, 0).UTC(), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 8},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, candles))
	assert.True(t, strings.HasPrefix(buf.String(), "date,high,low,open,close,volume\n"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
}

func writeCandles(t *testing.T, opts Options, pair string, closes map[int64]float64) {
	t.Helper()

	var candles []model.Candle
	for ts := int64(0); ts < 10; ts++ {
		price, ok := closes[ts]
		if !ok {
			continue
		}
		candles = append(candles, model.Candle{
			Time: time.Unix(ts*3600, 0).UTC(), Open: price, High: price * 1.1, Low: price * 0.9, Close: price,
		})
	}

	path := opts.path(pair)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, WriteCSV(file, candles))
}

func TestLoad(t *testing.T) {
	opts := Options{
		Dir:       t.TempDir(),
		Pairs:     []string{"BTC_ETH", "BTC_XRP", "BTC_ETH", "BTC_LTC"},
		NumAssets: 2,
		StartDate: "20190101",
		EndDate:   "20190102",
		Period:    "1h",
	}
	writeCandles(t, opts, "BTC_ETH", map[int64]float64{0: 1, 1: 2, 2: 3, 3: 4})
	writeCandles(t, opts, "BTC_XRP", map[int64]float64{1: 10, 2: 20, 3: 30, 4: 40})

	tensor, err := Load(opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH", "XRP"}, tensor.Assets)
	assert.Equal(t, 3, tensor.Periods())
	assert.Equal(t, time.Unix(3600, 0).UTC(), tensor.Times[0])
	assert.Equal(t, 2.0, tensor.Close(0, 0))
	assert.Equal(t, 30.0, tensor.Close(1, 2))
	assert.InDelta(t, 2.2, tensor.Value(model.FeatureHigh, 0, 0), 1e-12)

	t.Run("missing file", func(t *testing.T) {
		opts := opts
		opts.NumAssets = 3
		_, err := Load(opts)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unknown period", func(t *testing.T) {
		opts := opts
		opts.Period = "fortnight"
		_, err := Load(opts)
		assert.ErrorIs(t, err, ErrUnknownPeriod)
	})

	t.Run("no pairs", func(t *testing.T) {
		opts := opts
		opts.Pairs = nil
		_, err := Load(opts)
		assert.ErrorIs(t, err, ErrNoPairs)
	})
}

func TestLoad_NoOverlap(t *testing.T) {
	opts := Options{Dir: t.TempDir(), Pairs: []string{"BTC_ETH", "BTC_XRP"}, StartDate: "a", EndDate: "b", Period: "1h"}
	writeCandles(t, opts, "BTC_ETH", map[int64]float64{0: 1, 1: 2})
	writeCandles(t, opts, "BTC_XRP", map[int64]float64{2: 1, 3: 2})

	_, err := Load(opts)
	assert.ErrorIs(t, err, ErrNotEnoughPeriods)
}

func TestBenchmark(t *testing.T) {
	opts := Options{Dir: t.TempDir(), StartDate: "a", EndDate: "b", Period: "1h"}
	writeCandles(t, opts, BenchmarkPair, map[int64]float64{0: 3000, 1: 3100, 2: 3200})

	prices, err := Benchmark(opts, []time.Time{time.Unix(3600, 0), time.Unix(7200, 0)})
	require.NoError(t, err)
	assert.Equal(t, []float64{3100, 3200}, prices)

	_, err = Benchmark(opts, []time.Time{time.Unix(36000, 0)})
	assert.ErrorIs(t, err, ErrNotEnoughPeriods)
}

func TestSplitSteps(t *testing.T) {
	steps, err := SplitSteps(100, 0.6, 0.2)
	require.NoError(t, err)
	assert.Equal(t, model.Steps{Train: 60, Validation: 20, Test: 20}, steps)
	assert.Equal(t, 80, steps.TestStart())

	steps, err = SplitSteps(7, 0.6, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 7, steps.Total())
	assert.Equal(t, model.Steps{Train: 4, Validation: 1, Test: 2}, steps)

	_, err = SplitSteps(10, 0.8, 0.3)
	assert.Error(t, err)

	_, err = SplitSteps(1, 0.6, 0.2)
	require.NoError(t, err)
}

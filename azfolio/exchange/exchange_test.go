package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azfolio/azfolio/dataset"
	"github.com/ezquant/azfolio/azfolio/plus/localkv"
)

var start = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSplitPair(t *testing.T) {
	quote, base, err := SplitPair("btc_eth")
	require.NoError(t, err)
	assert.Equal(t, "BTC", quote)
	assert.Equal(t, "ETH", base)

	_, _, err = SplitPair("BTCETH")
	assert.Error(t, err)
	_, _, err = SplitPair("BTC_")
	assert.Error(t, err)
}

const chartData = `[
{"date":1546300800,"high":0.04,"low":0.03,"open":0.035,"close":0.036,"volume":10,"quoteVolume":1,"weightedAverage":0.035},
{"date":1546315200,"high":0.05,"low":0.03,"open":0.036,"close":0.04,"volume":11,"quoteVolume":1,"weightedAverage":0.035},
{"date":1546329600,"high":0.05,"low":0.04,"open":0.04,"close":0.045,"volume":12,"quoteVolume":1,"weightedAverage":0.035}
]`

func TestPoloniex_CandlesByPeriod(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/public", r.URL.Path)
		assert.Equal(t, "returnChartData", r.URL.Query().Get("command"))
		assert.Equal(t, "BTC_ETH", r.URL.Query().Get("currencyPair"))
		assert.Equal(t, "14400", r.URL.Query().Get("period"))

		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chartData)
	}))
	defer server.Close()

	cache, err := localkv.NewLocalKV(nil)
	require.NoError(t, err)
	defer cache.Close()

	feeder := NewPoloniex(
		WithPoloniexURL(server.URL),
		WithPoloniexCache(cache),
		WithPoloniexRetry(2, time.Millisecond, 2*time.Millisecond),
	)

	end := start.Add(12 * time.Hour)
	candles, err := feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "4h", start, end)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, start, candles[0].Time)
	assert.Equal(t, 0.045, candles[2].Close)
	assert.Equal(t, 12.0, candles[2].Volume)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests), "one failed request and one retry")

	t.Run("cached chunks are not requested again", func(t *testing.T) {
		candles, err := feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "4h", start, end)
		require.NoError(t, err)
		assert.Len(t, candles, 3)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	})
}

func TestPoloniex_Errors(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Query().Get("currencyPair") == "BTC_NOPE" {
			fmt.Fprint(w, `{"error":"Invalid currency pair."}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	feeder := NewPoloniex(WithPoloniexURL(server.URL), WithPoloniexRetry(1, time.Millisecond, time.Millisecond))
	end := start.Add(time.Hour)

	_, err := feeder.CandlesByPeriod(context.Background(), "BTC_NOPE", "4h", start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid currency pair")
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "rejected requests are not retried")

	_, err = feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "4h", start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))

	_, err = feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "1h", start, end)
	assert.ErrorIs(t, err, ErrUnsupportedPeriod)

	_, err = feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "weekly", start, end)
	assert.ErrorIs(t, err, dataset.ErrUnknownPeriod)
}

func TestBinance_CandlesByPeriod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/klines"))
		assert.Equal(t, "ETHBTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "4h", r.URL.Query().Get("interval"))

		fmt.Fprintf(w, `[
[%d,"0.035","0.04","0.03","0.036","10",%d,"1",5,"1","1","0"],
[%d,"0.036","0.05","0.03","0.04","11",%d,"1",5,"1","1","0"]
]`, start.UnixMilli(), start.Add(4*time.Hour).UnixMilli()-1,
			start.Add(4*time.Hour).UnixMilli(), start.Add(8*time.Hour).UnixMilli()-1)
	}))
	defer server.Close()

	feeder := NewBinance(WithBinanceBaseURL(server.URL))

	symbol, err := feeder.Symbol("USDT_BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", symbol)

	candles, err := feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "4h", start, start.Add(8*time.Hour))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, start, candles[0].Time)
	assert.Equal(t, 0.036, candles[0].Close)
	assert.Equal(t, 0.05, candles[1].High)
	assert.Equal(t, 11.0, candles[1].Volume)

	_, err = feeder.CandlesByPeriod(context.Background(), "BTC_ETH", "3h", start, start.Add(8*time.Hour))
	assert.ErrorIs(t, err, ErrUnsupportedPeriod)
}

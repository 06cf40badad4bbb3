package localkv

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalKV_Memory(t *testing.T) {
	kv, err := NewLocalKV(nil)
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, kv.Has("missing"))

	require.NoError(t, kv.Set("poloniex:BTC_ETH:1", "a"))
	require.NoError(t, kv.Set("poloniex:BTC_ETH:2", "b"))
	require.NoError(t, kv.Set("binance:ETHBTC:1", "c"))

	value, err := kv.Get("poloniex:BTC_ETH:1")
	require.NoError(t, err)
	assert.Equal(t, "a", value)

	keys, err := kv.Keys("poloniex:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"poloniex:BTC_ETH:1", "poloniex:BTC_ETH:2"}, keys)

	require.NoError(t, kv.Delete("poloniex:BTC_ETH:1"))
	require.NoError(t, kv.Delete("poloniex:BTC_ETH:1"))
	assert.False(t, kv.Has("poloniex:BTC_ETH:1"))

	assert.NoError(t, kv.RemoveDB())
}

func TestLocalKV_File(t *testing.T) {
	dir := path.Join(t.TempDir(), "cache")

	kv, err := NewLocalKV(&dir)
	require.NoError(t, err)
	require.NoError(t, kv.Set("k", "v"))
	require.NoError(t, kv.Close())

	kv, err = NewLocalKV(&dir)
	require.NoError(t, err)
	value, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	require.NoError(t, kv.RemoveDB())
	assert.NoFileExists(t, path.Join(dir, "kv.db"))
}

package agent

import (
	"context"
	"math"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezquant/azfolio/azfolio/environment"
	"github.com/ezquant/azfolio/azfolio/model"
)

func trendingEnv(t *testing.T, periods, window int) *environment.TradeEnv {
	t.Helper()

	tensor := model.NewPriceTensor([]string{"ETH", "XRP"}, periods)
	for i := 0; i < periods; i++ {
		up := 1 + 0.01*float64(i)
		down := 1 / up
		for f, scale := range []float64{1, 1.01, 0.99} {
			tensor.Data[f][0][i] = up * scale
			tensor.Data[f][1][i] = down * scale
		}
	}

	env, err := environment.New(tensor, environment.Config{WindowLength: window, InitialValue: 10000, TradingCost: 0.0025})
	require.NoError(t, err)
	return env
}

func testConfig() Config {
	return Config{
		HiddenSize:   8,
		Episodes:     2,
		Batches:      3,
		BatchSize:    4,
		LearningRate: 0.01,
		Epsilon:      0.1,
		Penalty:      0.01,
		Seed:         42,
	}
}

func TestNew(t *testing.T) {
	env := trendingEnv(t, 20, 3)

	a, err := New(env, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3*2*3+2+2, a.inputSize)
	assert.Equal(t, 3, a.outputSize)

	_, err = New(env, Config{HiddenSize: 0, BatchSize: 1})
	assert.Error(t, err)
	_, err = New(env, Config{HiddenSize: 1, BatchSize: 0})
	assert.Error(t, err)
}

func TestAgent_Predict(t *testing.T) {
	env := trendingEnv(t, 20, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	state, err := env.Reset(5, environment.EqualWeights(2))
	require.NoError(t, err)

	weights := a.Predict(state)
	require.Len(t, weights, 3)
	assert.InDelta(t, 1, lo.Sum(weights), 1e-9)
	for _, w := range weights {
		assert.Greater(t, w, 0.0)
	}
	assert.Equal(t, weights, a.Predict(state), "prediction is deterministic")

	t.Run("zero weights give an equal allocation", func(t *testing.T) {
		a.w2 = mat.NewDense(a.config.HiddenSize, a.outputSize, nil)
		assert.InDeltaSlice(t, environment.EqualWeights(2), a.Predict(state), 1e-12)
	})
}

func TestAgent_Rollout(t *testing.T) {
	env := trendingEnv(t, 20, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	episode, err := environment.Rollout(env, 10, 0, a.InitialWeights(env, 10), a.Policy())
	require.NoError(t, err)
	assert.Len(t, episode.Values, 10)
	for _, v := range episode.Values {
		assert.Greater(t, v, 0.0)
	}
}

func TestAgent_Train(t *testing.T) {
	env := trendingEnv(t, 60, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	before := mat.DenseCopyOf(a.w1)
	var batches int
	a.OnBatch = func(episode, batch int, loss float64) {
		batches++
		assert.False(t, math.IsNaN(loss))
	}

	steps := model.Steps{Train: 36, Validation: 12, Test: 12}
	results, err := a.Train(context.Background(), env, steps)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 6, batches)
	assert.Equal(t, 1, results[1].Episode)
	assert.Greater(t, results[0].Validation, 0.0)
	assert.False(t, mat.Equal(before, a.w1), "training updates the weights")
}

func TestAgent_TrainNotEnoughData(t *testing.T) {
	env := trendingEnv(t, 10, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	_, err = a.Train(context.Background(), env, model.Steps{Train: 6, Validation: 2, Test: 2})
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestAgent_TrainCancelled(t *testing.T) {
	env := trendingEnv(t, 60, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Train(ctx, env, model.Steps{Train: 36, Validation: 12, Test: 12})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory(t *testing.T) {
	memory := NewMemory(4, 3)
	assert.Equal(t, 4, memory.Len())
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, memory.Get(-1), 1e-12)

	weights := []float64{1, 0, 0}
	memory.Set(2, weights)
	weights[0] = 0
	assert.Equal(t, []float64{1, 0, 0}, memory.Get(2))
}

func TestSoftmax(t *testing.T) {
	out := softmax([]float64{1000, 1000})
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, out, 1e-12)

	out = softmax([]float64{0, math.Log(3)})
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, out, 1e-12)
}

func TestExplore(t *testing.T) {
	env := trendingEnv(t, 20, 3)
	a, err := New(env, testConfig())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		weights := a.explore()
		assert.InDelta(t, 1, lo.Sum(weights), 1e-9)
	}
}

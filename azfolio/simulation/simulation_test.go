package simulation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezquant/azfolio/azfolio"
	"github.com/ezquant/azfolio/azfolio/backtest"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/plus/models"
)

func sampleData(periods int) *model.PriceTensor {
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	tensor := model.NewPriceTensor([]string{"ETH", "XRP"}, periods)
	for i := 0; i < periods; i++ {
		tensor.Times[i] = start.Add(time.Duration(i) * 4 * time.Hour)
		for f, scale := range []float64{1, 1.01, 0.99} {
			tensor.Data[f][0][i] = (1 + 0.01*float64(i)) * scale
			tensor.Data[f][1][i] = (2 + math.Cos(float64(i)/4)) * scale
		}
	}
	return tensor
}

func sampleConfig() models.Config {
	config := models.Default()
	config.Session = "grid"
	config.WindowLength = 3
	config.Episodes = 1
	config.Batches = 1
	config.BatchSize = 2
	config.HiddenSize = 4
	config.Seed = 11
	config.Simulations = 2
	config.Workers = 2
	return config
}

func TestSimulator_Run(t *testing.T) {
	config := sampleConfig()
	config.Parameters = []models.Parameter{
		{Name: "hidden_size", Type: "int", Min: 4, Max: 8, Step: 4},
	}

	history := backtest.NewHistoryFile(t.TempDir(), "grid")
	simulator := New(config, sampleData(60), nil, azfolio.WithHistory(history))

	outcomes, err := simulator.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 4)
	assert.Zero(t, simulator.Failures())

	for i := 1; i < len(outcomes); i++ {
		assert.GreaterOrEqual(t, outcomes[i-1].Dynamic.SharpeRatio, outcomes[i].Dynamic.SharpeRatio)
	}

	simulations := lo.Uniq(lo.Map(outcomes, func(o Outcome, _ int) int { return o.Simulation }))
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, simulations)
	hidden := lo.CountBy(outcomes, func(o Outcome) bool { return o.Parameters["hidden_size"] == 8 })
	assert.Equal(t, 2, hidden)

	stored, err := history.Load()
	require.NoError(t, err)
	assert.Len(t, stored, 4)
	for _, o := range outcomes {
		assert.Equal(t, o.Dynamic, stored[o.Key].Dynamic)
	}
}

func TestSimulator_Jobs(t *testing.T) {
	config := sampleConfig()
	config.Simulations = 3
	config.Parameters = []models.Parameter{
		{Name: "learning_rate", Min: 0.01, Max: 0.02, Step: 0.01},
	}

	jobs, err := New(config, sampleData(60), nil).jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 6)
	assert.Equal(t, 0.01, jobs[0].config.LearningRate)
	assert.Equal(t, 0.02, jobs[5].config.LearningRate)
	assert.Equal(t, int64(11), jobs[0].config.Seed)
	assert.Equal(t, int64(16), jobs[5].config.Seed)

	config.Parameters = []models.Parameter{{Name: "colour", Default: 1}}
	_, err = New(config, sampleData(60), nil).jobs()
	assert.ErrorIs(t, err, models.ErrUnknownParameter)
}

func TestSimulator_NoResults(t *testing.T) {
	config := sampleConfig()
	config.Simulations = 1
	config.Workers = 1

	simulator := New(config, sampleData(6), nil)
	_, err := simulator.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoResults)
	assert.Equal(t, 1, simulator.Failures())
}

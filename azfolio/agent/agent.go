package agent

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ezquant/azfolio/azfolio/environment"
	"github.com/ezquant/azfolio/azfolio/model"
)

var ErrNotEnoughData = errors.New("agent: not enough periods to build a batch")

type Config struct {
	HiddenSize   int
	Episodes     int
	Batches      int
	BatchSize    int
	LearningRate float64
	// Epsilon is the probability of replacing a remembered allocation by a random one while training.
	Epsilon float64
	// Penalty weighs the concentration term sum(w^2) of the loss.
	Penalty float64
	Seed    int64
}

// Agent is a two layer policy network mapping a price window and the previous
// allocation to a new allocation over cash and assets.
type Agent struct {
	config Config

	window     int
	numAssets  int
	inputSize  int
	outputSize int

	w1 *mat.Dense
	w2 *mat.Dense

	rng *rand.Rand

	// OnBatch is called after every training batch.
	OnBatch func(episode, batch int, loss float64)
}

func New(env *environment.TradeEnv, config Config) (*Agent, error) {
	if config.HiddenSize < 1 {
		return nil, fmt.Errorf("agent: hidden size must be positive, got %d", config.HiddenSize)
	}
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("agent: batch size must be positive, got %d", config.BatchSize)
	}

	window := env.Config().WindowLength
	numAssets := env.Data().NumAssets()
	agent := &Agent{
		config:     config,
		window:     window,
		numAssets:  numAssets,
		inputSize:  model.NumFeatures*numAssets*window + numAssets + 2,
		outputSize: numAssets + 1,
		rng:        rand.New(rand.NewSource(config.Seed)),
	}
	agent.w1 = agent.glorot(agent.inputSize, config.HiddenSize)
	agent.w2 = agent.glorot(config.HiddenSize, agent.outputSize)
	return agent, nil
}

func (a *Agent) glorot(rows, cols int) *mat.Dense {
	limit := math.Sqrt(6 / float64(rows+cols))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (a.rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(rows, cols, data)
}

// input flattens a window and the previous allocation, followed by a constant bias term.
func (a *Agent) input(window [][][]float64, previous []float64) []float64 {
	x := make([]float64, 0, a.inputSize)
	for f := range window {
		for asset := range window[f] {
			x = append(x, window[f][asset]...)
		}
	}
	x = append(x, previous...)
	return append(x, 1)
}

// Predict returns the allocation chosen for state.
func (a *Agent) Predict(state environment.State) []float64 {
	x := mat.NewDense(1, a.inputSize, a.input(state.Window, state.Weights))

	var hidden mat.Dense
	hidden.Mul(x, a.w1)
	hidden.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, &hidden)

	var logits mat.Dense
	logits.Mul(&hidden, a.w2)
	return softmax(mat.Row(nil, 0, &logits))
}

// Policy adapts the agent for environment rollouts.
func (a *Agent) Policy() environment.Policy {
	return a.Predict
}

// InitialWeights is the allocation the agent picks at period t coming from an equally weighted portfolio.
func (a *Agent) InitialWeights(env *environment.TradeEnv, t int) []float64 {
	return a.Predict(environment.State{
		Window:  env.Observe(t),
		Weights: environment.EqualWeights(a.numAssets),
		Period:  t,
	})
}

// explore draws a random allocation.
func (a *Agent) explore() []float64 {
	weights := make([]float64, a.outputSize)
	for i := range weights {
		weights[i] = a.rng.ExpFloat64()
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return weights
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

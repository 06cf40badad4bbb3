package environment

import (
	"errors"
	"fmt"
)

// Policy chooses the allocation for the next period from the current state.
type Policy func(State) []float64

// EqualWeights splits the portfolio evenly across cash and n assets.
func EqualWeights(n int) []float64 {
	weights := make([]float64, n+1)
	for i := range weights {
		weights[i] = 1 / float64(n+1)
	}
	return weights
}

// CashOnly keeps the whole portfolio in cash.
func CashOnly(n int) []float64 {
	weights := make([]float64, n+1)
	weights[0] = 1
	return weights
}

// FullOn invests the whole portfolio in the asset with index asset (0 based, cash excluded).
func FullOn(n, asset int) []float64 {
	weights := make([]float64, n+1)
	weights[asset+1] = 1
	return weights
}

// Constant rebalances to the same allocation every period.
func Constant(weights []float64) Policy {
	return func(State) []float64 {
		return weights
	}
}

// Hold never rebalances, it keeps the drifted weights of the current state.
func Hold() Policy {
	return func(s State) []float64 {
		return s.Weights
	}
}

// Episode is the outcome of a rollout.
type Episode struct {
	Values  []float64
	Weights [][]float64
	Rewards []float64
}

// Rollout resets env at start with weights and follows policy for at most steps periods,
// or until the data runs out when steps <= 0. Values[0] is the initial portfolio value.
func Rollout(env *TradeEnv, start, steps int, weights []float64, policy Policy) (Episode, error) {
	state, err := env.Reset(start, weights)
	if err != nil {
		return Episode{}, err
	}

	episode := Episode{
		Values:  []float64{state.Value},
		Weights: [][]float64{state.Weights},
	}
	for i := 0; steps <= 0 || i < steps; i++ {
		action := policy(state)
		next, reward, err := env.Step(action)
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			return episode, fmt.Errorf("period %d: %w", state.Period, err)
		}

		episode.Values = append(episode.Values, next.Value)
		episode.Weights = append(episode.Weights, action)
		episode.Rewards = append(episode.Rewards, reward)
		state = next
	}
	return episode, nil
}

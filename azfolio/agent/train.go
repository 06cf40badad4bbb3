package agent

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/ezquant/azfolio/azfolio/environment"
	"github.com/ezquant/azfolio/azfolio/model"
	"github.com/ezquant/azfolio/azfolio/tools/log"
)

// EpisodeResult summarises one training episode.
type EpisodeResult struct {
	Episode int
	// Loss is the average batch loss of the episode.
	Loss float64
	// Validation is the final portfolio value of a rollout over the validation set,
	// zero when there is no validation set.
	Validation float64
}

// Train fits the agent on the train set of env. Each episode runs Batches batches of
// BatchSize consecutive periods, then evaluates the agent on the validation set.
func (a *Agent) Train(ctx context.Context, env *environment.TradeEnv, steps model.Steps) ([]EpisodeResult, error) {
	first := env.FirstPeriod()
	// a sample at period t needs the price relatives of t+1, still inside the train set
	span := steps.Train - 1 - first - a.config.BatchSize + 1
	if span < 1 {
		return nil, fmt.Errorf("%w: %d train periods, window %d, batch %d",
			ErrNotEnoughData, steps.Train, env.Config().WindowLength, a.config.BatchSize)
	}

	net, err := newNetwork(a)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := net.close(); err != nil {
			log.WithError(err).Warn("agent: close tape machine")
		}
	}()

	memory := NewMemory(env.Data().Periods(), a.outputSize)
	results := make([]EpisodeResult, 0, a.config.Episodes)

	for episode := 0; episode < a.config.Episodes; episode++ {
		losses := make([]float64, 0, a.config.Batches)
		for batch := 0; batch < a.config.Batches; batch++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}

			start := first + a.rng.Intn(span)
			loss, err := a.trainBatch(net, env, memory, start)
			if err != nil {
				return results, fmt.Errorf("episode %d batch %d: %w", episode, batch, err)
			}
			losses = append(losses, loss)

			if a.OnBatch != nil {
				a.OnBatch(episode, batch, loss)
			}
		}

		net.export(a.w1, a.w2)

		result := EpisodeResult{
			Episode: episode,
			Loss:    lo.Sum(losses) / float64(max(len(losses), 1)),
		}
		if steps.Validation > 1 {
			result.Validation, err = a.validate(env, steps)
			if err != nil {
				return results, err
			}
		}
		results = append(results, result)

		log.WithFields(log.Fields{
			"episode":    episode,
			"loss":       result.Loss,
			"validation": result.Validation,
		}).Info("agent: episode finished")
	}

	return results, nil
}

func (a *Agent) trainBatch(net *network, env *environment.TradeEnv, memory *Memory, start int) (float64, error) {
	x := make([]float64, 0, a.config.BatchSize*a.inputSize)
	y := make([]float64, 0, a.config.BatchSize*a.outputSize)

	for t := start; t < start+a.config.BatchSize; t++ {
		previous := memory.Get(t - 1)
		if a.rng.Float64() < a.config.Epsilon {
			previous = a.explore()
		}
		x = append(x, a.input(env.Observe(t), previous)...)
		y = append(y, env.PriceRelatives(t+1)...)
	}

	weights, loss, err := net.step(x, y)
	if err != nil {
		return 0, err
	}

	for i := 0; i < a.config.BatchSize; i++ {
		memory.Set(start+i, weights[i*a.outputSize:(i+1)*a.outputSize])
	}
	return loss, nil
}

func (a *Agent) validate(env *environment.TradeEnv, steps model.Steps) (float64, error) {
	start := max(steps.Train, env.FirstPeriod())
	if start >= steps.TestStart()-1 {
		return 0, nil
	}

	episode, err := environment.Rollout(env, start, steps.TestStart()-1-start,
		a.InitialWeights(env, start), a.Policy())
	if err != nil {
		return 0, fmt.Errorf("validation rollout: %w", err)
	}
	return episode.Values[len(episode.Values)-1], nil
}

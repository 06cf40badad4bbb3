package environment

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"

	"github.com/ezquant/azfolio/azfolio/model"
)

var (
	ErrDone          = errors.New("environment: episode is done")
	ErrInvalidAction = errors.New("environment: invalid action")
	ErrInvalidStart  = errors.New("environment: invalid start period")
)

const weightTolerance = 1e-6

type Config struct {
	WindowLength int
	InitialValue float64
	TradingCost  float64
	InterestRate float64
}

// State is what the agent observes before choosing an allocation.
type State struct {
	// Window holds features x assets x window prices divided by the last close of each asset.
	Window  [][][]float64
	Weights []float64
	Value   float64
	Period  int
}

// TradeEnv simulates a portfolio of cash plus the tensor assets, rebalanced once per period.
type TradeEnv struct {
	data   *model.PriceTensor
	config Config

	period  int
	value   float64
	weights []float64
}

func New(data *model.PriceTensor, config Config) (*TradeEnv, error) {
	if data == nil || data.NumAssets() == 0 {
		return nil, errors.New("environment: empty price tensor")
	}
	if config.WindowLength < 1 {
		return nil, fmt.Errorf("environment: window length must be positive, got %d", config.WindowLength)
	}
	if config.InitialValue <= 0 {
		return nil, fmt.Errorf("environment: initial value must be positive, got %f", config.InitialValue)
	}
	if config.TradingCost < 0 || config.TradingCost >= 1 {
		return nil, fmt.Errorf("environment: trading cost out of range: %f", config.TradingCost)
	}

	return &TradeEnv{
		data:   data,
		config: config,
	}, nil
}

// Size is the length of a weight vector: cash plus every asset.
func (e *TradeEnv) Size() int {
	return e.data.NumAssets() + 1
}

func (e *TradeEnv) Data() *model.PriceTensor {
	return e.data
}

func (e *TradeEnv) Config() Config {
	return e.config
}

// FirstPeriod is the earliest period with a complete observation window.
func (e *TradeEnv) FirstPeriod() int {
	return e.config.WindowLength - 1
}

func (e *TradeEnv) Value() float64 {
	return e.value
}

func (e *TradeEnv) Period() int {
	return e.period
}

// Reset places the portfolio at period start with the initial value allocated by weights.
func (e *TradeEnv) Reset(start int, weights []float64) (State, error) {
	if start < e.FirstPeriod() || start >= e.data.Periods() {
		return State{}, fmt.Errorf("%w: %d not in [%d, %d)", ErrInvalidStart, start, e.FirstPeriod(), e.data.Periods())
	}
	if err := e.validate(weights); err != nil {
		return State{}, err
	}

	e.period = start
	e.value = e.config.InitialValue
	e.weights = append([]float64(nil), weights...)
	return e.State(), nil
}

// State returns the current observation.
func (e *TradeEnv) State() State {
	return State{
		Window:  e.Observe(e.period),
		Weights: append([]float64(nil), e.weights...),
		Value:   e.value,
		Period:  e.period,
	}
}

// Observe returns the normalised price window ending at period t.
func (e *TradeEnv) Observe(t int) [][][]float64 {
	window := e.config.WindowLength
	from := t - window + 1

	obs := make([][][]float64, model.NumFeatures)
	for f := range obs {
		obs[f] = make([][]float64, e.data.NumAssets())
		for a := range obs[f] {
			last := e.data.Close(a, t)
			obs[f][a] = make([]float64, window)
			for i := 0; i < window; i++ {
				obs[f][a][i] = e.data.Value(f, a, from+i) / last
			}
		}
	}
	return obs
}

// PriceRelatives returns y_t = [1+interest, close_t/close_{t-1}, ...].
func (e *TradeEnv) PriceRelatives(t int) []float64 {
	y := make([]float64, e.Size())
	y[0] = 1 + e.config.InterestRate
	for a := 0; a < e.data.NumAssets(); a++ {
		y[a+1] = e.data.Close(a, t) / e.data.Close(a, t-1)
	}
	return y
}

// Step rebalances the portfolio into action and moves one period forward.
// It returns the next state and the log return of the period.
func (e *TradeEnv) Step(action []float64) (State, float64, error) {
	if e.period+1 >= e.data.Periods() {
		return e.State(), 0, ErrDone
	}
	if err := e.validate(action); err != nil {
		return e.State(), 0, err
	}

	cost := e.config.TradingCost * lo.Sum(lo.Times(len(action)-1, func(i int) float64 {
		return math.Abs(action[i+1] - e.weights[i+1])
	}))

	y := e.PriceRelatives(e.period + 1)
	growth := floats.Dot(y, action)
	factor := (1 - cost) * growth

	e.value *= factor
	e.weights = lo.Map(action, func(w float64, i int) float64 {
		return y[i] * w / growth
	})
	e.period++

	return e.State(), math.Log(factor), nil
}

// Done reports whether there is no period left to step into.
func (e *TradeEnv) Done() bool {
	return e.period+1 >= e.data.Periods()
}

func (e *TradeEnv) validate(weights []float64) error {
	if len(weights) != e.Size() {
		return fmt.Errorf("%w: expected %d weights, got %d", ErrInvalidAction, e.Size(), len(weights))
	}
	if lo.SomeBy(weights, func(w float64) bool { return w < 0 || math.IsNaN(w) }) {
		return fmt.Errorf("%w: negative weight in %v", ErrInvalidAction, weights)
	}
	if sum := lo.Sum(weights); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %f", ErrInvalidAction, sum)
	}
	return nil
}

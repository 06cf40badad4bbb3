package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/samber/lo"
)

var ErrUnknownParameter = errors.New("unknown parameter")

// Parameter 可调优的训练参数，Min/Max/Step 为空时只取 Default
type Parameter struct {
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Default interface{} `yaml:"default"`
	Min     interface{} `yaml:"min"`
	Max     interface{} `yaml:"max"`
	Step    interface{} `yaml:"step"`
}

// Assignment 一组参数取值
type Assignment map[string]float64

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Values 展开参数的取值范围
func (p Parameter) Values() ([]float64, error) {
	min, okMin := toFloat(p.Min)
	max, okMax := toFloat(p.Max)
	if !okMin || !okMax {
		def, ok := toFloat(p.Default)
		if !ok {
			return nil, fmt.Errorf("parameter %s: no default and no range", p.Name)
		}
		return []float64{def}, nil
	}

	step, ok := toFloat(p.Step)
	if !ok || step <= 0 {
		return nil, fmt.Errorf("parameter %s: step must be positive", p.Name)
	}
	if max < min {
		return nil, fmt.Errorf("parameter %s: max %v below min %v", p.Name, max, min)
	}

	count := int(math.Floor((max-min)/step+1e-9)) + 1
	return lo.Times(count, func(i int) float64 {
		v := min + float64(i)*step
		if p.Type == "int" {
			return math.Round(v)
		}
		// 避免 0.1+0.2 这类浮点累积误差
		return math.Round(v*1e9) / 1e9
	}), nil
}

// Grid 返回所有参数取值的笛卡尔积，没有参数时返回一个空的组合
func Grid(params []Parameter) ([]Assignment, error) {
	grid := []Assignment{{}}
	for _, p := range params {
		values, err := p.Values()
		if err != nil {
			return nil, err
		}

		next := make([]Assignment, 0, len(grid)*len(values))
		for _, base := range grid {
			for _, v := range values {
				a := lo.Assign(base, Assignment{p.Name: v})
				next = append(next, a)
			}
		}
		grid = next
	}
	return grid, nil
}

var setters = map[string]func(c *Config, v float64){
	"window_length":            func(c *Config, v float64) { c.WindowLength = int(v) },
	"no_of_episodes":           func(c *Config, v float64) { c.Episodes = int(v) },
	"no_of_batches":            func(c *Config, v float64) { c.Batches = int(v) },
	"batch_size":               func(c *Config, v float64) { c.BatchSize = int(v) },
	"hidden_size":              func(c *Config, v float64) { c.HiddenSize = int(v) },
	"learning_rate":            func(c *Config, v float64) { c.LearningRate = v },
	"epsilon_greedy_threshold": func(c *Config, v float64) { c.Epsilon = v },
	"max_weight_penalty":       func(c *Config, v float64) { c.MaxWeightPenalty = v },
	"trading_cost":             func(c *Config, v float64) { c.TradingCost = v },
	"interest_rate":            func(c *Config, v float64) { c.InterestRate = v },
}

// Apply 返回应用了参数组合后的配置副本
func (c Config) Apply(a Assignment) (Config, error) {
	for name, v := range a {
		set, ok := setters[name]
		if !ok {
			return c, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
		set(&c, v)
	}
	return c, nil
}

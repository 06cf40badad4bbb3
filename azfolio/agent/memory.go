package agent

import (
	"github.com/ezquant/azfolio/azfolio/environment"
)

// Memory keeps the last allocation chosen at every period of the data set.
// Training batches read the previous period from it and write their new outputs back.
type Memory struct {
	weights [][]float64
}

func NewMemory(periods, size int) *Memory {
	memory := &Memory{weights: make([][]float64, periods)}
	for t := range memory.weights {
		memory.weights[t] = environment.EqualWeights(size - 1)
	}
	return memory
}

func (m *Memory) Get(t int) []float64 {
	if t < 0 {
		t = 0
	}
	return m.weights[t]
}

func (m *Memory) Set(t int, weights []float64) {
	m.weights[t] = append([]float64(nil), weights...)
}

func (m *Memory) Len() int {
	return len(m.weights)
}

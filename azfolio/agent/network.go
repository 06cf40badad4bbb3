package agent

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// network is the differentiable copy of the agent used for training. The loss of a batch is
// -mean(log(sum(w*y))) + penalty*mean(sum(w^2)) where w is the predicted allocation and y the
// price relatives of the following period.
type network struct {
	batch      int
	inputSize  int
	outputSize int

	g       *gorgonia.ExprGraph
	x       *gorgonia.Node
	y       *gorgonia.Node
	w1      *gorgonia.Node
	w2      *gorgonia.Node
	weights *gorgonia.Node
	loss    *gorgonia.Node

	vm     gorgonia.VM
	solver gorgonia.Solver
}

func newNetwork(a *Agent) (*network, error) {
	n := &network{
		batch:      a.config.BatchSize,
		inputSize:  a.inputSize,
		outputSize: a.outputSize,
		g:          gorgonia.NewGraph(),
	}

	n.x = gorgonia.NewMatrix(n.g, tensor.Float64, gorgonia.WithShape(n.batch, n.inputSize), gorgonia.WithName("x"))
	n.y = gorgonia.NewMatrix(n.g, tensor.Float64, gorgonia.WithShape(n.batch, n.outputSize), gorgonia.WithName("y"))
	n.w1 = gorgonia.NewMatrix(n.g, tensor.Float64, gorgonia.WithShape(a.inputSize, a.config.HiddenSize),
		gorgonia.WithName("w1"), gorgonia.WithValue(toTensor(a.w1)))
	n.w2 = gorgonia.NewMatrix(n.g, tensor.Float64, gorgonia.WithShape(a.config.HiddenSize, a.outputSize),
		gorgonia.WithName("w2"), gorgonia.WithValue(toTensor(a.w2)))

	if err := n.build(a.config.Penalty); err != nil {
		return nil, fmt.Errorf("agent: build graph: %w", err)
	}

	if _, err := gorgonia.Grad(n.loss, n.learnables()...); err != nil {
		return nil, fmt.Errorf("agent: gradients: %w", err)
	}

	n.vm = gorgonia.NewTapeMachine(n.g, gorgonia.BindDualValues(n.learnables()...))
	n.solver = gorgonia.NewAdamSolver(gorgonia.WithLearnRate(a.config.LearningRate))
	return n, nil
}

func (n *network) build(penalty float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	hidden := gorgonia.Must(gorgonia.Rectify(gorgonia.Must(gorgonia.Mul(n.x, n.w1))))
	logits := gorgonia.Must(gorgonia.Mul(hidden, n.w2))
	n.weights = gorgonia.Must(gorgonia.SoftMax(logits))

	growth := gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.HadamardProd(n.weights, n.y)), 1))
	logReturn := gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Log(growth))))

	concentration := gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.Square(n.weights)), 1))))
	regularization := gorgonia.Must(gorgonia.Mul(gorgonia.NewConstant(penalty), concentration))

	n.loss = gorgonia.Must(gorgonia.Sub(regularization, logReturn))
	return nil
}

func (n *network) learnables() gorgonia.Nodes {
	return gorgonia.Nodes{n.w1, n.w2}
}

// step runs one batch forward and backward and updates the weights.
// It returns the allocations predicted for the batch, row major, and the batch loss.
func (n *network) step(x, y []float64) ([]float64, float64, error) {
	defer n.vm.Reset()

	if err := gorgonia.Let(n.x, tensor.New(tensor.WithShape(n.batch, n.inputSize), tensor.WithBacking(x))); err != nil {
		return nil, 0, err
	}
	if err := gorgonia.Let(n.y, tensor.New(tensor.WithShape(n.batch, n.outputSize), tensor.WithBacking(y))); err != nil {
		return nil, 0, err
	}
	if err := n.vm.RunAll(); err != nil {
		return nil, 0, err
	}

	weights := append([]float64(nil), n.weights.Value().Data().([]float64)...)
	loss, ok := n.loss.Value().Data().(float64)
	if !ok {
		return nil, 0, fmt.Errorf("agent: unexpected loss value %v", n.loss.Value())
	}

	if err := n.solver.Step(gorgonia.NodesToValueGrads(n.learnables())); err != nil {
		return nil, 0, err
	}
	return weights, loss, nil
}

// export copies the trained values back into the inference matrices.
func (n *network) export(w1, w2 *mat.Dense) {
	w1.Copy(fromTensor(n.w1.Value()))
	w2.Copy(fromTensor(n.w2.Value()))
}

func (n *network) close() error {
	return n.vm.Close()
}

func toTensor(m *mat.Dense) *tensor.Dense {
	rows, cols := m.Dims()
	backing := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		backing = append(backing, m.RawRowView(i)...)
	}
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
}

func fromTensor(v gorgonia.Value) *mat.Dense {
	shape := v.Shape()
	data := append([]float64(nil), v.Data().([]float64)...)
	return mat.NewDense(shape[0], shape[1], data)
}

// Package neural provides feedforward neural network brains for sweepers.
package neural

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/sweepers/config"
)

// ErrWeightCount is returned when a weight vector does not match the network size.
var ErrWeightCount = errors.New("neural: weight count mismatch")

// Topology describes the network shape and activation.
type Topology struct {
	Inputs             int
	Hidden             []int
	Outputs            int
	Bias               float64 // Value fed to every neuron's bias weight
	ActivationResponse float64 // Sigmoid temperature
}

// TopologyFromConfig builds a Topology from neural config.
func TopologyFromConfig(cfg config.NeuralConfig) Topology {
	return Topology{
		Inputs:             cfg.Inputs,
		Hidden:             append([]int(nil), cfg.HiddenLayers...),
		Outputs:            cfg.Outputs,
		Bias:               cfg.Bias,
		ActivationResponse: cfg.ActivationResponse,
	}
}

// NumWeights returns the total number of weights for the topology.
func (t Topology) NumWeights() int {
	n := 0
	in := t.Inputs
	for _, h := range t.Hidden {
		n += h * (in + 1)
		in = h
	}
	return n + t.Outputs*(in+1)
}

// layer is one fully connected layer. Each row is one neuron: its input
// weights followed by its bias weight.
type layer struct {
	w    *mat.Dense
	data []float64 // backing storage of w, row-major
	in   []float64 // scratch input with the bias appended
	out  mat.VecDense
}

func newLayer(neurons, inputs int) *layer {
	data := make([]float64, neurons*(inputs+1))
	return &layer{
		w:    mat.NewDense(neurons, inputs+1, data),
		data: data,
		in:   make([]float64, inputs+1),
	}
}

// FFNN is a layered sigmoid feedforward network.
type FFNN struct {
	topo   Topology
	layers []*layer
}

// NewFFNN creates a network with weights drawn uniformly from [-1, 1].
func NewFFNN(rng *rand.Rand, topo Topology) *FFNN {
	nn := &FFNN{topo: topo}
	in := topo.Inputs
	for _, h := range topo.Hidden {
		nn.layers = append(nn.layers, newLayer(h, in))
		in = h
	}
	nn.layers = append(nn.layers, newLayer(topo.Outputs, in))

	for _, l := range nn.layers {
		for i := range l.data {
			l.data[i] = rng.Float64()*2 - 1
		}
	}
	return nn
}

// Topology returns the network shape.
func (nn *FFNN) Topology() Topology {
	return nn.topo
}

// NumWeights returns the number of weights including biases.
func (nn *FFNN) NumWeights() int {
	n := 0
	for _, l := range nn.layers {
		n += len(l.data)
	}
	return n
}

// Weights returns a flattened copy of all weights, layer by layer, neuron by neuron.
func (nn *FFNN) Weights() []float64 {
	out := make([]float64, 0, nn.NumWeights())
	for _, l := range nn.layers {
		out = append(out, l.data...)
	}
	return out
}

// PutWeights replaces all weights from a flattened vector in Weights order.
func (nn *FFNN) PutWeights(weights []float64) error {
	if len(weights) != nn.NumWeights() {
		return fmt.Errorf("%w: got %d, want %d", ErrWeightCount, len(weights), nn.NumWeights())
	}
	off := 0
	for _, l := range nn.layers {
		off += copy(l.data, weights[off:])
	}
	return nil
}

// Update runs a forward pass. Returns nil if inputs has the wrong length.
// Every output is a sigmoid in (0, 1).
func (nn *FFNN) Update(inputs []float64) []float64 {
	if len(inputs) != nn.topo.Inputs {
		return nil
	}

	x := inputs
	for _, l := range nn.layers {
		copy(l.in, x)
		l.in[len(l.in)-1] = nn.topo.Bias

		l.out.MulVec(l.w, mat.NewVecDense(len(l.in), l.in))

		raw := l.out.RawVector().Data
		next := make([]float64, len(raw))
		for i, v := range raw {
			next[i] = sigmoid(v, nn.topo.ActivationResponse)
		}
		x = next
	}
	return x
}

// Clone creates a deep copy of the network.
func (nn *FFNN) Clone() *FFNN {
	clone := &FFNN{topo: nn.topo}
	clone.topo.Hidden = append([]int(nil), nn.topo.Hidden...)
	for _, l := range nn.layers {
		rows, cols := l.w.Dims()
		cl := newLayer(rows, cols-1)
		copy(cl.data, l.data)
		clone.layers = append(clone.layers, cl)
	}
	return clone
}

func sigmoid(netInput, response float64) float64 {
	return 1 / (1 + math.Exp(-netInput/response))
}

package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Predictor maps a window of normalized indices to a probability
// distribution over the vocabulary.
type Predictor interface {
	Predict(ctx context.Context, window []float64) ([]float64, error)
}

// DenseModel runs an Artifact as a gorgonia expression graph. The graph is
// built once and re-run for every prediction.
type DenseModel struct {
	mu     sync.Mutex
	seqLen int
	vocab  int
	g      *gorgonia.ExprGraph
	x      *gorgonia.Node
	probs  *gorgonia.Node
	vm     gorgonia.VM
}

// NewDenseModel compiles the artifact into a graph.
func NewDenseModel(a *Artifact) (*DenseModel, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	g := gorgonia.NewGraph()
	// The window enters as (batch, steps, features) and is flattened to a
	// single row before the first dense layer.
	x := gorgonia.NewTensor(g, tensor.Float64, 3,
		gorgonia.WithShape(1, a.SequenceLength, 1),
		gorgonia.WithName("window"))

	h, err := gorgonia.Reshape(x, tensor.Shape{1, a.SequenceLength})
	if err != nil {
		return nil, fmt.Errorf("flattening window: %w", err)
	}
	for i, l := range a.Layers {
		w := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(l.Rows, l.Cols),
			gorgonia.WithName(fmt.Sprintf("w%d", i)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(l.Rows, l.Cols), tensor.WithBacking(cloneFloats(l.Weights)))))
		b := gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(1, l.Cols),
			gorgonia.WithName(fmt.Sprintf("b%d", i)),
			gorgonia.WithValue(tensor.New(tensor.WithShape(1, l.Cols), tensor.WithBacking(cloneFloats(l.Bias)))))

		xw, err := gorgonia.Mul(h, w)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if h, err = gorgonia.Add(xw, b); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if h, err = activate(h, l.Activation); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	probs, err := gorgonia.SoftMax(h)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}

	return &DenseModel{
		seqLen: a.SequenceLength,
		vocab:  a.VocabSize,
		g:      g,
		x:      x,
		probs:  probs,
		vm:     gorgonia.NewTapeMachine(g),
	}, nil
}

func activate(n *gorgonia.Node, name string) (*gorgonia.Node, error) {
	switch name {
	case ActivationReLU:
		return gorgonia.Rectify(n)
	case ActivationTanh:
		return gorgonia.Tanh(n)
	case ActivationSigmoid:
		return gorgonia.Sigmoid(n)
	default:
		return n, nil
	}
}

// Predict runs one forward pass.
func (m *DenseModel) Predict(ctx context.Context, window []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(window) != m.seqLen {
		return nil, fmt.Errorf("%w: window of %d, model expects %d", models.ErrModelMismatch, len(window), m.seqLen)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.vm.Reset()

	in := tensor.New(tensor.WithShape(1, m.seqLen, 1), tensor.WithBacking(cloneFloats(window)))
	if err := gorgonia.Let(m.x, in); err != nil {
		return nil, fmt.Errorf("binding window: %w", err)
	}
	if err := m.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	data, ok := m.probs.Value().Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", m.probs.Value().Data())
	}
	return cloneFloats(data), nil
}

func (m *DenseModel) VocabSize() int { return m.vocab }

// InputShape is the shape a window is bound with: (1, sequence length, 1).
func (m *DenseModel) InputShape() tensor.Shape { return m.x.Shape().Clone() }

// Close releases the tape machine.
func (m *DenseModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vm.Close()
}

func cloneFloats(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

// Package model holds the sequence model contract and a dense feed-forward
// predictor loaded from a gob artifact and executed with gorgonia.
package model

import (
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// FormatVersion is bumped whenever the artifact layout changes.
const FormatVersion = 1

// Supported activations.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
)

// Layer is a dense layer: out = act(in · W + b). Weights are row-major
// Rows×Cols.
type Layer struct {
	Rows       int
	Cols       int
	Weights    []float64
	Bias       []float64
	Activation string
}

// Artifact is the on-disk model. VocabHash binds it to the vocabulary
// ordering it was trained against.
type Artifact struct {
	Format         int
	SequenceLength int
	VocabSize      int
	VocabHash      string
	Layers         []Layer
}

// Validate checks that the layers chain from the window to the vocabulary.
func (a *Artifact) Validate() error {
	if a.Format != FormatVersion {
		return fmt.Errorf("%w: artifact format %d, want %d", models.ErrModelMismatch, a.Format, FormatVersion)
	}
	if len(a.Layers) == 0 {
		return fmt.Errorf("%w: artifact has no layers", models.ErrModelMismatch)
	}

	in := a.SequenceLength
	for i, l := range a.Layers {
		if l.Rows != in {
			return fmt.Errorf("%w: layer %d expects %d inputs, got %d", models.ErrModelMismatch, i, l.Rows, in)
		}
		if l.Cols <= 0 || len(l.Weights) != l.Rows*l.Cols || len(l.Bias) != l.Cols {
			return fmt.Errorf("%w: layer %d has inconsistent dimensions", models.ErrModelMismatch, i)
		}
		switch l.Activation {
		case ActivationLinear, ActivationReLU, ActivationTanh, ActivationSigmoid:
		default:
			return fmt.Errorf("%w: layer %d has unknown activation %q", models.ErrModelMismatch, i, l.Activation)
		}
		in = l.Cols
	}
	if in != a.VocabSize {
		return fmt.Errorf("%w: model emits %d classes for a vocabulary of %d", models.ErrModelMismatch, in, a.VocabSize)
	}
	return nil
}

// CheckCompatible reports whether the artifact was built for v and seqLen.
func (a *Artifact) CheckCompatible(v *vocab.Vocabulary, seqLen int) error {
	if a.SequenceLength != seqLen {
		return fmt.Errorf("%w: model window %d, pipeline window %d", models.ErrModelMismatch, a.SequenceLength, seqLen)
	}
	if a.VocabSize != v.Size() {
		return fmt.Errorf("%w: model vocabulary %d, corpus vocabulary %d", models.ErrModelMismatch, a.VocabSize, v.Size())
	}
	if a.VocabHash != v.Hash() {
		return fmt.Errorf("%w: vocabulary fingerprint differs", models.ErrModelMismatch)
	}
	return a.Validate()
}

// Load reads a gob artifact from path.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", models.ErrModelMismatch, path, err)
	}
	return &a, nil
}

// Save writes the artifact to path, replacing any existing file.
func (a *Artifact) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model %s: %w", path, err)
	}
	if err := gob.NewEncoder(f).Encode(a); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return f.Close()
}

// NewRandomArtifact builds an untrained artifact bound to v with Glorot
// uniform weights. hidden lists the widths of the ReLU layers between the
// window and the output.
func NewRandomArtifact(v *vocab.Vocabulary, seqLen int, hidden []int, rng *rand.Rand) *Artifact {
	a := &Artifact{
		Format:         FormatVersion,
		SequenceLength: seqLen,
		VocabSize:      v.Size(),
		VocabHash:      v.Hash(),
	}

	widths := append(append([]int{seqLen}, hidden...), v.Size())
	for i := 0; i+1 < len(widths); i++ {
		rows, cols := widths[i], widths[i+1]
		limit := math.Sqrt(6 / float64(rows+cols))

		l := Layer{
			Rows:       rows,
			Cols:       cols,
			Weights:    make([]float64, rows*cols),
			Bias:       make([]float64, cols),
			Activation: ActivationReLU,
		}
		for j := range l.Weights {
			l.Weights[j] = (rng.Float64()*2 - 1) * limit
		}
		a.Layers = append(a.Layers, l)
	}
	a.Layers[len(a.Layers)-1].Activation = ActivationLinear
	return a
}

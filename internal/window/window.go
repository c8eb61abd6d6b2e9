// Package window slices an index stream into fixed-length rolling windows
// of normalized vocabulary indices, paired with the index that follows.
package window

import (
	"fmt"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"gorgonia.org/tensor"
)

// SequenceLength is the number of past events the model sees.
const SequenceLength = 25

// Window is a run of normalized indices, each k/|V|.
type Window []float64

// Rand is the part of math/rand/v2 the start picker needs.
type Rand interface {
	IntN(n int) int
}

// Dataset holds every (window, target) pair of an index stream.
type Dataset struct {
	indices   []int
	vocabSize int
	seqLen    int
}

// Encode prepares the windows of indices. Start offsets run over
// [0, len(indices)-seqLen); a stream no longer than seqLen yields none.
func Encode(indices []int, vocabSize, seqLen int) (*Dataset, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("%w: vocabulary is empty", models.ErrBadInput)
	}
	if seqLen <= 0 {
		return nil, fmt.Errorf("%w: sequence length %d", models.ErrBadInput, seqLen)
	}
	for i, k := range indices {
		if k < 0 || k >= vocabSize {
			return nil, fmt.Errorf("%w: index %d at position %d outside vocabulary of %d", models.ErrBadInput, k, i, vocabSize)
		}
	}
	return &Dataset{indices: indices, vocabSize: vocabSize, seqLen: seqLen}, nil
}

// Len is the number of windows.
func (d *Dataset) Len() int {
	if n := len(d.indices) - d.seqLen; n > 0 {
		return n
	}
	return 0
}

func (d *Dataset) SequenceLength() int { return d.seqLen }

func (d *Dataset) VocabSize() int { return d.vocabSize }

// Window returns the normalized indices [i, i+seqLen).
func (d *Dataset) Window(i int) Window {
	w := make(Window, d.seqLen)
	for j := range w {
		w[j] = float64(d.indices[i+j]) / float64(d.vocabSize)
	}
	return w
}

// Target returns the raw index that follows window i.
func (d *Dataset) Target(i int) int {
	return d.indices[i+d.seqLen]
}

// Inputs stacks every window into an (n, seqLen, 1) tensor.
func (d *Dataset) Inputs() *tensor.Dense {
	n := d.Len()
	backing := make([]float64, 0, n*d.seqLen)
	for i := 0; i < n; i++ {
		backing = append(backing, d.Window(i)...)
	}
	return tensor.New(tensor.WithShape(n, d.seqLen, 1), tensor.WithBacking(backing))
}

// Targets one-hot encodes every target into an (n, |V|) tensor.
func (d *Dataset) Targets() *tensor.Dense {
	n := d.Len()
	backing := make([]float64, n*d.vocabSize)
	for i := 0; i < n; i++ {
		backing[i*d.vocabSize+d.Target(i)] = 1
	}
	return tensor.New(tensor.WithShape(n, d.vocabSize), tensor.WithBacking(backing))
}

// PickStart draws a start offset uniformly from [0, Len()).
func (d *Dataset) PickStart(rng Rand) (int, error) {
	n := d.Len()
	if n == 0 {
		return 0, fmt.Errorf("%w: %d events, need more than %d", models.ErrCorpusTooShort, len(d.indices), d.seqLen)
	}
	return rng.IntN(n), nil
}

// Seed picks a start offset and returns the window there.
func (d *Dataset) Seed(rng Rand) (int, Window, error) {
	start, err := d.PickStart(rng)
	if err != nil {
		return 0, nil, err
	}
	return start, d.Window(start), nil
}

// Package decode extends a seed window by repeatedly asking the model for
// the most likely next event.
package decode

import (
	"context"
	"fmt"
	"math"

	"github.com/himanishpuri/MusicWeaver/internal/model"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/internal/window"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// Steps is the number of events a generation produces.
const Steps = 100

// Decoder runs greedy autoregressive decoding.
type Decoder struct {
	model  model.Predictor
	vocab  *vocab.Vocabulary
	seqLen int
	steps  int
}

func New(p model.Predictor, v *vocab.Vocabulary) *Decoder {
	return &Decoder{model: p, vocab: v, seqLen: window.SequenceLength, steps: Steps}
}

// Run returns exactly Steps events. Each step feeds the current window to
// the model, takes the argmax, then drops the oldest value and appends the
// normalized index of the pick.
func (d *Decoder) Run(ctx context.Context, seed window.Window) ([]vocab.Event, error) {
	if len(seed) != d.seqLen {
		return nil, fmt.Errorf("%w: seed window of %d, want %d", models.ErrModelMismatch, len(seed), d.seqLen)
	}

	cur := make([]float64, d.seqLen)
	copy(cur, seed)

	trace := make([]vocab.Event, 0, d.steps)
	for step := 0; step < d.steps; step++ {
		probs, err := d.model.Predict(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if len(probs) != d.vocab.Size() {
			return nil, fmt.Errorf("%w: step %d: model returned %d probabilities for a vocabulary of %d",
				models.ErrModelMismatch, step, len(probs), d.vocab.Size())
		}

		k := Argmax(probs)
		ev, ok := d.vocab.At(k)
		if !ok {
			return nil, fmt.Errorf("%w: step %d: no finite probability", models.ErrModelMismatch, step)
		}
		trace = append(trace, ev)

		copy(cur, cur[1:])
		cur[d.seqLen-1] = d.vocab.Normalize(k)
	}
	return trace, nil
}

// Argmax returns the index of the largest value, the first one on ties.
// NaNs are ignored; -1 means there was nothing to pick.
func Argmax(p []float64) int {
	best := -1
	for i, v := range p {
		if math.IsNaN(v) {
			continue
		}
		if best < 0 || v > p[best] {
			best = i
		}
	}
	return best
}

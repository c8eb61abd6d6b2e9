// Package reconstruct rebuilds a note/chord timeline from a decoded trace
// and serializes it as a Standard MIDI File.
package reconstruct

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/MusicWeaver/internal/pitch"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// Skip records an event that produced no timeline change.
type Skip struct {
	Position int
	Event    vocab.Event
	Err      error
}

// Timeline is the ordered output of a reconstruction. Elements play back to
// back in slice order.
type Timeline struct {
	Elements []Element
	Skipped  []Skip
}

// Rebuild consumes the trace in order. Invalid pitch tokens are skipped and
// listed in Skipped; a continuation with no previous element is fatal.
func Rebuild(trace []vocab.Event) (*Timeline, error) {
	t := &Timeline{Elements: make([]Element, 0, len(trace))}

	for i, ev := range trace {
		if ev.IsContinuation() {
			if len(t.Elements) == 0 {
				return nil, fmt.Errorf("%w: event %d", models.ErrOrphanContinuation, i)
			}
			t.Elements[len(t.Elements)-1].Duration = ev.Duration
			continue
		}

		var (
			el  Element
			err error
		)
		if pitch.IsChord(ev.Token) {
			el, err = BuildChord(ev.Token, ev.Duration)
		} else {
			el, err = BuildNote(ev.Token, ev.Duration)
		}

		if err != nil {
			var cerr *ConstructionError
			if !errors.As(err, &cerr) {
				return nil, err
			}
			t.Skipped = append(t.Skipped, Skip{Position: i, Event: ev, Err: cerr})
			continue
		}
		t.Elements = append(t.Elements, el)
	}

	return t, nil
}

// Length is the total duration of the timeline in quarter notes.
func (t *Timeline) Length() float64 {
	var total float64
	for _, el := range t.Elements {
		total += el.Duration
	}
	return total
}

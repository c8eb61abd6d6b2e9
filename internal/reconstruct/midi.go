package reconstruct

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	TicksPerQuarter = 10080
	Channel         = 0
	Velocity        = 90

	// MaxDeltaTicks is the largest delta time a variable-length quantity
	// in a Standard MIDI File can hold.
	MaxDeltaTicks = 0x0FFFFFFF
)

// ErrDurationTooLong is returned for elements longer than one SMF delta.
var ErrDurationTooLong = errors.New("element duration exceeds MIDI delta range")

type noteEdge struct {
	tick uint64
	on   bool
	key  uint8
}

// SMF lays the elements out back to back on a single track.
func (t *Timeline) SMF() (*smf.SMF, error) {
	var (
		edges  []noteEdge
		cursor uint64
	)
	for i, el := range t.Elements {
		ticks := math.Round(el.Duration * TicksPerQuarter)
		if ticks > MaxDeltaTicks || math.IsNaN(ticks) {
			return nil, fmt.Errorf("%w: element %d (%s) lasts %v quarters", ErrDurationTooLong, i, el.Token, el.Duration)
		}
		if ticks <= 0 {
			continue
		}
		length := uint64(ticks)
		for _, k := range el.Keys {
			edges = append(edges, noteEdge{tick: cursor, on: true, key: k}, noteEdge{tick: cursor + length, key: k})
		}
		cursor += length
	}

	// Releases go before attacks on the same tick so repeated keys retrigger.
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].tick != edges[j].tick {
			return edges[i].tick < edges[j].tick
		}
		return !edges[i].on && edges[j].on
	})

	var (
		tr   smf.Track
		last uint64
	)
	// Consecutive edges are never further apart than one element, so every
	// delta fits once element lengths are bounded.
	for _, e := range edges {
		delta := uint32(e.tick - last)
		last = e.tick
		if e.on {
			tr.Add(delta, midi.NoteOn(Channel, e.key, Velocity))
		} else {
			tr.Add(delta, midi.NoteOff(Channel, e.key))
		}
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("adding track: %w", err)
	}
	return s, nil
}

// WriteTo serializes the timeline as a MIDI byte stream.
func (t *Timeline) WriteTo(w io.Writer) (int64, error) {
	s, err := t.SMF()
	if err != nil {
		return 0, err
	}
	return s.WriteTo(w)
}

// WriteFile writes the timeline to path.
func (t *Timeline) WriteFile(path string) error {
	s, err := t.SMF()
	if err != nil {
		return err
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("writing MIDI %s: %w", path, err)
	}
	return nil
}

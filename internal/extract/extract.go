// Package extract turns a Standard MIDI File into the ordered
// (token, duration) events the vocabulary is built from.
package extract

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/himanishpuri/MusicWeaver/internal/pitch"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Result holds the two parallel sequences found in a file.
type Result struct {
	Tokens    []string
	Durations []float64
	// Dropped counts notes whose quantized length was zero and single
	// notes below pitch.MinNamedKey.
	Dropped int
}

// Events zips Tokens and Durations.
func (r *Result) Events() []vocab.Event {
	out := make([]vocab.Event, len(r.Tokens))
	for i := range r.Tokens {
		out[i] = vocab.Onset(r.Tokens[i], r.Durations[i])
	}
	return out
}

type sounding struct {
	track int
	start uint64
	end   uint64
	key   uint8
}

type noteKey struct {
	channel uint8
	key     uint8
}

// FromFile parses the MIDI file at path.
func FromFile(path string) (*Result, error) {
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing MIDI %s: %v", models.ErrBadInput, path, err)
	}
	return fromSMF(s)
}

// FromReader parses a MIDI byte stream.
func FromReader(r io.Reader) (*Result, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing MIDI: %v", models.ErrBadInput, err)
	}
	return fromSMF(s)
}

func fromSMF(s *smf.SMF) (*Result, error) {
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fmt.Errorf("%w: only metrical time formats are supported", models.ErrBadInput)
	}

	var notes []sounding
	for ti, track := range s.Tracks {
		notes = append(notes, collectNotes(ti, track)...)
	}

	return group(notes, float64(ticks)), nil
}

// collectNotes pairs note starts with their ends. Overlapping notes on the
// same key and channel are closed first-in first-out; notes still sounding at
// the end of the track end there.
func collectNotes(ti int, track smf.Track) []sounding {
	var (
		out    []sounding
		now    uint64
		active = make(map[noteKey][]uint64)
	)

	for _, ev := range track {
		now += uint64(ev.Delta)

		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
			nk := noteKey{ch, key}
			active[nk] = append(active[nk], now)
			continue
		case ev.Message.GetNoteOn(&ch, &key, &vel), ev.Message.GetNoteOff(&ch, &key, &vel):
		default:
			continue
		}

		nk := noteKey{ch, key}
		starts := active[nk]
		if len(starts) == 0 {
			continue
		}
		out = append(out, sounding{track: ti, start: starts[0], end: now, key: key})
		active[nk] = starts[1:]
	}

	for nk, starts := range active {
		for _, st := range starts {
			out = append(out, sounding{track: ti, start: st, end: now, key: nk.key})
		}
	}
	return out
}

type onset struct {
	track int
	start uint64
}

// group merges notes that start together in the same track into chords and
// emits everything in score order.
func group(notes []sounding, ticksPerQuarter float64) *Result {
	byOnset := make(map[onset][]sounding)
	var order []onset
	for _, n := range notes {
		o := onset{n.track, n.start}
		if _, ok := byOnset[o]; !ok {
			order = append(order, o)
		}
		byOnset[o] = append(byOnset[o], n)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].start != order[j].start {
			return order[i].start < order[j].start
		}
		return order[i].track < order[j].track
	})

	res := &Result{}
	for _, o := range order {
		members := byOnset[o]

		var longest uint64
		keys := make([]uint8, 0, len(members))
		seen := make(map[uint8]bool, len(members))
		for _, m := range members {
			if m.end-m.start > longest {
				longest = m.end - m.start
			}
			if !seen[m.key] {
				seen[m.key] = true
				keys = append(keys, m.key)
			}
		}

		d := Quantize(float64(longest) / ticksPerQuarter)
		if d == 0 {
			res.Dropped++
			continue
		}

		var token string
		switch {
		case len(keys) > 1:
			token = pitch.ChordToken(keys)
		case pitch.Nameable(keys[0]):
			token = pitch.Name(keys[0])
		default:
			res.Dropped++
			continue
		}
		res.Tokens = append(res.Tokens, token)
		res.Durations = append(res.Durations, d)
	}
	return res
}

// Quantize snaps a quarter length to the nearest multiple of 1/4 or 1/3.
// On a tie the quarter grid wins.
func Quantize(ql float64) float64 {
	q4 := math.Round(ql*4) / 4
	q3 := math.Round(ql*3) / 3
	if math.Abs(ql-q3) < math.Abs(ql-q4) {
		return q3
	}
	return q4
}

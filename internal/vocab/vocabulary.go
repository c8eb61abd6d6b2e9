package vocab

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// Vocabulary is the sorted, deduplicated set of events seen in training.
// An event's index is its rank. It is immutable once built and safe to
// share between goroutines.
type Vocabulary struct {
	entries []Event
	index   map[Event]int
	hash    string
}

// Build deduplicates and sorts events into a Vocabulary. The same
// multiset of events always yields the same ordering.
func Build(events []Event) *Vocabulary {
	seen := make(map[Event]struct{}, len(events))
	entries := make([]Event, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })

	index := make(map[Event]int, len(entries))
	for i, e := range entries {
		index[e] = i
	}

	return &Vocabulary{
		entries: entries,
		index:   index,
		hash:    fingerprint(entries),
	}
}

func fingerprint(entries []Event) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.Token))
		h.Write([]byte{'\t'})
		h.Write([]byte(strconv.FormatFloat(e.Duration, 'g', -1, 64)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (v *Vocabulary) Size() int {
	return len(v.entries)
}

// IndexOf returns the class index of e.
func (v *Vocabulary) IndexOf(e Event) (int, bool) {
	i, ok := v.index[e]
	return i, ok
}

// At returns the event with class index k.
func (v *Vocabulary) At(k int) (Event, bool) {
	if k < 0 || k >= len(v.entries) {
		return Event{}, false
	}
	return v.entries[k], true
}

// Normalize maps a class index into [0, 1) for model input.
func (v *Vocabulary) Normalize(k int) float64 {
	return float64(k) / float64(len(v.entries))
}

// Indices maps a stream to class indices. Events that are not part of the
// vocabulary are returned separately, in stream order.
func (v *Vocabulary) Indices(stream []Event) ([]int, []Event) {
	out := make([]int, 0, len(stream))
	var missing []Event
	for _, e := range stream {
		i, ok := v.index[e]
		if !ok {
			missing = append(missing, e)
			continue
		}
		out = append(out, i)
	}
	return out, missing
}

// Hash is a SHA-256 fingerprint of the ordered entries. Model artifacts
// store it to prove they were trained against this exact ordering.
func (v *Vocabulary) Hash() string {
	return v.hash
}

// Events returns a copy of the ordered entries.
func (v *Vocabulary) Events() []Event {
	out := make([]Event, len(v.entries))
	copy(out, v.entries)
	return out
}

package reconstruct

import (
	"fmt"

	"github.com/himanishpuri/MusicWeaver/internal/pitch"
)

// Element is one note or chord on the output timeline.
type Element struct {
	Token    string
	Keys     []uint8
	Duration float64
}

func (e Element) IsChord() bool {
	return len(e.Keys) > 1 || pitch.IsChord(e.Token)
}

// PitchClasses lists the pitch class of every key, in key order.
func (e Element) PitchClasses() []int {
	pcs := make([]int, len(e.Keys))
	for i, k := range e.Keys {
		pcs[i] = int(k % 12)
	}
	return pcs
}

// ConstructionError reports a token that cannot become a note or chord.
type ConstructionError struct {
	Token string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("cannot build %q: %v", e.Token, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// BuildNote creates a single-note element from a pitch name.
func BuildNote(token string, duration float64) (Element, error) {
	key, err := pitch.Parse(token)
	if err != nil {
		return Element{}, &ConstructionError{Token: token, Err: err}
	}
	return Element{Token: token, Keys: []uint8{key}, Duration: duration}, nil
}

// BuildChord creates a chord element spanning the listed pitch classes,
// every member carrying the same duration.
func BuildChord(token string, duration float64) (Element, error) {
	keys, err := pitch.ParseChord(token)
	if err != nil {
		return Element{}, &ConstructionError{Token: token, Err: err}
	}

	uniq := keys[:0]
	seen := make(map[uint8]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	return Element{Token: token, Keys: uniq, Duration: duration}, nil
}

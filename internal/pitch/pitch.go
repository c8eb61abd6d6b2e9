// Package pitch converts between MIDI key numbers and the textual tokens
// used by the vocabulary: pitch names such as "C#4" and chord tokens such
// as "0.4.7".
package pitch

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultOctave is used for pitch names without an octave and for chord
// pitch classes.
const DefaultOctave = 4

// MinNamedKey is the lowest key with a name Parse reads back. Below it the
// octave is negative and its minus sign reads as a flat.
const MinNamedKey = 12

var names = [12]string{"C", "C#", "D", "E-", "E", "F", "F#", "G", "G#", "A", "B-", "B"}

var steps = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

var errEmpty = errors.New("empty pitch name")

// Name spells a MIDI key with sharps for C, F, G and flats for E, B.
// Middle C (60) is "C4". Keys below MinNamedKey have no round-trippable
// name; see Nameable.
func Name(key uint8) string {
	return names[key%12] + strconv.Itoa(int(key)/12-1)
}

// Nameable reports whether Parse(Name(key)) == key.
func Nameable(key uint8) bool {
	return key >= MinNamedKey
}

// Parse reads a pitch name like "C4", "E-3", "F##2" or "Bb5". A name
// without an octave sits in DefaultOctave.
func Parse(name string) (uint8, error) {
	if name == "" {
		return 0, errEmpty
	}

	step, ok := steps[upper(name[0])]
	if !ok {
		return 0, fmt.Errorf("unknown step %q in %q", name[0], name)
	}

	rest := name[1:]
	alter := 0
	for len(rest) > 0 && isAccidental(rest[0]) {
		if rest[0] == '#' {
			alter++
		} else {
			alter--
		}
		rest = rest[1:]
	}

	oct := DefaultOctave
	if rest != "" {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad octave in %q", name)
		}
		oct = n
	}

	key := (oct+1)*12 + step + alter
	if key < 0 || key > 127 {
		return 0, fmt.Errorf("pitch %q outside MIDI range", name)
	}
	return uint8(key), nil
}

// '-' is a flat, so octaves are never negative.
func isAccidental(b byte) bool {
	return b == '#' || b == '-' || b == 'b'
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// IsChord reports whether token is a chord token.
func IsChord(token string) bool {
	return strings.Contains(token, ".")
}

// ChordToken returns the normal-order pitch classes of keys joined with ".".
func ChordToken(keys []uint8) string {
	pcs := make([]int, len(keys))
	for i, k := range keys {
		pcs[i] = int(k % 12)
	}
	order := NormalOrder(pcs)
	parts := make([]string, len(order))
	for i, pc := range order {
		parts[i] = strconv.Itoa(pc)
	}
	return strings.Join(parts, ".")
}

// ParseChord splits a chord token into its integers. Values below 12 are
// pitch classes and are placed in DefaultOctave; larger values are taken
// as MIDI keys.
func ParseChord(token string) ([]uint8, error) {
	parts := strings.Split(token, ".")
	keys := make([]uint8, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad chord member %q in %q", p, token)
		}
		switch {
		case n >= 0 && n < 12:
			keys = append(keys, uint8((DefaultOctave+1)*12+n))
		case n >= 12 && n <= 127:
			keys = append(keys, uint8(n))
		default:
			return nil, fmt.Errorf("chord member %d in %q outside MIDI range", n, token)
		}
	}
	return keys, nil
}

// NormalOrder returns the most compact rotation of the distinct pitch
// classes. Ties are broken by packing intervals to the left (Rahn), then by
// the lowest starting pitch class.
func NormalOrder(pcs []int) []int {
	set := make(map[int]bool, len(pcs))
	uniq := make([]int, 0, len(pcs))
	for _, pc := range pcs {
		pc = ((pc % 12) + 12) % 12
		if !set[pc] {
			set[pc] = true
			uniq = append(uniq, pc)
		}
	}
	sort.Ints(uniq)

	n := len(uniq)
	if n <= 1 {
		return uniq
	}

	var best []int
	for r := 0; r < n; r++ {
		rot := make([]int, n)
		for i := 0; i < n; i++ {
			rot[i] = uniq[(r+i)%n]
		}
		if best == nil || tighter(rot, best) {
			best = rot
		}
	}
	return best
}

// tighter compares spans from the first element to the last, then to the
// second-to-last, and so on.
func tighter(a, b []int) bool {
	for j := len(a) - 1; j > 0; j-- {
		sa := span(a[0], a[j])
		sb := span(b[0], b[j])
		if sa != sb {
			return sa < sb
		}
	}
	return a[0] < b[0]
}

func span(from, to int) int {
	return ((to-from)%12 + 12) % 12
}

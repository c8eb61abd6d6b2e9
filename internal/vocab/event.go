package vocab

import (
	"fmt"
	"strconv"
)

// ContinuationToken marks a corpus line that extends the previous event
// instead of starting a new one.
const ContinuationToken = "~"

// ChordSeparator joins pitch classes inside a chord token.
const ChordSeparator = "."

type Kind uint8

const (
	KindOnset Kind = iota
	KindContinuation
)

func (k Kind) String() string {
	switch k {
	case KindOnset:
		return "onset"
	case KindContinuation:
		return "continuation"
	default:
		return "unknown"
	}
}

// Event is the atomic unit of the vocabulary and of generation.
// Continuations carry ContinuationToken as Token so that they sort
// alongside their corpus text.
type Event struct {
	Kind     Kind
	Token    string
	Duration float64
}

// Onset builds a pitch or chord event.
func Onset(token string, duration float64) Event {
	if token == ContinuationToken {
		return Continuation(duration)
	}
	return Event{Kind: KindOnset, Token: token, Duration: duration}
}

// Continuation builds an event that overwrites the previous duration.
func Continuation(duration float64) Event {
	return Event{Kind: KindContinuation, Token: ContinuationToken, Duration: duration}
}

func (e Event) IsContinuation() bool {
	return e.Kind == KindContinuation
}

// Less orders events by token bytes, then duration.
func (e Event) Less(o Event) bool {
	if e.Token != o.Token {
		return e.Token < o.Token
	}
	return e.Duration < o.Duration
}

func (e Event) String() string {
	return fmt.Sprintf("(%s, %s)", e.Token, strconv.FormatFloat(e.Duration, 'g', -1, 64))
}

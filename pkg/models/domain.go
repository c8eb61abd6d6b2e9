package models

import (
	"fmt"
	"strconv"
	"time"
)

// Generation is one recorded run of the pipeline.
type Generation struct {
	ID         string    // UUID of the run
	InputPath  string    // MIDI file the run was started from
	SeedSource string    // "corpus" or "input"
	SeedOffset int       // start offset of the seed window
	VocabSize  int       // |V| the model was bound to
	VocabHash  string    // fingerprint of the vocabulary ordering
	Events     int       // number of decoded events (always 100)
	Elements   int       // timeline entries written to MIDI
	Skipped    int       // events dropped during reconstruction
	MIDIPath   string    // intermediate MIDI artifact
	AudioPath  string    // rendered audio (empty when rendering was skipped)
	CreatedAt  time.Time // when the run finished
}

// TraceEvent is a single decoded event of a generation trace.
type TraceEvent struct {
	Position     int
	Continuation bool
	Token        string
	Duration     float64
}

// ContinuationToken is the Token a continuation event carries.
const ContinuationToken = "~"

func (e TraceEvent) String() string {
	d := strconv.FormatFloat(e.Duration, 'f', -1, 64)
	if e.Continuation {
		return fmt.Sprintf("%d: %s %s (continues previous)", e.Position, ContinuationToken, d)
	}
	return fmt.Sprintf("%d: %s %s", e.Position, e.Token, d)
}

// SkippedEvent is a decoded event that could not be turned into a note or
// chord.
type SkippedEvent struct {
	Position int
	Token    string
	Duration float64
	Reason   string
}

// AudioInfo describes a rendered WAV file.
type AudioInfo struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
}

// VocabularyInfo summarizes the vocabulary a service was built with.
type VocabularyInfo struct {
	Size int
	Hash string
}

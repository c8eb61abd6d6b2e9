package models

import "errors"

// Outcomes a caller can tell apart with errors.Is.
var (
	// ErrBadInput covers unreadable corpus files, malformed durations and
	// MIDI files that cannot be parsed.
	ErrBadInput = errors.New("bad input file")

	// ErrCorpusTooShort is returned when no seed window fits in the stream.
	ErrCorpusTooShort = errors.New("sequence shorter than window")

	// ErrModelMismatch means the model artifact was not built for the
	// vocabulary or window length in use.
	ErrModelMismatch = errors.New("vocabulary/model mismatch")

	// ErrRenderBackendUnavailable means the synthesizer or soundfont is missing.
	ErrRenderBackendUnavailable = errors.New("rendering backend unavailable")

	// ErrOrphanContinuation is a continuation event with nothing to extend.
	ErrOrphanContinuation = errors.New("continuation without a previous event")
)

package reconstruct

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/MusicWeaver/internal/extract"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildChord(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{vocab.Onset("0.4.7", 1.0)})
	require.NoError(t, err)

	require.Len(t, tl.Elements, 1)
	el := tl.Elements[0]
	assert.True(t, el.IsChord())
	assert.ElementsMatch(t, []int{0, 4, 7}, el.PitchClasses())
	assert.Equal(t, 1.0, el.Duration)
}

func TestRebuildContinuation(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{vocab.Onset("C4", 1.0), vocab.Continuation(2.5)})
	require.NoError(t, err)

	require.Len(t, tl.Elements, 1)
	assert.Equal(t, "C4", tl.Elements[0].Token)
	assert.Equal(t, []uint8{60}, tl.Elements[0].Keys)
	assert.Equal(t, 2.5, tl.Elements[0].Duration)
}

func TestRebuildSkipsInvalidPitch(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{vocab.Onset("not-a-real-pitch", 1.0), vocab.Onset("C4", 1.0)})
	require.NoError(t, err)

	require.Len(t, tl.Elements, 1)
	assert.Equal(t, "C4", tl.Elements[0].Token)

	require.Len(t, tl.Skipped, 1)
	assert.Equal(t, 0, tl.Skipped[0].Position)
	var cerr *ConstructionError
	assert.ErrorAs(t, tl.Skipped[0].Err, &cerr)
}

func TestRebuildContinuationExtendsLastValidElement(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{
		vocab.Onset("0.4.7", 1.0),
		vocab.Onset("Q9", 1.0),
		vocab.Continuation(3),
	})
	require.NoError(t, err)

	require.Len(t, tl.Elements, 1)
	assert.Equal(t, 3.0, tl.Elements[0].Duration)
	assert.Len(t, tl.Skipped, 1)
}

func TestRebuildOrphanContinuation(t *testing.T) {
	_, err := Rebuild([]vocab.Event{vocab.Continuation(1.0), vocab.Onset("C4", 1.0)})
	assert.ErrorIs(t, err, models.ErrOrphanContinuation)
}

func TestBuildChordDropsDuplicateKeys(t *testing.T) {
	el, err := BuildChord("0.0.7", 0.5)
	require.NoError(t, err)
	assert.Equal(t, []uint8{60, 67}, el.Keys)
}

func TestLength(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{vocab.Onset("C4", 1), vocab.Onset("D4", 0.5), vocab.Onset("2.5.9", 2)})
	require.NoError(t, err)
	assert.Equal(t, 3.5, tl.Length())
}

func TestMIDIRoundTrip(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{
		vocab.Onset("C4", 1),
		vocab.Onset("0.4.7", 2),
		vocab.Onset("E-4", 0.5),
		vocab.Onset("E-4", 1.0/3.0),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = tl.WriteTo(&buf)
	require.NoError(t, err)

	got, err := extract.FromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"C4", "0.4.7", "E-4", "E-4"}, got.Tokens)
	assert.InDeltaSlice(t, []float64{1, 2, 0.5, 1.0 / 3.0}, got.Durations, 1e-9)
}

func TestWriteFile(t *testing.T) {
	tl, err := Rebuild([]vocab.Event{vocab.Onset("G3", 1), vocab.Onset("A3", 1)})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "generated_music1.mid")
	require.NoError(t, tl.WriteFile(path))

	got, err := extract.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"G3", "A3"}, got.Tokens)
}

func TestSMFRejectsOverlongElement(t *testing.T) {
	// 30000 quarters is 302,400,000 ticks, past the 28-bit delta limit
	tl, err := Rebuild([]vocab.Event{vocab.Onset("C4", 1), vocab.Onset("D4", 30000)})
	require.NoError(t, err)

	_, err = tl.SMF()
	assert.ErrorIs(t, err, ErrDurationTooLong)

	var buf bytes.Buffer
	_, err = tl.WriteTo(&buf)
	assert.ErrorIs(t, err, ErrDurationTooLong)
	assert.Zero(t, buf.Len())

	path := filepath.Join(t.TempDir(), "too_long.mid")
	assert.ErrorIs(t, tl.WriteFile(path), ErrDurationTooLong)
	assert.NoFileExists(t, path)
}

func TestSMFAcceptsLongestDelta(t *testing.T) {
	longest := float64(MaxDeltaTicks/TicksPerQuarter) // whole quarters under the limit
	tl, err := Rebuild([]vocab.Event{vocab.Onset("C4", longest)})
	require.NoError(t, err)

	_, err = tl.SMF()
	assert.NoError(t, err)
}

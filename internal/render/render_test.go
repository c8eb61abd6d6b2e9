package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV writes one second of 16-bit stereo silence.
func writeWAV(t *testing.T, path string, rate int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		Data:           make([]int, rate*2),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

// fakeSynth installs a shell script that copies $FAKE_WAV to the -F target.
func fakeSynth(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script synth stub needs a POSIX shell")
	}
	path := filepath.Join(dir, "fake-fluidsynth")
	script := "#!/bin/sh\ncp \"$FAKE_WAV\" \"$5\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	writeWAV(t, path, 22050)

	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.InDelta(t, float64(time.Second), float64(info.Duration), float64(10*time.Millisecond))
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, os.WriteFile(path, []byte("INVALID HEADER DATA"), 0o644))

	_, err := Inspect(path)
	assert.Error(t, err)
}

func TestMissingBinary(t *testing.T) {
	f := FluidSynth{Binary: "musicweaver-no-such-synth", SoundFont: "x.sf2"}

	assert.ErrorIs(t, f.Available(), models.ErrRenderBackendUnavailable)
	_, err := f.Render(context.Background(), "in.mid", filepath.Join(t.TempDir(), "out.wav"))
	assert.ErrorIs(t, err, models.ErrRenderBackendUnavailable)
}

func TestMissingSoundFont(t *testing.T) {
	dir := t.TempDir()
	bin := fakeSynth(t, dir)

	for _, sf := range []string{"", filepath.Join(dir, "missing.sf2")} {
		f := FluidSynth{Binary: bin, SoundFont: sf}
		assert.ErrorIs(t, f.Available(), models.ErrRenderBackendUnavailable, "soundfont %q", sf)
	}
}

func TestRenderWithStubSynth(t *testing.T) {
	dir := t.TempDir()
	bin := fakeSynth(t, dir)

	src := filepath.Join(dir, "source.wav")
	writeWAV(t, src, 44100)
	t.Setenv("FAKE_WAV", src)

	sf := filepath.Join(dir, "piano.sf2")
	require.NoError(t, os.WriteFile(sf, []byte("sf2"), 0o644))

	out := filepath.Join(dir, "static", "output.wav")
	info, err := FluidSynth{Binary: bin, SoundFont: sf}.Render(context.Background(), filepath.Join(dir, "in.mid"), out)
	require.NoError(t, err)
	assert.Equal(t, out, info.Path)
	assert.Equal(t, DefaultSampleRate, info.SampleRate)
	assert.FileExists(t, out)
	assert.NoFileExists(t, out+".tmp.wav")
}

// Package render turns the generated MIDI file into audio with an external
// FluidSynth process.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/himanishpuri/MusicWeaver/pkg/utils"
)

const (
	DefaultBinary     = "fluidsynth"
	DefaultSampleRate = 44100
	DefaultTimeout    = 2 * time.Minute
)

// FluidSynth renders MIDI with a soundfont. Zero fields fall back to the
// defaults above.
type FluidSynth struct {
	Binary     string
	SoundFont  string
	SampleRate int
}

// Available checks the binary and soundfont without rendering anything.
func (f FluidSynth) Available() error {
	_, err := f.lookup()
	return err
}

func (f FluidSynth) lookup() (string, error) {
	bin := f.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found: %v", models.ErrRenderBackendUnavailable, bin, err)
	}
	if f.SoundFont == "" {
		return "", fmt.Errorf("%w: no soundfont configured", models.ErrRenderBackendUnavailable)
	}
	if _, err := os.Stat(f.SoundFont); err != nil {
		return "", fmt.Errorf("%w: soundfont %s: %v", models.ErrRenderBackendUnavailable, f.SoundFont, err)
	}
	return path, nil
}

// Render synthesizes midiPath into wavPath. The file is written next to
// wavPath first and moved into place once it decodes as WAV.
func (f FluidSynth) Render(ctx context.Context, midiPath, wavPath string) (*models.AudioInfo, error) {
	bin, err := f.lookup()
	if err != nil {
		return nil, err
	}

	rate := f.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	if err := utils.MakeDir(filepath.Dir(wavPath)); err != nil {
		return nil, err
	}

	tmpPath := wavPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, bin,
		"-ni",
		f.SoundFont,
		midiPath,
		"-F", tmpPath,
		"-r", strconv.Itoa(rate),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("fluidsynth exited with %d: %s", exitErr.ExitCode(), out)
		}
		return nil, fmt.Errorf("fluidsynth failed: %v (%s)", err, out)
	}

	info, err := Inspect(tmpPath)
	if err != nil {
		return nil, err
	}
	if err := utils.MoveFile(tmpPath, wavPath); err != nil {
		return nil, err
	}
	info.Path = wavPath
	return info, nil
}

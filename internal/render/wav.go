package render

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// Inspect decodes the WAV header at path.
func Inspect(path string) (*models.AudioInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	dur, err := d.Duration()
	if err != nil {
		return nil, fmt.Errorf("reading duration of %s: %w", path, err)
	}

	return &models.AudioInfo{
		Path:       path,
		Duration:   dur,
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}, nil
}

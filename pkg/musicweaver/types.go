package musicweaver

import "github.com/himanishpuri/MusicWeaver/pkg/models"

// Result is everything one Generate call produced.
type Result struct {
	Generation models.Generation     // row recorded in history
	Trace      []models.TraceEvent   // the decoded events, always 100
	Skipped    []models.SkippedEvent // events the reconstructor could not build
	Audio      *models.AudioInfo     // nil when rendering was skipped
}

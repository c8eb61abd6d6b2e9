package musicweaver

import (
	"context"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

type Service interface {
	Generate(ctx context.Context, inputPath string) (*Result, error)
	Vocabulary() models.VocabularyInfo
	GetGeneration(id string) (*models.Generation, error)
	ListGenerations(limit int) ([]models.Generation, error)
	GetTrace(id string) ([]models.TraceEvent, error)
	DeleteGeneration(id string) error
	Close() error
}

type Storage interface {
	RecordGeneration(gen models.Generation, trace []models.TraceEvent) (string, error)
	GetGeneration(id string) (*models.Generation, error)
	ListGenerations(limit int) ([]models.Generation, error)
	GetTrace(id string) ([]models.TraceEvent, error)
	DeleteGeneration(id string) error
	Close() error
}

// Predictor maps a window of normalized indices to a probability
// distribution over the vocabulary.
type Predictor interface {
	Predict(ctx context.Context, window []float64) ([]float64, error)
}

type Renderer interface {
	Render(ctx context.Context, midiPath, wavPath string) (*models.AudioInfo, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

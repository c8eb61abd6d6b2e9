package musicweaver

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/MusicWeaver/internal/decode"
	"github.com/himanishpuri/MusicWeaver/internal/extract"
	"github.com/himanishpuri/MusicWeaver/internal/model"
	"github.com/himanishpuri/MusicWeaver/internal/reconstruct"
	"github.com/himanishpuri/MusicWeaver/internal/render"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/internal/window"
	"github.com/himanishpuri/MusicWeaver/pkg/logger"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/himanishpuri/MusicWeaver/pkg/utils"
)

var _ Renderer = render.FluidSynth{}

// weaverService is the default implementation of the Service interface.
type weaverService struct {
	mu        sync.Mutex
	corpus    *vocab.Corpus
	predictor Predictor
	renderer  Renderer
	storage   Storage
	rng       *rand.Rand
	log       Logger
	config    *Config
}

// NewService loads the corpus and model once. The returned service runs one
// generation at a time.
func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	switch cfg.SeedSource {
	case SeedFromCorpus, SeedFromInput:
	default:
		return nil, fmt.Errorf("unknown seed source %q", cfg.SeedSource)
	}

	corpus, err := vocab.LoadCorpus(cfg.NotesPath, cfg.DurationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	cfg.Logger.Infof("Loaded corpus: %d events, vocabulary of %d", len(corpus.Stream), corpus.Vocab.Size())

	pred := cfg.Predictor
	if pred == nil {
		pred, err = loadPredictor(cfg.ModelPath, corpus.Vocab)
		if err != nil {
			return nil, err
		}
		cfg.Logger.Infof("Loaded model %s", cfg.ModelPath)
	}

	rend := cfg.Renderer
	if rend == nil && !cfg.SkipRender {
		rend = render.FluidSynth{
			Binary:     cfg.SynthBinary,
			SoundFont:  cfg.SoundFont,
			SampleRate: cfg.SampleRate,
		}
	}

	stor := cfg.Storage
	if stor == nil {
		stor, err = NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			closeIfCloser(pred)
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	seed1, seed2 := cfg.Seed, cfg.Seed
	if cfg.Seed == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}

	return &weaverService{
		corpus:    corpus,
		predictor: pred,
		renderer:  rend,
		storage:   stor,
		rng:       rand.New(rand.NewPCG(seed1, seed2)),
		log:       cfg.Logger,
		config:    cfg,
	}, nil
}

func loadPredictor(path string, v *vocab.Vocabulary) (Predictor, error) {
	art, err := model.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	if err := art.CheckCompatible(v, window.SequenceLength); err != nil {
		return nil, err
	}
	dm, err := model.NewDenseModel(art)
	if err != nil {
		return nil, fmt.Errorf("failed to build model graph: %w", err)
	}
	return dm, nil
}

func (s *weaverService) Vocabulary() models.VocabularyInfo {
	return models.VocabularyInfo{Size: s.corpus.Vocab.Size(), Hash: s.corpus.Vocab.Hash()}
}

// Generate runs the whole pipeline for one uploaded MIDI file.
func (s *weaverService) Generate(ctx context.Context, inputPath string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Infof("Generating from %s", inputPath)
	v := s.corpus.Vocab

	// 1. Parse the upload
	parsed, err := extract.FromFile(inputPath)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Input has %d events (%d dropped as too short)", len(parsed.Tokens), parsed.Dropped)

	// 2. Pick the stream the seed comes from
	indices, err := s.seedIndices(parsed)
	if err != nil {
		return nil, err
	}

	// 3. Seed window
	ds, err := window.Encode(indices, v.Size(), window.SequenceLength)
	if err != nil {
		return nil, err
	}
	start, seed, err := ds.Seed(s.rng)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Seed window starts at %d of %d", start, ds.Len())

	// 4. Decode
	trace, err := decode.New(s.predictor, v).Run(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("decoding failed: %w", err)
	}

	// 5. Rebuild the timeline
	tl, err := reconstruct.Rebuild(trace)
	if err != nil {
		return nil, err
	}
	for _, sk := range tl.Skipped {
		s.log.Warnf("Skipped event %d (%s): %v", sk.Position, sk.Event, sk.Err)
	}

	// 6. Write MIDI
	midiPath, err := s.writeMIDI(tl)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Wrote %d elements to %s", len(tl.Elements), midiPath)

	// 7. Render
	var audio *models.AudioInfo
	if s.renderer != nil && !s.config.SkipRender {
		wavPath := filepath.Join(s.config.OutputDir, s.config.AudioName)
		audio, err = s.renderer.Render(ctx, midiPath, wavPath)
		if err != nil {
			return nil, fmt.Errorf("rendering failed: %w", err)
		}
		s.log.Infof("Rendered %s (%s)", audio.Path, audio.Duration.Round(time.Millisecond))
	}

	// 8. Record
	gen := models.Generation{
		ID:         uuid.NewString(),
		InputPath:  inputPath,
		SeedSource: string(s.config.SeedSource),
		SeedOffset: start,
		VocabSize:  v.Size(),
		VocabHash:  v.Hash(),
		Events:     len(trace),
		Elements:   len(tl.Elements),
		Skipped:    len(tl.Skipped),
		MIDIPath:   midiPath,
		CreatedAt:  time.Now(),
	}
	if audio != nil {
		gen.AudioPath = audio.Path
	}
	rows := traceRows(trace)
	if _, err := s.storage.RecordGeneration(gen, rows); err != nil {
		return nil, fmt.Errorf("failed to record generation: %w", err)
	}

	s.log.Infof("Generation %s complete", gen.ID)
	return &Result{Generation: gen, Trace: rows, Skipped: skippedEvents(tl.Skipped), Audio: audio}, nil
}

func (s *weaverService) seedIndices(parsed *extract.Result) ([]int, error) {
	v := s.corpus.Vocab

	if s.config.SeedSource == SeedFromCorpus {
		s.log.Warnf("Seeding from the training corpus; the uploaded file does not influence the output")
		indices, missing := v.Indices(s.corpus.Stream)
		if len(missing) > 0 {
			return nil, fmt.Errorf("corpus stream has %d events outside its own vocabulary", len(missing))
		}
		return indices, nil
	}

	indices, missing := v.Indices(parsed.Events())
	if len(missing) > 0 {
		s.log.Warnf("Dropped %d input events not present in the vocabulary", len(missing))
	}
	return indices, nil
}

// writeMIDI writes next to the target name and moves into place, so a
// failed write never leaves a truncated file behind.
func (s *weaverService) writeMIDI(tl *reconstruct.Timeline) (string, error) {
	if err := utils.MakeDir(s.config.OutputDir); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	midiPath := filepath.Join(s.config.OutputDir, s.config.MIDIName)
	tmpPath := midiPath + ".tmp"
	defer os.Remove(tmpPath)

	if err := tl.WriteFile(tmpPath); err != nil {
		return "", err
	}
	if err := utils.MoveFile(tmpPath, midiPath); err != nil {
		return "", err
	}
	return midiPath, nil
}

func (s *weaverService) GetGeneration(id string) (*models.Generation, error) {
	return s.storage.GetGeneration(id)
}

func (s *weaverService) ListGenerations(limit int) ([]models.Generation, error) {
	return s.storage.ListGenerations(limit)
}

func (s *weaverService) GetTrace(id string) ([]models.TraceEvent, error) {
	return s.storage.GetTrace(id)
}

func (s *weaverService) DeleteGeneration(id string) error {
	return s.storage.DeleteGeneration(id)
}

func (s *weaverService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeIfCloser(s.predictor)
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		c.Close()
	}
}

package musicweaver

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/himanishpuri/MusicWeaver/internal/decode"
	"github.com/himanishpuri/MusicWeaver/internal/extract"
	"github.com/himanishpuri/MusicWeaver/internal/model"
	"github.com/himanishpuri/MusicWeaver/internal/reconstruct"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/internal/window"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepPredictor always picks the class after the last one in the window,
// wrapping within the first limit classes.
type stepPredictor struct {
	size, limit int

	mu   sync.Mutex
	seen [][]float64
}

func (p *stepPredictor) Predict(_ context.Context, w []float64) ([]float64, error) {
	p.mu.Lock()
	p.seen = append(p.seen, append([]float64(nil), w...))
	p.mu.Unlock()

	last := int(math.Round(w[len(w)-1] * float64(p.size)))
	out := make([]float64, p.size)
	out[(last+1)%p.limit] = 1
	return out, nil
}

func (p *stepPredictor) firstWindow() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[0]
}

type shortPredictor struct{}

func (shortPredictor) Predict(context.Context, []float64) ([]float64, error) {
	return []float64{1}, nil
}

type fileRenderer struct{ calls int }

func (r *fileRenderer) Render(_ context.Context, midiPath, wavPath string) (*models.AudioInfo, error) {
	r.calls++
	if _, err := os.Stat(midiPath); err != nil {
		return nil, err
	}
	if err := os.WriteFile(wavPath, []byte("RIFF"), 0o644); err != nil {
		return nil, err
	}
	return &models.AudioInfo{Path: wavPath, SampleRate: 44100, Channels: 2, BitDepth: 16}, nil
}

type memStorage struct {
	gens   map[string]models.Generation
	traces map[string][]models.TraceEvent
	order  []string
}

func newMemStorage() *memStorage {
	return &memStorage{gens: map[string]models.Generation{}, traces: map[string][]models.TraceEvent{}}
}

func (m *memStorage) RecordGeneration(gen models.Generation, trace []models.TraceEvent) (string, error) {
	m.gens[gen.ID] = gen
	m.traces[gen.ID] = trace
	m.order = append(m.order, gen.ID)
	return gen.ID, nil
}

func (m *memStorage) GetGeneration(id string) (*models.Generation, error) {
	g, ok := m.gens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *memStorage) ListGenerations(int) ([]models.Generation, error) {
	out := make([]models.Generation, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.gens[id])
	}
	return out, nil
}

func (m *memStorage) GetTrace(id string) ([]models.TraceEvent, error) { return m.traces[id], nil }

func (m *memStorage) DeleteGeneration(id string) error {
	delete(m.gens, id)
	delete(m.traces, id)
	return nil
}

func (m *memStorage) Close() error { return nil }

// writeCorpus writes n events cycling through a few pitches, a chord and one
// token the reconstructor cannot build.
func writeCorpus(t *testing.T, dir string, n int) (string, string) {
	t.Helper()

	tokens := []string{"C4", "D4", "E4", "0.4.7", "G4", "H4"}
	durations := []string{"1.0", "0.5", "1.0", "2.0"}

	var notes, durs strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintln(&notes, tokens[i%len(tokens)])
		fmt.Fprintln(&durs, durations[i%len(durations)])
	}

	notesPath := filepath.Join(dir, "notes_train.txt")
	dursPath := filepath.Join(dir, "durations_train.txt")
	require.NoError(t, os.WriteFile(notesPath, []byte(notes.String()), 0o644))
	require.NoError(t, os.WriteFile(dursPath, []byte(durs.String()), 0o644))
	return notesPath, dursPath
}

func writeInputMIDI(t *testing.T, path string, tokens ...string) {
	t.Helper()

	events := make([]vocab.Event, len(tokens))
	for i, tok := range tokens {
		events[i] = vocab.Onset(tok, 1)
	}
	tl, err := reconstruct.Rebuild(events)
	require.NoError(t, err)
	require.NoError(t, tl.WriteFile(path))
}

type fixture struct {
	dir       string
	predictor *stepPredictor
	renderer  *fileRenderer
	storage   *memStorage
	svc       Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, 60)

	corpus, err := vocab.LoadCorpus(notes, durs)
	require.NoError(t, err)

	// never pick the H4 entries, which sort last
	limit := corpus.Vocab.Size()
	for k := 0; k < corpus.Vocab.Size(); k++ {
		if ev, _ := corpus.Vocab.At(k); ev.Token == "H4" {
			limit = k
			break
		}
	}

	f := &fixture{
		dir:       dir,
		predictor: &stepPredictor{size: corpus.Vocab.Size(), limit: limit},
		renderer:  &fileRenderer{},
		storage:   newMemStorage(),
	}

	base := []Option{
		WithCorpus(notes, durs),
		WithOutputDir(filepath.Join(dir, "out")),
		WithPredictor(f.predictor),
		WithRenderer(f.renderer),
		WithStorage(f.storage),
		WithSeed(42),
	}
	svc, err := NewService(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

func TestGenerateEndToEnd(t *testing.T) {
	f := newFixture(t)

	input := filepath.Join(f.dir, "upload.mid")
	writeInputMIDI(t, input, "C4", "E4", "G4")

	res, err := f.svc.Generate(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, res.Trace, decode.Steps)
	assert.Equal(t, decode.Steps, res.Generation.Events)
	assert.Equal(t, string(SeedFromCorpus), res.Generation.SeedSource)
	assert.Equal(t, f.svc.Vocabulary().Hash, res.Generation.VocabHash)
	assert.Empty(t, res.Skipped)

	midiPath := filepath.Join(f.dir, "out", "generated_music1.mid")
	assert.Equal(t, midiPath, res.Generation.MIDIPath)
	assert.NoFileExists(t, midiPath+".tmp")

	parsed, err := extract.FromFile(midiPath)
	require.NoError(t, err)
	assert.Len(t, parsed.Tokens, res.Generation.Elements)

	require.NotNil(t, res.Audio)
	assert.Equal(t, 1, f.renderer.calls)
	assert.FileExists(t, filepath.Join(f.dir, "out", "output.wav"))

	stored, err := f.svc.GetGeneration(res.Generation.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Generation.SeedOffset, stored.SeedOffset)

	rows, err := f.svc.GetTrace(res.Generation.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Trace, rows)
}

func TestCorpusSeedIgnoresInput(t *testing.T) {
	a := newFixture(t)
	b := newFixture(t)

	inA := filepath.Join(a.dir, "a.mid")
	inB := filepath.Join(b.dir, "b.mid")
	writeInputMIDI(t, inA, "C4", "D4")
	writeInputMIDI(t, inB, "0.4.7", "G4", "E4", "C4")

	resA, err := a.svc.Generate(context.Background(), inA)
	require.NoError(t, err)
	resB, err := b.svc.Generate(context.Background(), inB)
	require.NoError(t, err)

	assert.Equal(t, resA.Generation.SeedOffset, resB.Generation.SeedOffset)
	assert.Equal(t, a.predictor.firstWindow(), b.predictor.firstWindow())
	assert.Equal(t, resA.Trace, resB.Trace)
}

func TestInputSeedUsesUpload(t *testing.T) {
	f := newFixture(t, WithSeedSource(SeedFromInput))
	v := f.svc.(*weaverService).corpus.Vocab

	tokens := make([]string, window.SequenceLength+5)
	for i := range tokens {
		tokens[i] = []string{"C4", "E4"}[i%2]
	}
	input := filepath.Join(f.dir, "long.mid")
	writeInputMIDI(t, input, tokens...)

	res, err := f.svc.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, string(SeedFromInput), res.Generation.SeedSource)

	c4, ok := v.IndexOf(vocab.Onset("C4", 1))
	require.True(t, ok)
	e4, ok := v.IndexOf(vocab.Onset("E4", 1))
	require.True(t, ok)
	for _, x := range f.predictor.firstWindow() {
		assert.Contains(t, []float64{v.Normalize(c4), v.Normalize(e4)}, x)
	}
}

func TestInputSeedTooShort(t *testing.T) {
	f := newFixture(t, WithSeedSource(SeedFromInput))

	input := filepath.Join(f.dir, "short.mid")
	writeInputMIDI(t, input, "C4", "D4", "E4")

	_, err := f.svc.Generate(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrCorpusTooShort)
}

func TestGenerateBadInput(t *testing.T) {
	f := newFixture(t)

	input := filepath.Join(f.dir, "broken.mid")
	require.NoError(t, os.WriteFile(input, []byte("not midi at all"), 0o644))

	_, err := f.svc.Generate(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrBadInput)
	assert.Empty(t, f.storage.order)
}

func TestGenerateModelMismatch(t *testing.T) {
	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, 40)
	input := filepath.Join(dir, "in.mid")
	writeInputMIDI(t, input, "C4")

	svc, err := NewService(
		WithCorpus(notes, durs),
		WithOutputDir(dir),
		WithPredictor(shortPredictor{}),
		WithStorage(newMemStorage()),
		WithSkipRender(true),
	)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Generate(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrModelMismatch)
}

func TestSkipRender(t *testing.T) {
	f := newFixture(t, WithSkipRender(true))

	input := filepath.Join(f.dir, "in.mid")
	writeInputMIDI(t, input, "C4")

	res, err := f.svc.Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, res.Audio)
	assert.Empty(t, res.Generation.AudioPath)
	assert.Zero(t, f.renderer.calls)
}

func TestCorpusTooShortAtGenerate(t *testing.T) {
	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, window.SequenceLength)
	input := filepath.Join(dir, "in.mid")
	writeInputMIDI(t, input, "C4")

	svc, err := NewService(
		WithCorpus(notes, durs),
		WithOutputDir(dir),
		WithPredictor(&stepPredictor{size: 1, limit: 1}),
		WithStorage(newMemStorage()),
		WithSkipRender(true),
	)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Generate(context.Background(), input)
	assert.ErrorIs(t, err, models.ErrCorpusTooShort)
}

func TestNewServiceRejectsForeignModel(t *testing.T) {
	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, 40)

	other := vocab.Build([]vocab.Event{vocab.Onset("C4", 1), vocab.Onset("D4", 1)})
	art := model.NewRandomArtifact(other, window.SequenceLength, []int{8}, rand.New(rand.NewPCG(1, 1)))
	modelPath := filepath.Join(dir, "model.gob")
	require.NoError(t, art.Save(modelPath))

	_, err := NewService(
		WithCorpus(notes, durs),
		WithModelPath(modelPath),
		WithStorage(newMemStorage()),
		WithSkipRender(true),
	)
	assert.ErrorIs(t, err, models.ErrModelMismatch)
}

func TestGenerateWithDenseModelAndSQLite(t *testing.T) {
	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, 60)

	corpus, err := vocab.LoadCorpus(notes, durs)
	require.NoError(t, err)
	art := model.NewRandomArtifact(corpus.Vocab, window.SequenceLength, []int{16}, rand.New(rand.NewPCG(5, 6)))
	modelPath := filepath.Join(dir, "model.gob")
	require.NoError(t, art.Save(modelPath))

	svc, err := NewService(
		WithCorpus(notes, durs),
		WithModelPath(modelPath),
		WithDBPath(filepath.Join(dir, "db", "history.sqlite3")),
		WithOutputDir(filepath.Join(dir, "out")),
		WithSkipRender(true),
		WithSeed(7),
	)
	require.NoError(t, err)
	defer svc.Close()

	input := filepath.Join(dir, "in.mid")
	writeInputMIDI(t, input, "C4", "D4")

	res, err := svc.Generate(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, res.Trace, decode.Steps)

	list, err := svc.ListGenerations(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Generation.ID, list[0].ID)

	require.NoError(t, svc.DeleteGeneration(res.Generation.ID))
	_, err = svc.GetGeneration(res.Generation.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewServiceUnknownSeedSource(t *testing.T) {
	_, err := NewService(WithSeedSource("elsewhere"))
	assert.Error(t, err)
}

func TestGenerateReportsSkippedEvents(t *testing.T) {
	dir := t.TempDir()
	notes, durs := writeCorpus(t, dir, 60)
	corpus, err := vocab.LoadCorpus(notes, durs)
	require.NoError(t, err)

	// cycling through every class reaches the unbuildable H4 entries
	size := corpus.Vocab.Size()
	svc, err := NewService(
		WithCorpus(notes, durs),
		WithOutputDir(dir),
		WithPredictor(&stepPredictor{size: size, limit: size}),
		WithStorage(newMemStorage()),
		WithSkipRender(true),
		WithSeed(3),
	)
	require.NoError(t, err)
	defer svc.Close()

	input := filepath.Join(dir, "in.mid")
	writeInputMIDI(t, input, "C4")

	res, err := svc.Generate(context.Background(), input)
	require.NoError(t, err)
	require.NotEmpty(t, res.Skipped)
	assert.Equal(t, len(res.Skipped), res.Generation.Skipped)
	for _, sk := range res.Skipped {
		assert.Equal(t, "H4", sk.Token)
		assert.Equal(t, "H4", res.Trace[sk.Position].Token)
		assert.NotEmpty(t, sk.Reason)
	}
}

func TestSQLiteStorageFromEnvironment(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env", "history.sqlite3")
	t.Setenv("MUSICWEAVER_DB_PATH", dbPath)

	store, err := NewSQLiteStorage("")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.RecordGeneration(models.Generation{InputPath: "in.mid"}, nil)
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

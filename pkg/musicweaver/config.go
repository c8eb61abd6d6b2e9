package musicweaver

// SeedSource selects which event stream the seed window is drawn from.
type SeedSource string

const (
	// SeedFromCorpus draws the seed from the training corpus. The uploaded
	// file is parsed and validated but does not shape the output.
	SeedFromCorpus SeedSource = "corpus"
	// SeedFromInput draws the seed from the uploaded file's own events.
	SeedFromInput SeedSource = "input"
)

type Config struct {
	NotesPath     string
	DurationsPath string
	ModelPath     string
	DBPath        string
	OutputDir     string
	MIDIName      string
	AudioName     string
	SoundFont     string
	SynthBinary   string
	SampleRate    int
	Seed          uint64
	SeedSource    SeedSource
	SkipRender    bool
	Logger        Logger
	Storage       Storage
	Predictor     Predictor
	Renderer      Renderer
}

type Option func(*Config)

func WithCorpus(notesPath, durationsPath string) Option {
	return func(c *Config) {
		c.NotesPath = notesPath
		c.DurationsPath = durationsPath
	}
}

func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithDBPath sets the history database. Empty means MUSICWEAVER_DB_PATH or
// musicweaver.sqlite3.
func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

// WithOutputNames overrides the MIDI and audio file names written under the
// output directory.
func WithOutputNames(midiName, audioName string) Option {
	return func(c *Config) {
		c.MIDIName = midiName
		c.AudioName = audioName
	}
}

func WithSoundFont(path string) Option {
	return func(c *Config) {
		c.SoundFont = path
	}
}

func WithSynthBinary(bin string) Option {
	return func(c *Config) {
		c.SynthBinary = bin
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithSeed makes start-offset selection reproducible. Zero means random.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

func WithSeedSource(src SeedSource) Option {
	return func(c *Config) {
		c.SeedSource = src
	}
}

// WithSkipRender stops after the MIDI file is written.
func WithSkipRender(skip bool) Option {
	return func(c *Config) {
		c.SkipRender = skip
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

func WithPredictor(p Predictor) Option {
	return func(c *Config) {
		c.Predictor = p
	}
}

func WithRenderer(r Renderer) Option {
	return func(c *Config) {
		c.Renderer = r
	}
}

func defaultConfig() *Config {
	return &Config{
		NotesPath:     "notes_train.txt",
		DurationsPath: "durations_train.txt",
		ModelPath:     "model.gob",
		OutputDir:     ".",
		MIDIName:      "generated_music1.mid",
		AudioName:     "output.wav",
		SynthBinary:   "fluidsynth",
		SampleRate:    44100,
		SeedSource:    SeedFromCorpus,
	}
}

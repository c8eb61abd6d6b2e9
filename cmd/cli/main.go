package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/himanishpuri/MusicWeaver/internal/model"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/internal/window"
	"github.com/himanishpuri/MusicWeaver/pkg/logger"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"github.com/himanishpuri/MusicWeaver/pkg/musicweaver"
	"github.com/joho/godotenv"
)

const sentryFlushTimeout = 2 * time.Second

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// Global flags
var (
	notesPath     string
	durationsPath string
	modelPath     string
	dbPath        string
	outputDir     string
	soundFont     string
	synthBinary   string
	sampleRate    int
	seed          uint64
	seedSource    string
	skipRender    bool
)

func registerFlags() {
	flag.StringVar(&notesPath, "notes", getEnvOrDefault("MUSICWEAVER_NOTES", "notes_train.txt"), "Corpus token file, one token per line")
	flag.StringVar(&durationsPath, "durations", getEnvOrDefault("MUSICWEAVER_DURATIONS", "durations_train.txt"), "Corpus duration file, one quarter length per line")
	flag.StringVar(&modelPath, "model", getEnvOrDefault("MUSICWEAVER_MODEL", "model.gob"), "Path to the model artifact")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite history database (default: $MUSICWEAVER_DB_PATH or musicweaver.sqlite3)")
	flag.StringVar(&outputDir, "out", getEnvOrDefault("MUSICWEAVER_OUTPUT_DIR", "."), "Directory for generated_music1.mid and output.wav")
	flag.StringVar(&soundFont, "soundfont", getEnvOrDefault("MUSICWEAVER_SOUNDFONT", ""), "SoundFont (.sf2) used for rendering")
	flag.StringVar(&synthBinary, "synth", getEnvOrDefault("MUSICWEAVER_SYNTH", "fluidsynth"), "FluidSynth executable")
	flag.IntVar(&sampleRate, "rate", getEnvIntOrDefault("MUSICWEAVER_SAMPLE_RATE", 44100), "Audio sample rate for rendering")
	flag.Uint64Var(&seed, "seed", 0, "Seed for start offset selection (0 = random)")
	flag.StringVar(&seedSource, "seed-source", getEnvOrDefault("MUSICWEAVER_SEED_SOURCE", string(musicweaver.SeedFromCorpus)), "Where the seed window comes from: corpus or input")
	flag.BoolVar(&skipRender, "no-render", false, "Stop after writing the MIDI file")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// createService creates a new MusicWeaver service with configured options
func createService() (musicweaver.Service, error) {
	return musicweaver.NewService(
		musicweaver.WithCorpus(notesPath, durationsPath),
		musicweaver.WithModelPath(modelPath),
		musicweaver.WithDBPath(dbPath),
		musicweaver.WithOutputDir(outputDir),
		musicweaver.WithSoundFont(soundFont),
		musicweaver.WithSynthBinary(synthBinary),
		musicweaver.WithSampleRate(sampleRate),
		musicweaver.WithSeed(seed),
		musicweaver.WithSeedSource(musicweaver.SeedSource(seedSource)),
		musicweaver.WithSkipRender(skipRender),
	)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file found, using environment variables")
	}

	registerFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	initSentry()
	defer sentry.Flush(sentryFlushTimeout)

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		exit(exitFailure)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "generate":
		handleGenerate(args)
	case "vocab":
		handleVocab(args)
	case "init-model":
		handleInitModel(args)
	case "history":
		handleHistory(args)
	case "show":
		handleShow(args)
	case "delete":
		handleDelete(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		exit(exitFailure)
	}
}

func initSentry() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: getEnvOrDefault("MUSICWEAVER_ENV", "development"),
		Release:     "musicweaver@" + releaseVersion,
	}); err != nil {
		logger.Warnf("Failed to initialize Sentry: %v", err)
	}
}

// exit flushes Sentry before leaving, since os.Exit skips deferred calls.
func exit(code int) {
	sentry.Flush(sentryFlushTimeout)
	os.Exit(code)
}

// Exit codes, one per failure class a script may want to branch on.
const (
	exitFailure           = 1
	exitBadInput          = 2
	exitModelMismatch     = 3
	exitCorpusTooShort    = 4
	exitRenderUnavailable = 5
	exitNotFound          = 6
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, models.ErrBadInput):
		return exitBadInput
	case errors.Is(err, models.ErrModelMismatch):
		return exitModelMismatch
	case errors.Is(err, models.ErrCorpusTooShort):
		return exitCorpusTooShort
	case errors.Is(err, models.ErrRenderBackendUnavailable):
		return exitRenderUnavailable
	case errors.Is(err, musicweaver.ErrNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}

// fail prints a user-facing message, logs and reports err, then exits
// with the code matching its class.
func fail(msg string, err error) {
	fmt.Printf("\n❌ %s: %v\n", msg, err)
	logger.Errorf("%s: %v", msg, err)
	sentry.CaptureException(err)
	exit(exitCodeFor(err))
}

const modelMismatchHint = "   Hint: the model artifact does not match the corpus vocabulary; run init-model -force"

func printBanner() {
	banner := `
  __  __           _    __        __
 |  \/  |_   _ ___(_) __\ \      / /__  __ ___   _____ _ __
 | |\/| | | | / __| |/ __\ \ /\ / / _ \/ _' \ \ / / _ \ '__|
 | |  | | |_| \__ \ | (__ \ V  V /  __/ (_| |\ V /  __/ |
 |_|  |_|\__,_|___/_|\___| \_/\_/ \___|\__,_| \_/ \___|_|

           MIDI continuation CLI
`
	fmt.Println(banner)
}

func handleGenerate(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: musicweaver [global-options] generate <midi_file>")
		exit(exitFailure)
	}
	inputPath := args[0]

	fmt.Println("🔧 Initializing service...")
	svc, err := createService()
	if err != nil {
		if errors.Is(err, models.ErrModelMismatch) {
			fmt.Println(modelMismatchHint)
			fail("Model does not fit the vocabulary", err)
		}
		fail("Failed to create service", err)
	}
	defer svc.Close()

	fmt.Printf("🎼 Vocabulary: %d entries\n", svc.Vocabulary().Size)
	fmt.Println("🎹 Generating continuation...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.Generate(ctx, inputPath)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadInput):
			fail("Could not read the MIDI file", err)
		case errors.Is(err, models.ErrModelMismatch):
			fmt.Println(modelMismatchHint)
			fail("Model does not fit the vocabulary", err)
		case errors.Is(err, models.ErrCorpusTooShort):
			fail("Corpus is shorter than one window", err)
		case errors.Is(err, models.ErrRenderBackendUnavailable):
			fmt.Println("   Hint: set --soundfont or run with --no-render")
			fail("Rendering backend unavailable", err)
		default:
			fail("Generation failed", err)
		}
	}

	gen := res.Generation
	fmt.Println("\n✅ Generation complete!")
	fmt.Printf("   ID:       %s\n", gen.ID)
	fmt.Printf("   Seed:     %s @ %d\n", gen.SeedSource, gen.SeedOffset)
	fmt.Printf("   Events:   %d (%d skipped)\n", gen.Events, gen.Skipped)
	fmt.Printf("   MIDI:     %s\n", gen.MIDIPath)
	if res.Audio != nil {
		fmt.Printf("   Audio:    %s (%s, %d Hz)\n", res.Audio.Path, res.Audio.Duration.Round(time.Millisecond), res.Audio.SampleRate)
	}
	log.Infof("Generation %s written to %s", gen.ID, gen.MIDIPath)
}

func handleVocab(args []string) {
	vocabCmd := flag.NewFlagSet("vocab", flag.ExitOnError)
	limit := vocabCmd.Int("limit", 20, "Number of entries to print (0 = all)")
	vocabCmd.Parse(args)

	corpus, err := vocab.LoadCorpus(notesPath, durationsPath)
	if err != nil {
		fail("Failed to load corpus", err)
	}
	v := corpus.Vocab

	fmt.Printf("\n📚 Corpus: %d events, %d distinct\n", len(corpus.Stream), v.Size())
	fmt.Printf("   Fingerprint: %s\n\n", v.Hash())

	n := v.Size()
	if *limit > 0 && *limit < n {
		n = *limit
	}
	for k := 0; k < n; k++ {
		ev, _ := v.At(k)
		fmt.Printf("%5d  %-12s %s\n", k, ev.Token, strconv.FormatFloat(ev.Duration, 'f', -1, 64))
	}
	if n < v.Size() {
		fmt.Printf("... and %d more\n", v.Size()-n)
	}
}

func handleInitModel(args []string) {
	initCmd := flag.NewFlagSet("init-model", flag.ExitOnError)
	hidden := initCmd.String("hidden", "64", "Comma-separated hidden layer widths")
	force := initCmd.Bool("force", false, "Overwrite an existing artifact")
	initCmd.Parse(args)

	if _, err := os.Stat(modelPath); err == nil && !*force {
		fmt.Printf("❌ %s already exists (use -force to overwrite)\n", modelPath)
		exit(exitFailure)
	}

	widths, err := parseWidths(*hidden)
	if err != nil {
		fail("Invalid -hidden", err)
	}

	corpus, err := vocab.LoadCorpus(notesPath, durationsPath)
	if err != nil {
		fail("Failed to load corpus", err)
	}

	s1, s2 := seed, seed
	if seed == 0 {
		s1, s2 = rand.Uint64(), rand.Uint64()
	}
	art := model.NewRandomArtifact(corpus.Vocab, window.SequenceLength, widths, rand.New(rand.NewPCG(s1, s2)))
	if err := art.Save(modelPath); err != nil {
		fail("Failed to save model", err)
	}

	fmt.Printf("\n✅ Wrote untrained model to %s\n", modelPath)
	fmt.Printf("   Window:     %d\n", art.SequenceLength)
	fmt.Printf("   Vocabulary: %d\n", art.VocabSize)
	fmt.Printf("   Layers:     %d\n", len(art.Layers))
	logger.Infof("Initialized model %s for vocabulary %s", modelPath, art.VocabHash)
}

func parseWidths(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad layer width %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func handleHistory(args []string) {
	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	limit := historyCmd.Int("limit", 20, "Number of generations to list (0 = all)")
	historyCmd.Parse(args)

	store, err := musicweaver.NewSQLiteStorage(dbPath)
	if err != nil {
		fail("Failed to open history", err)
	}
	defer store.Close()

	gens, err := store.ListGenerations(*limit)
	if err != nil {
		fail("Failed to list generations", err)
	}
	if len(gens) == 0 {
		fmt.Println("\n📭 No generations recorded")
		return
	}

	fmt.Printf("\n📜 %d generation(s):\n\n", len(gens))
	for i, g := range gens {
		fmt.Printf("%d. %s  %s\n", i+1, g.ID, g.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("   Input: %s | Seed: %s @ %d | Skipped: %d\n", g.InputPath, g.SeedSource, g.SeedOffset, g.Skipped)
	}
}

func handleShow(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: musicweaver [global-options] show <generation_id>")
		exit(exitFailure)
	}
	id := args[0]

	store, err := musicweaver.NewSQLiteStorage(dbPath)
	if err != nil {
		fail("Failed to open history", err)
	}
	defer store.Close()

	gen, err := store.GetGeneration(id)
	if err != nil {
		fail("Generation not found", err)
	}
	rows, err := store.GetTrace(id)
	if err != nil {
		fail("Failed to load trace", err)
	}

	fmt.Printf("\n🎵 Generation %s\n", gen.ID)
	fmt.Printf("   Input:      %s\n", gen.InputPath)
	fmt.Printf("   Seed:       %s @ %d\n", gen.SeedSource, gen.SeedOffset)
	fmt.Printf("   Vocabulary: %d (%s)\n", gen.VocabSize, gen.VocabHash)
	fmt.Printf("   MIDI:       %s\n", gen.MIDIPath)
	if gen.AudioPath != "" {
		fmt.Printf("   Audio:      %s\n", gen.AudioPath)
	}
	fmt.Println("\n   Trace:")
	for _, ev := range rows {
		fmt.Printf("   %s\n", ev)
	}
}

func handleDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: musicweaver [global-options] delete <generation_id>")
		exit(exitFailure)
	}
	id := args[0]

	store, err := musicweaver.NewSQLiteStorage(dbPath)
	if err != nil {
		fail("Failed to open history", err)
	}
	defer store.Close()

	if err := store.DeleteGeneration(id); err != nil {
		if errors.Is(err, musicweaver.ErrNotFound) {
			fmt.Printf("❌ Generation not found (ID: %s)\n", id)
			exit(exitFailure)
		}
		fail("Failed to delete generation", err)
	}

	fmt.Printf("\n✅ Deleted generation %s\n", id)
	logger.Infof("Deleted generation %s", id)
}

func printUsage() {
	fmt.Println("MusicWeaver - MIDI continuation CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --notes <path>       Corpus tokens (env: MUSICWEAVER_NOTES, default: notes_train.txt)")
	fmt.Println("  --durations <path>   Corpus durations (env: MUSICWEAVER_DURATIONS, default: durations_train.txt)")
	fmt.Println("  --model <path>       Model artifact (env: MUSICWEAVER_MODEL, default: model.gob)")
	fmt.Println("  --db <path>          History database (env: MUSICWEAVER_DB_PATH, default: musicweaver.sqlite3)")
	fmt.Println("  --out <dir>          Output directory (env: MUSICWEAVER_OUTPUT_DIR, default: .)")
	fmt.Println("  --soundfont <path>   SoundFont for rendering (env: MUSICWEAVER_SOUNDFONT)")
	fmt.Println("  --synth <bin>        FluidSynth executable (env: MUSICWEAVER_SYNTH, default: fluidsynth)")
	fmt.Println("  --rate <hz>          Render sample rate (env: MUSICWEAVER_SAMPLE_RATE, default: 44100)")
	fmt.Println("  --seed <n>           Start offset seed (default: random)")
	fmt.Println("  --seed-source <src>  corpus or input (env: MUSICWEAVER_SEED_SOURCE, default: corpus)")
	fmt.Println("  --no-render          Write MIDI only")
	fmt.Println("\nUsage:")
	fmt.Println("  musicweaver [global-options] generate <midi_file>")
	fmt.Println("  musicweaver [global-options] vocab [-limit n]")
	fmt.Println("  musicweaver [global-options] init-model [-hidden 64,32] [-force]")
	fmt.Println("  musicweaver [global-options] history [-limit n]")
	fmt.Println("  musicweaver [global-options] show <generation_id>")
	fmt.Println("  musicweaver [global-options] delete <generation_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Generate and render")
	fmt.Println("  musicweaver --soundfont FluidR3_GM.sf2 generate upload.mid")
	fmt.Println()
	fmt.Println("  # MIDI only, reproducible seed drawn from the upload")
	fmt.Println("  musicweaver --no-render --seed 7 --seed-source input generate upload.mid")
}

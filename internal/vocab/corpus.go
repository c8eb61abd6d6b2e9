package vocab

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// Corpus is the training stream together with the vocabulary built from it.
type Corpus struct {
	// Stream holds the events in file order, duplicates included.
	Stream []Event
	Vocab  *Vocabulary
}

// LoadCorpus reads the parallel token and duration files.
func LoadCorpus(notesPath, durationsPath string) (*Corpus, error) {
	tokens, err := readLines(notesPath)
	if err != nil {
		return nil, err
	}
	rawDurations, err := readLines(durationsPath)
	if err != nil {
		return nil, err
	}

	if len(tokens) != len(rawDurations) {
		return nil, fmt.Errorf("%w: %s has %d lines but %s has %d",
			models.ErrBadInput, notesPath, len(tokens), durationsPath, len(rawDurations))
	}

	stream := make([]Event, len(tokens))
	for i, tok := range tokens {
		d, err := ParseDuration(rawDurations[i])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", durationsPath, i+1, err)
		}
		stream[i] = Onset(tok, d)
	}

	return FromStream(stream), nil
}

// FromStream wraps an in-memory event stream.
func FromStream(stream []Event) *Corpus {
	return &Corpus{Stream: stream, Vocab: Build(stream)}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening corpus file: %v", models.ErrBadInput, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrBadInput, path, err)
	}
	return lines, nil
}

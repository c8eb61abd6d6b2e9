package musicweaver

import (
	"github.com/himanishpuri/MusicWeaver/internal/reconstruct"
	"github.com/himanishpuri/MusicWeaver/internal/storage"
	"github.com/himanishpuri/MusicWeaver/internal/vocab"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
)

// ErrNotFound is returned for unknown generation ids.
var ErrNotFound = storage.ErrNotFound

// NewSQLiteStorage creates a new SQLite storage backend. An empty dbPath
// falls back to MUSICWEAVER_DB_PATH, then to the default file name.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	var (
		db  *storage.DBClient
		err error
	)
	if dbPath == "" {
		db, err = storage.NewDBClient()
	} else {
		db, err = storage.NewDBClientWithPath(dbPath)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func traceRows(trace []vocab.Event) []models.TraceEvent {
	rows := make([]models.TraceEvent, len(trace))
	for i, ev := range trace {
		rows[i] = models.TraceEvent{
			Position:     i,
			Continuation: ev.IsContinuation(),
			Token:        ev.Token,
			Duration:     ev.Duration,
		}
	}
	return rows
}

func skippedEvents(skips []reconstruct.Skip) []models.SkippedEvent {
	out := make([]models.SkippedEvent, len(skips))
	for i, sk := range skips {
		out[i] = models.SkippedEvent{
			Position: sk.Position,
			Token:    sk.Event.Token,
			Duration: sk.Event.Duration,
			Reason:   sk.Err.Error(),
		}
	}
	return out
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/himanishpuri/MusicWeaver/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "musicweaver.sqlite3"
const errDBClientNil = "db client is nil"

// ErrNotFound is returned when no generation has the requested id.
var ErrNotFound = errors.New("generation not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Generation struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	InputPath  string `json:"input_path"`
	SeedSource string `gorm:"index:idx_seed_source" json:"seed_source"`
	SeedOffset int    `json:"seed_offset"`
	VocabSize  int    `json:"vocab_size"`
	VocabHash  string `gorm:"index:idx_vocab_hash" json:"vocab_hash"`
	Events     int    `json:"events"`
	Elements   int    `json:"elements"`
	Skipped    int    `json:"skipped"`
	MIDIPath   string `json:"midi_path"`
	AudioPath  string `json:"audio_path"`
	CreatedAt  time.Time
}

type TraceEvent struct {
	ID           uint    `gorm:"primaryKey;autoIncrement"`
	GenerationID string  `gorm:"type:varchar(36);index:idx_generation,priority:1" json:"generation_id"`
	Position     int     `gorm:"index:idx_generation,priority:2" json:"position"`
	Continuation bool    `json:"continuation"`
	Token        string  `json:"token"`
	Duration     float64 `json:"duration"`
}

// NewDBClient opens MUSICWEAVER_DB_PATH, or DefaultDBFile when unset.
func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("MUSICWEAVER_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Generation{}, &TraceEvent{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// RecordGeneration stores a run and its trace in one transaction. An empty
// gen.ID gets a fresh UUID; the id used is returned.
func (c *DBClient) RecordGeneration(gen models.Generation, trace []models.TraceEvent) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}

	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now()
	}

	row := Generation{
		ID:         gen.ID,
		InputPath:  gen.InputPath,
		SeedSource: gen.SeedSource,
		SeedOffset: gen.SeedOffset,
		VocabSize:  gen.VocabSize,
		VocabHash:  gen.VocabHash,
		Events:     gen.Events,
		Elements:   gen.Elements,
		Skipped:    gen.Skipped,
		MIDIPath:   gen.MIDIPath,
		AudioPath:  gen.AudioPath,
		CreatedAt:  gen.CreatedAt,
	}

	events := make([]TraceEvent, 0, len(trace))
	for _, ev := range trace {
		events = append(events, TraceEvent{
			GenerationID: gen.ID,
			Position:     ev.Position,
			Continuation: ev.Continuation,
			Token:        ev.Token,
			Duration:     ev.Duration,
		})
	}

	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("creating generation: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(events, 500).Error; err != nil {
			return fmt.Errorf("batch insert trace: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return gen.ID, nil
}

func (c *DBClient) GetGeneration(id string) (*models.Generation, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var row Generation
	if err := c.DB.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying generation: %w", err)
	}
	gen := row.toModel()
	return &gen, nil
}

// ListGenerations returns runs newest first. limit <= 0 means no limit.
func (c *DBClient) ListGenerations(limit int) ([]models.Generation, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	q := c.DB.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Generation
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing generations: %w", err)
	}

	out := make([]models.Generation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// GetTrace returns the decoded events of a run in position order.
func (c *DBClient) GetTrace(id string) ([]models.TraceEvent, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var rows []TraceEvent
	if err := c.DB.Where("generation_id = ?", id).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying trace: %w", err)
	}

	out := make([]models.TraceEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.TraceEvent{
			Position:     r.Position,
			Continuation: r.Continuation,
			Token:        r.Token,
			Duration:     r.Duration,
		})
	}
	return out, nil
}

func (c *DBClient) DeleteGeneration(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation_id = ?", id).Delete(&TraceEvent{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Generation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

func (r Generation) toModel() models.Generation {
	return models.Generation{
		ID:         r.ID,
		InputPath:  r.InputPath,
		SeedSource: r.SeedSource,
		SeedOffset: r.SeedOffset,
		VocabSize:  r.VocabSize,
		VocabHash:  r.VocabHash,
		Events:     r.Events,
		Elements:   r.Elements,
		Skipped:    r.Skipped,
		MIDIPath:   r.MIDIPath,
		AudioPath:  r.AudioPath,
		CreatedAt:  r.CreatedAt,
	}
}

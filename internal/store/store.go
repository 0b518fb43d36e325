package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	AppName       = "lyricosd"
	DefaultDBFile = AppName + ".sqlite"
)

var (
	// ErrIO wraps faults reported by the filesystem or the storage engine.
	ErrIO = errors.New("index store i/o failure")
	// ErrSchemaMismatch means an existing store has an incompatible layout.
	ErrSchemaMismatch = errors.New("index store schema mismatch")
	// ErrInvalidEntry rejects entries without a name or lyric location.
	ErrInvalidEntry = errors.New("invalid index entry")
)

var requiredColumns = []string{"id", "name", "album", "lyrics"}

// Entry is one indexed track: its (name, album) identity and the path of its
// lyric file.
type Entry struct {
	Name   string
	Album  string
	Lyrics string
}

// Song is the persisted row. (name, album) is unique, so writing the same
// identity twice replaces the location instead of adding a row.
type Song struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null;uniqueIndex:idx_songs_identity,priority:1"`
	Album     string `gorm:"not null;default:'';uniqueIndex:idx_songs_identity,priority:2"`
	Lyrics    string `gorm:"not null"`
	RunID     string `gorm:"type:varchar(36);index:idx_songs_run"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Song) TableName() string { return "songs" }

// Store owns the lyric index database. Open one per operation and Close it
// when the operation ends.
type Store struct {
	db   *gorm.DB
	sql  *sql.DB
	path string
}

// DefaultPath returns the store location under the user configuration
// directory, namespaced by the application name.
func DefaultPath() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, AppName, DefaultDBFile)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultDBFile
	}
	return filepath.Join(homeDir, ".config", AppName, DefaultDBFile)
}

// Open opens (creating if needed) the store at path and makes sure the schema
// exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating store dir: %v", ErrIO, err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite db: %v", ErrIO, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: getting sql.DB from gorm: %v", ErrIO, err)
	}
	// One writer at a time; concurrent indexer workers queue on this handle.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, sql: sqlDB, path: path}
	if err := s.Initialize(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Debug().Str("component", "store").Str("path", path).Msg("Index store opened")
	return s, nil
}

// Initialize creates the schema. It is safe to call repeatedly.
func (s *Store) Initialize(ctx context.Context) error {
	m := s.db.WithContext(ctx).Migrator()
	if m.HasTable(&Song{}) {
		for _, col := range requiredColumns {
			if !m.HasColumn(&Song{}, col) {
				return fmt.Errorf("%w: table songs has no %q column", ErrSchemaMismatch, col)
			}
		}
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&Song{}); err != nil {
		return fmt.Errorf("%w: auto migrate: %v", ErrIO, err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// Insert records entry. An existing row with the same (name, album) gets the
// new location.
func (s *Store) Insert(ctx context.Context, entry Entry) error {
	return s.InsertRun(ctx, entry, "")
}

// InsertRun is Insert tagged with the id of the indexing pass that found the
// entry.
func (s *Store) InsertRun(ctx context.Context, entry Entry, runID string) error {
	if entry.Name == "" || entry.Lyrics == "" {
		return fmt.Errorf("%w: name and lyrics location are required", ErrInvalidEntry)
	}

	row := Song{Name: entry.Name, Album: entry.Album, Lyrics: entry.Lyrics, RunID: runID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "album"}},
		DoUpdates: clause.AssignmentColumns([]string{"lyrics", "run_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: inserting %q: %v", ErrIO, entry.Name, err)
	}
	return nil
}

// Lookup returns the lyric location for an exact (name, album) match. A
// missing entry is not an error.
func (s *Store) Lookup(ctx context.Context, name, album string) (string, bool, error) {
	var rows []Song
	err := s.db.WithContext(ctx).
		Where("name = ? AND album = ?", name, album).
		Order("updated_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return "", false, fmt.Errorf("%w: looking up %q: %v", ErrIO, name, err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Lyrics, true, nil
}

// Count returns the number of indexed tracks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Song{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: counting songs: %v", ErrIO, err)
	}
	return n, nil
}

// List returns all entries ordered by name and album.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var rows []Song
	if err := s.db.WithContext(ctx).Order("name, album").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing songs: %v", ErrIO, err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{Name: r.Name, Album: r.Album, Lyrics: r.Lyrics})
	}
	return out, nil
}

// PruneMissing deletes entries whose lyric file no longer exists and returns
// how many were removed.
func (s *Store) PruneMissing(ctx context.Context) (int, error) {
	var rows []Song
	if err := s.db.WithContext(ctx).Select("id", "lyrics").Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("%w: scanning songs: %v", ErrIO, err)
	}

	var stale []uint
	for _, r := range rows {
		if _, err := os.Stat(r.Lyrics); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, r.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("id IN ?", stale).Delete(&Song{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("%w: pruning songs: %v", ErrIO, err)
	}
	log.Info().Str("component", "store").Int("removed", len(stale)).Msg("Pruned stale index entries")
	return len(stale), nil
}

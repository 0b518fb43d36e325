// Package indexer walks a music library and records, for every audio file
// with readable tags and a companion .lrc file, where its lyrics live.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lyricosd/internal/store"
	"lyricosd/internal/tags"
	"lyricosd/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LyricExt is the extension of companion lyric files.
const LyricExt = ".lrc"

// ErrTraversal is returned in strict mode when a directory cannot be listed.
var ErrTraversal = errors.New("library traversal failed")

// errStopped unwinds the walk once the worker pool stops taking jobs.
var errStopped = errors.New("indexing stopped")

// Inserter is the part of the index store the indexer writes to.
type Inserter interface {
	InsertRun(ctx context.Context, entry store.Entry, runID string) error
}

// Failure names an item that could not be processed.
type Failure struct {
	Path string
	Err  error
}

// Report summarises one indexing pass.
type Report struct {
	RunID    string
	Root     string
	Scanned  int
	Indexed  int
	Skipped  int
	Failures []Failure
	Elapsed  time.Duration
}

type Indexer struct {
	store   Inserter
	reader  tags.Reader
	workers int
	strict  bool

	readDir func(name string) ([]os.DirEntry, error)
}

type Option func(*Indexer)

// WithWorkers sets how many files are processed concurrently.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithStrict makes the first listing or insert failure abort the pass.
// The default logs the failure, records it in the report and carries on.
func WithStrict(strict bool) Option {
	return func(ix *Indexer) {
		ix.strict = strict
	}
}

func New(s Inserter, reader tags.Reader, opts ...Option) *Indexer {
	ix := &Indexer{store: s, reader: reader, workers: 1, readDir: os.ReadDir}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// pass holds the state of a single Index call.
type pass struct {
	ix      *Indexer
	pool    *worker.Pool
	visited map[string]struct{}

	mu     sync.Mutex
	report *Report
}

// Index walks root and inserts an entry for every indexable track. The
// report is returned even when the pass fails, and entries written before a
// failure stay in the store.
func (ix *Indexer) Index(ctx context.Context, root string) (*Report, error) {
	start := time.Now()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTraversal, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTraversal, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrTraversal, abs)
	}

	p := &pass{
		ix:      ix,
		pool:    worker.New(ctx, ix.workers, ix.strict),
		visited: make(map[string]struct{}),
		report:  &Report{RunID: uuid.NewString(), Root: abs},
	}

	log.Info().
		Str("component", "indexer").
		Str("root", abs).
		Str("run_id", p.report.RunID).
		Int("workers", ix.workers).
		Bool("strict", ix.strict).
		Msg("Indexing library")

	walkErr := p.walk(abs)
	poolErr := p.pool.Wait()
	p.report.Elapsed = time.Since(start)

	if walkErr != nil && !errors.Is(walkErr, errStopped) {
		return p.report, walkErr
	}
	if poolErr != nil {
		return p.report, poolErr
	}

	log.Info().
		Str("component", "indexer").
		Int("scanned", p.report.Scanned).
		Int("indexed", p.report.Indexed).
		Int("skipped", p.report.Skipped).
		Int("failures", len(p.report.Failures)).
		Dur("elapsed", p.report.Elapsed).
		Msg("Indexing finished")
	return p.report, nil
}

func (p *pass) walk(dir string) error {
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return p.traversalFailure(dir, err)
	}
	if _, seen := p.visited[canonical]; seen {
		log.Debug().Str("component", "indexer").Str("path", dir).Msg("Directory already visited, skipping")
		return nil
	}
	p.visited[canonical] = struct{}{}

	entries, err := p.ix.readDir(dir)
	if err != nil {
		if ferr := p.traversalFailure(dir, err); ferr != nil {
			return ferr
		}
		// Lenient: whatever was listed before the error is still processed.
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			st, err := os.Stat(path)
			if err != nil {
				log.Debug().Str("component", "indexer").Str("path", path).Err(err).Msg("Dangling symlink, skipping")
				continue
			}
			mode = st.Mode().Type()
		}

		switch {
		case mode.IsDir():
			if err := p.walk(path); err != nil {
				return err
			}
		case mode.IsRegular():
			if !p.submit(path) {
				return errStopped
			}
		}
	}
	return nil
}

// traversalFailure records a listing failure. It returns an error only in
// strict mode.
func (p *pass) traversalFailure(dir string, err error) error {
	log.Warn().Str("component", "indexer").Str("path", dir).Err(err).Msg("Failed to read directory")
	p.mu.Lock()
	p.report.Failures = append(p.report.Failures, Failure{Path: dir, Err: err})
	p.mu.Unlock()

	if p.ix.strict {
		return fmt.Errorf("%w: %s: %v", ErrTraversal, dir, err)
	}
	return nil
}

func (p *pass) submit(path string) bool {
	p.mu.Lock()
	p.report.Scanned++
	p.mu.Unlock()

	return p.pool.Submit(func(ctx context.Context) error {
		return p.indexFile(ctx, path)
	})
}

func (p *pass) indexFile(ctx context.Context, path string) error {
	entry, ok := p.entryFor(path)
	if !ok {
		p.mu.Lock()
		p.report.Skipped++
		p.mu.Unlock()
		return nil
	}

	if err := p.ix.store.InsertRun(ctx, entry, p.report.RunID); err != nil {
		log.Error().Str("component", "indexer").Str("path", path).Err(err).Msg("Failed to index track")
		p.mu.Lock()
		p.report.Failures = append(p.report.Failures, Failure{Path: path, Err: err})
		p.mu.Unlock()
		return err
	}

	log.Debug().
		Str("component", "indexer").
		Str("name", entry.Name).
		Str("album", entry.Album).
		Str("lyrics", entry.Lyrics).
		Msg("Indexed track")
	p.mu.Lock()
	p.report.Indexed++
	p.mu.Unlock()
	return nil
}

// entryFor builds the index entry for an audio file, or reports false when
// the file is not indexable.
func (p *pass) entryFor(path string) (store.Entry, bool) {
	if strings.EqualFold(filepath.Ext(path), LyricExt) {
		return store.Entry{}, false
	}

	t, err := p.ix.reader.Read(path)
	if err != nil || t.Title == "" {
		return store.Entry{}, false
	}

	companion := CompanionPath(path)
	st, err := os.Stat(companion)
	if err != nil || !st.Mode().IsRegular() {
		return store.Entry{}, false
	}

	return store.Entry{Name: t.Title, Album: t.Album, Lyrics: companion}, true
}

// CompanionPath replaces the extension of an audio file path with .lrc.
func CompanionPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + LyricExt
}

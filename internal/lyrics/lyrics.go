// Package lyrics turns a player snapshot into the lyric line being sung.
package lyrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"lyricosd/internal/lrccache"
	"lyricosd/internal/player"
	"lyricosd/pkg/lrc"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNotIndexed means the track has no entry in the index.
	ErrNotIndexed = errors.New("track not indexed")
	// ErrFileMissing means the indexed lyric file cannot be read.
	ErrFileMissing = errors.New("lyric file missing")
	// ErrParseFailure means the lyric file is not valid LRC.
	ErrParseFailure = errors.New("lyric file malformed")
	// ErrNoActiveLine means playback is before the first timed line.
	ErrNoActiveLine = errors.New("no active line")
)

// IsNoLyric reports whether err is an ordinary "nothing to show" outcome
// rather than a fault.
func IsNoLyric(err error) bool {
	return errors.Is(err, ErrNotIndexed) ||
		errors.Is(err, ErrFileMissing) ||
		errors.Is(err, ErrNoActiveLine) ||
		errors.Is(err, player.ErrNoPlayer) ||
		errors.Is(err, player.ErrNoMetadata)
}

// Lookuper finds the lyric file recorded for a track.
type Lookuper interface {
	Lookup(ctx context.Context, name, album string) (string, bool, error)
}

type Resolver struct {
	index Lookuper
	cache lrccache.Cache
	lead  time.Duration
}

type Option func(*Resolver)

// WithCache reads lyric files through c.
func WithCache(c lrccache.Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithLead shifts playback position forward so a line shows slightly before
// it is sung.
func WithLead(d time.Duration) Option {
	return func(r *Resolver) {
		r.lead = d
	}
}

func NewResolver(index Lookuper, opts ...Option) *Resolver {
	r := &Resolver{index: index}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveCurrentLine returns the text of the line active at the snapshot's
// position. The text is returned exactly as it appears in the file.
func (r *Resolver) ResolveCurrentLine(ctx context.Context, snap player.Snapshot) (string, error) {
	doc, err := r.Document(ctx, snap.Track)
	if err != nil {
		return "", err
	}

	target := lrc.FromDuration(snap.Position + r.lead)
	line, ok := doc.Resolve(target)
	if !ok {
		return "", fmt.Errorf("%w: %s at %s", ErrNoActiveLine, snap.Track, target)
	}
	return line.Text, nil
}

// Document loads and parses the lyrics indexed for track.
func (r *Resolver) Document(ctx context.Context, track player.Track) (*lrc.Document, error) {
	path, ok, err := r.index.Lookup(ctx, track.Name, track.Album)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q / %q", ErrNotIndexed, track.Name, track.Album)
	}

	raw, err := r.read(ctx, path)
	if err != nil {
		return nil, err
	}

	doc, err := lrc.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParseFailure, path, err)
	}
	return doc, nil
}

func (r *Resolver) read(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileMissing, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrFileMissing, path)
	}

	var key string
	if r.cache != nil {
		key = lrccache.Key(path, info)
		raw, hit, err := r.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Str("component", "lyrics").Str("path", path).Err(err).Msg("Cache read failed")
		} else if hit {
			return raw, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileMissing, err)
	}
	raw := string(data)

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, raw); err != nil {
			log.Warn().Str("component", "lyrics").Str("path", path).Err(err).Msg("Cache write failed")
		}
	}
	return raw, nil
}

// Package app runs the display loop: poll the player, resolve the active
// lyric line and publish it when it changes.
package app

import (
	"context"
	"sync"
	"time"

	"lyricosd/internal/lyrics"
	"lyricosd/internal/player"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 200 * time.Millisecond
	DefaultIdleText = "♪"
)

// LineResolver maps a snapshot to the active lyric line.
type LineResolver interface {
	ResolveCurrentLine(ctx context.Context, snap player.Snapshot) (string, error)
}

// Broadcaster publishes the current line to displays.
type Broadcaster interface {
	Broadcast(line string)
}

// Notifier is told after every published change.
type Notifier interface {
	Notify() error
}

type App struct {
	probe       player.Probe
	resolver    LineResolver
	broadcaster Broadcaster
	notifier    Notifier
	interval    time.Duration
	idleText    string

	mu          sync.Mutex
	published   bool
	lastLine    string
	lastTrack   player.Track
	lastFailure string
}

type Option func(*App)

func WithInterval(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithIdleText sets what is shown when there is no lyric to show.
func WithIdleText(s string) Option {
	return func(a *App) {
		a.idleText = s
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

func New(probe player.Probe, resolver LineResolver, broadcaster Broadcaster, opts ...Option) *App {
	a := &App{
		probe:       probe,
		resolver:    resolver,
		broadcaster: broadcaster,
		interval:    DefaultInterval,
		idleText:    DefaultIdleText,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run steps every interval until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Info().Str("component", "app").Dur("interval", a.interval).Msg("Starting player check loop")
	for {
		a.Step(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info().Str("component", "app").Msg("Player check loop stopped")
			return ctx.Err()
		}
	}
}

// Step runs one poll. It returns the line now on display and whether it was
// published by this call.
func (a *App) Step(ctx context.Context) (string, bool) {
	snap, err := a.probe.Current(ctx)
	if err == nil {
		a.trackChanged(snap.Track)
		var line string
		line, err = a.resolver.ResolveCurrentLine(ctx, snap)
		if err == nil {
			return a.publish(line)
		}
	}

	if ctx.Err() != nil {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.lastLine, false
	}

	a.logFailure(err)
	return a.publish(a.idleText)
}

func (a *App) trackChanged(t player.Track) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t == a.lastTrack {
		return
	}
	a.lastTrack = t
	log.Info().Str("component", "app").Str("song", t.String()).Str("album", t.Album).Msg("New song detected")
}

// logFailure logs each distinct failure once so an idle player does not
// flood the log at the poll rate.
func (a *App) logFailure(err error) {
	a.mu.Lock()
	msg := err.Error()
	repeated := msg == a.lastFailure
	a.lastFailure = msg
	a.mu.Unlock()
	if repeated {
		return
	}

	if lyrics.IsNoLyric(err) {
		log.Debug().Str("component", "app").Err(err).Msg("No lyric available")
		return
	}
	log.Error().Str("component", "app").Err(err).Msg("Failed to resolve lyric line")
}

func (a *App) publish(line string) (string, bool) {
	a.mu.Lock()
	if a.published && line == a.lastLine {
		a.mu.Unlock()
		return line, false
	}
	a.published = true
	a.lastLine = line
	if line != a.idleText {
		a.lastFailure = ""
	}
	a.mu.Unlock()

	log.Debug().Str("component", "app").Str("lyric", line).Msg("Broadcasting lyric")
	a.broadcaster.Broadcast(line)
	if a.notifier != nil {
		if err := a.notifier.Notify(); err != nil {
			log.Debug().Str("component", "app").Err(err).Msg("Failed to notify status bar")
		}
	}
	return line, true
}

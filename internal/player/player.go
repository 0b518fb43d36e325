// Package player reports what a media player is playing and how far into the
// track it is.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoPlayer means no media player answered.
	ErrNoPlayer = errors.New("no active player")
	// ErrNoMetadata means a player answered but did not report a title.
	ErrNoMetadata = errors.New("player reports no metadata")
)

// Track identifies a track. Lookups use Name and Album only; Artist is
// carried for display.
type Track struct {
	Name   string
	Artist string
	Album  string
}

func (t Track) String() string {
	if t.Artist == "" {
		return t.Name
	}
	return fmt.Sprintf("%s - %s", t.Artist, t.Name)
}

// Snapshot is what the player reported at one instant.
type Snapshot struct {
	Track    Track
	Position time.Duration
}

// Probe queries a live media player.
type Probe interface {
	Current(ctx context.Context) (Snapshot, error)
}

const (
	BackendMPRIS     = "mpris"
	BackendPlayerctl = "playerctl"
)

// New returns the probe for backend. busName pins the MPRIS probe to one
// player, e.g. "org.mpris.MediaPlayer2.spotify"; it is ignored by playerctl
// except as its -p player name. Each call is bounded by timeout.
func New(backend, busName string, timeout time.Duration) (Probe, error) {
	var p Probe
	switch backend {
	case "", BackendMPRIS:
		p = NewMPRIS(busName)
	case BackendPlayerctl:
		p = NewPlayerctl(busName)
	default:
		return nil, fmt.Errorf("unknown player backend: %s", backend)
	}
	if timeout > 0 {
		p = &bounded{probe: p, timeout: timeout}
	}
	return p, nil
}

// bounded gives every Current call a deadline so a hung player cannot block
// the caller.
type bounded struct {
	probe   Probe
	timeout time.Duration
}

func (b *bounded) Current(ctx context.Context) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.probe.Current(ctx)
}

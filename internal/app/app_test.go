package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"lyricosd/internal/lyrics"
	"lyricosd/internal/player"
)

// scriptedProbe replays snapshots, repeating the last one.
type scriptedProbe struct {
	mu    sync.Mutex
	steps []probeResult
}

type probeResult struct {
	snap player.Snapshot
	err  error
}

func (p *scriptedProbe) Current(context.Context) (player.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.steps[0]
	if len(p.steps) > 1 {
		p.steps = p.steps[1:]
	}
	return r.snap, r.err
}

// tableResolver returns the line for the snapshot position in whole seconds.
type tableResolver map[int]string

func (r tableResolver) ResolveCurrentLine(_ context.Context, snap player.Snapshot) (string, error) {
	if snap.Track.Name == "Unknown" {
		return "", fmt.Errorf("%w: Unknown", lyrics.ErrNotIndexed)
	}
	if snap.Track.Name == "Broken" {
		return "", fmt.Errorf("%w: bad file", lyrics.ErrParseFailure)
	}
	line, ok := r[int(snap.Position/time.Second)]
	if !ok {
		return "", lyrics.ErrNoActiveLine
	}
	return line, nil
}

type recorder struct {
	mu       sync.Mutex
	lines    []string
	notified int
}

func (r *recorder) Broadcast(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *recorder) Notify() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified++
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func at(name string, seconds int) probeResult {
	return probeResult{snap: player.Snapshot{
		Track:    player.Track{Name: name, Album: "Album"},
		Position: time.Duration(seconds) * time.Second,
	}}
}

func TestStepBroadcastsOnlyChanges(t *testing.T) {
	probe := &scriptedProbe{steps: []probeResult{
		at("Song", 0), at("Song", 1), at("Song", 2), at("Song", 5), at("Song", 6),
	}}
	resolver := tableResolver{1: "Hello", 2: "Hello", 5: "World", 6: "World"}
	rec := &recorder{}
	a := New(probe, resolver, rec, WithIdleText("..."), WithNotifier(rec))

	for i := 0; i < 5; i++ {
		a.Step(context.Background())
	}

	want := []string{"...", "Hello", "World"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("broadcasts = %q, want %q", got, want)
	}
	if rec.notified != len(want) {
		t.Errorf("notified %d times, want %d", rec.notified, len(want))
	}
}

func TestStepIdleOnNoLyricOutcomes(t *testing.T) {
	probe := &scriptedProbe{steps: []probeResult{
		at("Song", 1),
		{err: player.ErrNoPlayer},
		{err: player.ErrNoPlayer},
		at("Unknown", 3),
		at("Song", 1),
	}}
	rec := &recorder{}
	a := New(probe, tableResolver{1: "Hello"}, rec)

	for i := 0; i < 5; i++ {
		a.Step(context.Background())
	}

	want := []string{"Hello", DefaultIdleText, "Hello"}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("broadcasts = %q, want %q", got, want)
	}
}

func TestStepSurvivesResolverFault(t *testing.T) {
	probe := &scriptedProbe{steps: []probeResult{at("Broken", 1), at("Song", 1)}}
	rec := &recorder{}
	a := New(probe, tableResolver{1: "Hello"}, rec)

	line, changed := a.Step(context.Background())
	if line != DefaultIdleText || !changed {
		t.Errorf("first step = %q, %v", line, changed)
	}
	line, changed = a.Step(context.Background())
	if line != "Hello" || !changed {
		t.Errorf("second step = %q, %v", line, changed)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	probe := &scriptedProbe{steps: []probeResult{at("Song", 1)}}
	rec := &recorder{}
	a := New(probe, tableResolver{1: "Hello"}, rec, WithInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v", err)
	}
	if got := rec.snapshot(); !reflect.DeepEqual(got, []string{"Hello"}) {
		t.Errorf("broadcasts = %q, want exactly one Hello", got)
	}
}

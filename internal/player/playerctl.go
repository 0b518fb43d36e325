package player

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const playerctlFormat = "{{title}}\t{{artist}}\t{{album}}"

// Playerctl shells out to the playerctl command.
type Playerctl struct {
	player string
	run    func(ctx context.Context, args ...string) ([]byte, error)
}

func NewPlayerctl(player string) *Playerctl {
	return &Playerctl{player: player, run: runPlayerctl}
}

func runPlayerctl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "playerctl", args...).Output()
}

func (p *Playerctl) args(args ...string) []string {
	if p.player == "" {
		return args
	}
	return append([]string{"-p", strings.TrimPrefix(p.player, mprisPrefix)}, args...)
}

func (p *Playerctl) Current(ctx context.Context) (Snapshot, error) {
	out, err := p.run(ctx, p.args("metadata", "--format", playerctlFormat)...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: playerctl metadata: %v", ErrNoPlayer, err)
	}
	track, err := parsePlayerctlMetadata(string(out))
	if err != nil {
		return Snapshot{}, err
	}

	out, err = p.run(ctx, p.args("position")...)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: playerctl position: %v", ErrNoPlayer, err)
	}
	position, err := parsePlayerctlPosition(string(out))
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Track: track, Position: position}, nil
}

func parsePlayerctlMetadata(out string) (Track, error) {
	out = strings.TrimRight(out, "\r\n")
	parts := strings.SplitN(out, "\t", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	t := Track{Name: parts[0], Artist: parts[1], Album: parts[2]}
	if t.Name == "" {
		return Track{}, ErrNoMetadata
	}
	return t, nil
}

// parsePlayerctlPosition parses the position in seconds, e.g. "42.318000".
func parsePlayerctlPosition(out string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid position %q", ErrNoMetadata, strings.TrimSpace(out))
	}
	if seconds < 0 {
		return 0, nil
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

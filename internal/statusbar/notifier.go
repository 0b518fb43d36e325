// Package statusbar tells a status bar such as i3blocks to redraw when the
// lyric line changes.
package statusbar

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// sigRTMin is SIGRTMIN on Linux. i3blocks numbers block signals from it.
const sigRTMin = 34

const DefaultRefreshInterval = 10 * time.Second

var ErrProcessNotFound = errors.New("status bar process not found")

// Notifier sends SIGRTMIN+signal to the bar process. The process PID is
// looked up at start and refreshed periodically, since bars get restarted.
type Notifier struct {
	process string
	signal  int
	refresh time.Duration

	lookup func(ctx context.Context, process string) (int, error)
	send   func(pid int, sig syscall.Signal) error

	mu  sync.RWMutex
	pid int
}

func New(process string, signal int) *Notifier {
	return &Notifier{
		process: process,
		signal:  signal,
		refresh: DefaultRefreshInterval,
		lookup:  pgrep,
		send:    syscall.Kill,
		pid:     -1,
	}
}

// Run refreshes the PID until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	if err := n.Refresh(ctx); err != nil {
		log.Debug().Str("component", "statusbar").Err(err).Msg("Status bar not running yet")
	}

	ticker := time.NewTicker(n.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := n.Refresh(ctx); err != nil {
				log.Debug().Str("component", "statusbar").Err(err).Msg("Failed to refresh status bar PID")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh looks the bar process up again.
func (n *Notifier) Refresh(ctx context.Context) error {
	pid, err := n.lookup(ctx, n.process)
	if err != nil {
		pid = -1
	}

	n.mu.Lock()
	old := n.pid
	n.pid = pid
	n.mu.Unlock()

	if old != pid && pid > 0 {
		log.Info().Str("component", "statusbar").Str("process", n.process).Int("old_pid", old).Int("pid", pid).Msg("Status bar PID updated")
	}
	return err
}

// PID returns the last known PID, or -1.
func (n *Notifier) PID() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pid
}

// Notify asks the bar to redraw.
func (n *Notifier) Notify() error {
	pid := n.PID()
	if pid <= 0 {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, n.process)
	}
	sig := syscall.Signal(sigRTMin + n.signal)
	if err := n.send(pid, sig); err != nil {
		return fmt.Errorf("failed to send signal %d to %s (%d): %w", int(sig), n.process, pid, err)
	}
	return nil
}

func pgrep(ctx context.Context, process string) (int, error) {
	out, err := exec.CommandContext(ctx, "pgrep", "-x", process).Output()
	if err != nil {
		return -1, fmt.Errorf("%w: %s", ErrProcessNotFound, process)
	}
	return parsePgrep(string(out))
}

// parsePgrep returns the first PID in pgrep output.
func parsePgrep(out string) (int, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return -1, ErrProcessNotFound
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return -1, fmt.Errorf("failed to parse PID %q: %w", fields[0], err)
	}
	return pid, nil
}

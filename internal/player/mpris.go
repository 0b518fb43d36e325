package player

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	propertiesGet    = "org.freedesktop.DBus.Properties.Get"
)

// MPRIS reads playback state from the session bus.
type MPRIS struct {
	busName string

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewMPRIS(busName string) *MPRIS {
	return &MPRIS{busName: busName}
}

func (m *MPRIS) Current(ctx context.Context) (Snapshot, error) {
	conn, err := m.connection(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: session bus: %v", ErrNoPlayer, err)
	}

	name, err := m.pickPlayer(ctx, conn)
	if err != nil {
		return Snapshot{}, err
	}
	obj := conn.Object(name, mprisPath)

	var meta dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, mprisPlayerIface, "Metadata").Store(&meta); err != nil {
		m.dropIfDisconnected()
		return Snapshot{}, fmt.Errorf("%w: %s metadata: %v", ErrNoPlayer, name, err)
	}
	metadata, ok := meta.Value().(map[string]dbus.Variant)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unexpected metadata type %T", ErrNoMetadata, meta.Value())
	}
	track := trackFromMetadata(metadata)
	if track.Name == "" {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoMetadata, name)
	}

	var pos dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, mprisPlayerIface, "Position").Store(&pos); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s position: %v", ErrNoPlayer, name, err)
	}
	position, err := positionFromVariant(pos)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Track: track, Position: position}, nil
}

// Close releases the bus connection.
func (m *MPRIS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *MPRIS) connection(ctx context.Context) (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	m.conn = conn
	return conn, nil
}

func (m *MPRIS) dropIfDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && !m.conn.Connected() {
		m.conn.Close()
		m.conn = nil
	}
}

// pickPlayer returns the configured bus name, or the first MPRIS player
// that is playing, falling back to a paused one and then to any.
func (m *MPRIS) pickPlayer(ctx context.Context, conn *dbus.Conn) (string, error) {
	if m.busName != "" {
		return m.busName, nil
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		m.dropIfDisconnected()
		return "", fmt.Errorf("%w: listing bus names: %v", ErrNoPlayer, err)
	}

	statuses := make(map[string]string)
	var players []string
	for _, n := range names {
		if !strings.HasPrefix(n, mprisPrefix) {
			continue
		}
		players = append(players, n)

		var status dbus.Variant
		err := conn.Object(n, mprisPath).CallWithContext(ctx, propertiesGet, 0, mprisPlayerIface, "PlaybackStatus").Store(&status)
		if err != nil {
			log.Debug().Str("component", "player").Str("player", n).Err(err).Msg("Failed to read playback status")
			continue
		}
		if s, ok := status.Value().(string); ok {
			statuses[n] = s
		}
	}

	name := choosePlayer(players, statuses)
	if name == "" {
		return "", ErrNoPlayer
	}
	return name, nil
}

func choosePlayer(players []string, statuses map[string]string) string {
	if len(players) == 0 {
		return ""
	}
	sorted := append([]string(nil), players...)
	sort.Strings(sorted)
	for _, want := range []string{"Playing", "Paused"} {
		for _, p := range sorted {
			if statuses[p] == want {
				return p
			}
		}
	}
	return sorted[0]
}

func trackFromMetadata(metadata map[string]dbus.Variant) Track {
	return Track{
		Name:   variantString(metadata, "xesam:title"),
		Artist: variantFirstString(metadata, "xesam:artist"),
		Album:  variantString(metadata, "xesam:album"),
	}
}

func variantString(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func variantFirstString(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	switch typed := v.Value().(type) {
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
	case string:
		return typed
	}
	return ""
}

// positionFromVariant converts the MPRIS Position property, in microseconds.
func positionFromVariant(v dbus.Variant) (time.Duration, error) {
	var us int64
	switch typed := v.Value().(type) {
	case int64:
		us = typed
	case uint64:
		us = int64(typed)
	case int32:
		us = int64(typed)
	default:
		return 0, fmt.Errorf("%w: unexpected position type %T", ErrNoMetadata, v.Value())
	}
	if us < 0 {
		us = 0
	}
	return time.Duration(us) * time.Microsecond, nil
}

package lyrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lyricosd/internal/lrccache"
	"lyricosd/internal/player"
	"lyricosd/internal/store"
	"lyricosd/pkg/lrc"
)

const helloWorld = "[00:01.00]Hello\n[00:05.50]World\n"

// setupResolver indexes one track whose lyrics live in a temporary file.
func setupResolver(t *testing.T, content string, opts ...Option) (*Resolver, *store.Store, string) {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := store.Open(ctx, filepath.Join(dir, "index.sqlite"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	path := filepath.Join(dir, "song.lrc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, store.Entry{Name: "Song", Album: "Album", Lyrics: path}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return NewResolver(s, opts...), s, path
}

func snapshot(name, album string, pos time.Duration) player.Snapshot {
	return player.Snapshot{Track: player.Track{Name: name, Album: album}, Position: pos}
}

func TestResolveCurrentLine(t *testing.T) {
	r, _, _ := setupResolver(t, helloWorld)

	tests := []struct {
		pos  time.Duration
		want string
	}{
		{1 * time.Second, "Hello"},
		{3 * time.Second, "Hello"},
		{5500 * time.Millisecond, "World"},
		{9 * time.Second, "World"},
	}
	for _, tt := range tests {
		got, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", tt.pos))
		if err != nil {
			t.Fatalf("at %v: %v", tt.pos, err)
		}
		if got != tt.want {
			t.Errorf("at %v = %q, want %q", tt.pos, got, tt.want)
		}
	}
}

func TestResolveBeforeFirstLine(t *testing.T) {
	r, _, _ := setupResolver(t, helloWorld)
	_, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", 500*time.Millisecond))
	if !errors.Is(err, ErrNoActiveLine) {
		t.Fatalf("error = %v, want ErrNoActiveLine", err)
	}
	if !IsNoLyric(err) {
		t.Error("ErrNoActiveLine should count as no lyric")
	}
}

func TestResolveNotIndexed(t *testing.T) {
	r, _, _ := setupResolver(t, helloWorld)
	for _, snap := range []player.Snapshot{
		snapshot("Other", "Album", time.Second),
		snapshot("song", "Album", time.Second),
		snapshot("Song", "Album ", time.Second),
	} {
		if _, err := r.ResolveCurrentLine(context.Background(), snap); !errors.Is(err, ErrNotIndexed) {
			t.Errorf("%+v: error = %v, want ErrNotIndexed", snap.Track, err)
		}
	}
}

func TestResolveFileMissing(t *testing.T) {
	r, _, path := setupResolver(t, helloWorld)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	_, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", time.Second))
	if !errors.Is(err, ErrFileMissing) {
		t.Fatalf("error = %v, want ErrFileMissing", err)
	}
}

func TestResolveParseFailure(t *testing.T) {
	r, _, _ := setupResolver(t, "this is not a lyric file\n")
	_, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", time.Second))
	if !errors.Is(err, ErrParseFailure) || !errors.Is(err, lrc.ErrMalformedInput) {
		t.Fatalf("error = %v, want ErrParseFailure wrapping lrc.ErrMalformedInput", err)
	}
	if IsNoLyric(err) {
		t.Error("a parse failure is a fault, not a no-lyric outcome")
	}
}

func TestResolveWithLead(t *testing.T) {
	r, _, _ := setupResolver(t, helloWorld, WithLead(200*time.Millisecond))
	got, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", 5300*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if got != "World" {
		t.Errorf("got %q, want World", got)
	}
}

func TestResolveEmptyAlbum(t *testing.T) {
	ctx := context.Background()
	r, s, path := setupResolver(t, helloWorld)
	if err := s.Insert(ctx, store.Entry{Name: "Single", Lyrics: path}); err != nil {
		t.Fatal(err)
	}
	got, err := r.ResolveCurrentLine(ctx, snapshot("Single", "", 2*time.Second))
	if err != nil || got != "Hello" {
		t.Errorf("got %q, %v", got, err)
	}
}

// countingCache counts hits and misses around a memory cache.
type countingCache struct {
	*lrccache.Memory
	hits int
}

func (c *countingCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := c.Memory.Get(ctx, key)
	if ok {
		c.hits++
	}
	return v, ok, err
}

func TestResolveUsesCache(t *testing.T) {
	cache := &countingCache{Memory: lrccache.NewMemory()}
	r, _, path := setupResolver(t, helloWorld, WithCache(cache))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.ResolveCurrentLine(ctx, snapshot("Song", "Album", 2*time.Second)); err != nil {
			t.Fatal(err)
		}
	}
	if cache.hits != 2 {
		t.Errorf("cache hits = %d, want 2", cache.hits)
	}

	// A rewrite must not be served from the cache.
	if err := os.WriteFile(path, []byte("[00:01.00]Changed lyrics\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	got, err := r.ResolveCurrentLine(ctx, snapshot("Song", "Album", 2*time.Second))
	if err != nil || got != "Changed lyrics" {
		t.Errorf("after rewrite got %q, %v", got, err)
	}
}

type failingIndex struct{}

func (failingIndex) Lookup(context.Context, string, string) (string, bool, error) {
	return "", false, fmt.Errorf("%w: database is locked", store.ErrIO)
}

func TestResolveStoreFailure(t *testing.T) {
	r := NewResolver(failingIndex{})
	_, err := r.ResolveCurrentLine(context.Background(), snapshot("Song", "Album", time.Second))
	if !errors.Is(err, store.ErrIO) {
		t.Fatalf("error = %v, want store.ErrIO", err)
	}
	if IsNoLyric(err) {
		t.Error("a store failure is a fault")
	}
}

func TestIsNoLyricPlayerErrors(t *testing.T) {
	for _, err := range []error{player.ErrNoPlayer, fmt.Errorf("wrap: %w", player.ErrNoMetadata)} {
		if !IsNoLyric(err) {
			t.Errorf("IsNoLyric(%v) = false", err)
		}
	}
	if IsNoLyric(errors.New("boom")) {
		t.Error("IsNoLyric(boom) = true")
	}
}

func TestDocumentExposesTags(t *testing.T) {
	r, _, _ := setupResolver(t, "[ti:Song]\n"+helloWorld)
	doc, err := r.Document(context.Background(), player.Track{Name: "Song", Album: "Album"})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 2 {
		t.Errorf("Len = %d, want 2", doc.Len())
	}
	if ti, ok := doc.Tag("ti"); !ok || ti != "Song" {
		t.Errorf("Tag(ti) = %q, %v", ti, ok)
	}
}

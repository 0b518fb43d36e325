package lrccache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}
	if err := m.Set(ctx, "k", "[00:01.00]hi\n"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || got != "[00:01.00]hi\n" {
		t.Errorf("Get(k) = %q, %v, %v", got, ok, err)
	}
}

func TestKeyChangesWhenFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.lrc")
	if err := os.WriteFile(path, []byte("[00:01.00]a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[00:01.00]longer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	later := before.ModTime().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if Key(path, before) == Key(path, after) {
		t.Error("key did not change after rewrite")
	}
	if Key(path, after) != Key(path, after) {
		t.Error("key is not stable")
	}
}

func TestMemoryEvictsOlderVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a:b.lrc")
	if err := os.WriteFile(path, []byte("[00:01.00]a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	v1, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[00:01.00]longer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	v2, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMemory()
	m.Set(ctx, Key(path, v1), "one")
	m.Set(ctx, Key(path, v2), "two")
	m.Set(ctx, Key(path, v2), "two")
	m.Set(ctx, "unrelated", "x")

	if _, ok, _ := m.Get(ctx, Key(path, v1)); ok {
		t.Error("older version still cached")
	}
	if got, ok, _ := m.Get(ctx, Key(path, v2)); !ok || got != "two" {
		t.Errorf("Get(v2) = %q, %v", got, ok)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestFileOf(t *testing.T) {
	tests := map[string]string{
		keyPrefix + "/music/a.lrc:12:345": keyPrefix + "/music/a.lrc",
		keyPrefix + "/x:y/a.lrc:12:345":   keyPrefix + "/x:y/a.lrc",
		"plain":                           "plain",
		keyPrefix + "short":               keyPrefix + "short",
	}
	for in, want := range tests {
		if got := fileOf(in); got != want {
			t.Errorf("fileOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("LYRICOSD_TEST_REDIS")
	if addr == "" {
		t.Skip("LYRICOSD_TEST_REDIS not set")
	}
	c, err := NewRedis(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := keyPrefix + "test:" + t.Name()
	if err := c.Set(ctx, key, "[00:02.00]x\n"); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok || got != "[00:02.00]x\n" {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}
	if _, ok, err := c.Get(ctx, key+":absent"); ok || err != nil {
		t.Errorf("absent key = %v, %v", ok, err)
	}
}

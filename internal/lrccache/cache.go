// Package lrccache keeps raw lyric file contents so the display loop does
// not reread the same file on every tick.
package lrccache

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

const keyPrefix = "lyricosd:lrc:"

// Cache stores lyric file contents by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key identifies one version of a file. A rewrite changes size or mtime and
// therefore the key, so stale contents are never returned.
func Key(path string, info os.FileInfo) string {
	return fmt.Sprintf("%s%s:%d:%d", keyPrefix, path, info.Size(), info.ModTime().UnixNano())
}

// fileOf strips the size and mtime from a key built by Key. Other keys are
// returned unchanged.
func fileOf(key string) string {
	if !strings.HasPrefix(key, keyPrefix) {
		return key
	}
	for i := 0; i < 2; i++ {
		j := strings.LastIndexByte(key, ':')
		if j < len(keyPrefix) {
			return key
		}
		key = key[:j]
	}
	return key
}

// Memory is a process-local cache holding one version per file: storing a
// new version of a file evicts the previous one.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
	current map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]string),
		current: make(map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file := fileOf(key)
	if old, ok := m.current[file]; ok && old != key {
		delete(m.entries, old)
	}
	m.current[file] = key
	m.entries[key] = value
	return nil
}

// Len returns the number of cached versions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

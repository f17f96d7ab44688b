package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process backend used by tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func flatten(key []string) string {
	return strings.Join(key, "/")
}

func (m *Memory) Get(ctx context.Context, key []string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[flatten(key)]
	return v, ok, nil
}

func (m *Memory) Put(ctx context.Context, key []string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[flatten(key)] = value
	return nil
}

func (m *Memory) PutNew(ctx context.Context, key []string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := flatten(key)
	if _, ok := m.entries[k]; ok {
		return ErrExists
	}
	m.entries[k] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := flatten(key)
	if _, ok := m.entries[k]; !ok {
		return ErrNotFound
	}
	delete(m.entries, k)
	return nil
}

func (m *Memory) List(ctx context.Context, prefix []string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead := flatten(prefix) + "/"
	var out []Entry
	for k, v := range m.entries {
		if !strings.HasPrefix(k, lead) {
			continue
		}
		out = append(out, Entry{Key: strings.Split(k, "/"), Value: v})
	}
	return out, nil
}

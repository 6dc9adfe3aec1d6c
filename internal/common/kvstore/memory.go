// internal/common/kvstore/memory.go
package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	strings map[string]map[string]string
	lists   map[string]map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]map[string]string),
		lists:   make(map[string]map[string][]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.strings[namespace][key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, namespace, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.strings[namespace]
	if !ok {
		ns = make(map[string]string)
		m.strings[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (m *MemoryStore) GetList(_ context.Context, namespace, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.lists[namespace][key]
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

func (m *MemoryStore) SetList(_ context.Context, namespace, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.lists[namespace]
	if !ok {
		ns = make(map[string][]string)
		m.lists[namespace] = ns
	}
	cp := make([]string, len(values))
	copy(cp, values)
	ns[key] = cp
	return nil
}

func (m *MemoryStore) Sync(context.Context) error { return nil }

// Len returns the number of string and list entries in a namespace.
func (m *MemoryStore) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.strings[namespace]) + len(m.lists[namespace])
}

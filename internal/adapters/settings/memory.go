// Package settings provides an in-process ports.SettingsStore. Deployments
// owning a real settings service substitute it behind the same port.
package settings

import (
	"context"
	"sync"
)

// Memory is a goroutine-safe in-memory settings store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory constructs an empty store, optionally seeded with values.
func NewMemory(seed map[string]string) *Memory {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &Memory{values: values}
}

// GetValue implements ports.SettingsStore.
func (m *Memory) GetValue(_ context.Context, key, def string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

// SetValue implements ports.SettingsStore.
func (m *Memory) SetValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

package state

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	values   map[Key]*big.Int
	settings *Settings
}

func NewMemory() *Memory {
	return &Memory{values: make(map[Key]*big.Int)}
}

func (m *Memory) Get(_ context.Context, key Key) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(big.Int).Set(orZero(m.values[key])), nil
}

func (m *Memory) Settings(_ context.Context) (Settings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return Settings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *Memory) Commit(_ context.Context, cs *Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range cs.Writes {
		if !Same(m.values[w.Key], w.Old) {
			return fmt.Errorf("%w: %s %s", ErrConflict, w.Key.Kind, w.Key.Addr.Hex())
		}
	}
	for _, w := range cs.Writes {
		m.values[w.Key] = new(big.Int).Set(w.New)
	}
	if cs.Settings != nil {
		s := *cs.Settings
		m.settings = &s
	}
	return nil
}

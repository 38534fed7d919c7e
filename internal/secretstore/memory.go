package secretstore

import (
	"context"
	"fmt"
	"sync"

	shielderrors "github.com/storyforge/shield/internal/errors"
)

// MemoryStore is an in-process Store for tests and local development.
// Values written through Put are held base-form only; Get with decrypt
// false returns a sealed representation so callers can distinguish the
// two retrieval modes.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]string
	getFn   func(name string, decrypt bool) (string, error)
	GetCnt  int
	PutCnt  int
	FailPut bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Seed inserts a value without counting as a Put.
func (m *MemoryStore) Seed(name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// SetGetHook overrides Get behavior for failure-injection tests.
func (m *MemoryStore) SetGetHook(fn func(name string, decrypt bool) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getFn = fn
}

// Get returns the stored value or a not-found error.
func (m *MemoryStore) Get(ctx context.Context, name string, decrypt bool) (string, error) {
	m.mu.Lock()
	m.GetCnt++
	hook := m.getFn
	value, ok := m.values[name]
	m.mu.Unlock()

	if hook != nil {
		return hook(name, decrypt)
	}
	if !ok {
		return "", shielderrors.SecretNotFoundError{Name: name}
	}
	if !decrypt {
		return "sealed:" + value, nil
	}
	return value, nil
}

// Put stores the value, honoring the overwrite flag.
func (m *MemoryStore) Put(ctx context.Context, name, value string, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCnt++

	if m.FailPut {
		return shielderrors.SecretRetrievalError{Name: name, Err: fmt.Errorf("injected put failure")}
	}
	if _, exists := m.values[name]; exists && !overwrite {
		return fmt.Errorf("secret %s already exists and overwrite is false", name)
	}
	m.values[name] = value
	return nil
}

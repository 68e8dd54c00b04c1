// Package memstore is an in-memory PersistenceAdapter for tests and for
// operators who accept losing in-flight state across a process crash.
// Adapted from the teacher's storage.MemoryTxStore, narrowed from a
// map-of-records to a single *PersistentState the way the spec's
// Persistence Adapter capability shape requires.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/arcsign/txmanager/txmanager"
)

// Store holds at most one txmanager.PersistentState, guarded by a mutex.
// Reads and writes deep-copy through JSON round-tripping so callers can
// never mutate the stored record through a returned pointer.
type Store struct {
	mu    sync.RWMutex
	state *txmanager.PersistentState
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) SetState(ctx context.Context, state *txmanager.PersistentState) error {
	cp, err := copyState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cp
	return nil
}

func (s *Store) GetState(ctx context.Context) (*txmanager.PersistentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	return copyState(s.state)
}

func (s *Store) ClearState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return errors.New("memstore: clear state: not found")
	}
	s.state = nil
	return nil
}

func copyState(state *txmanager.PersistentState) (*txmanager.PersistentState, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var cp txmanager.PersistentState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

var _ txmanager.PersistenceAdapter = (*Store)(nil)

// Package handoff records the location of the most recent artifact so the
// load stage can find what the flatten stage wrote.
package handoff

import (
	"context"
	"errors"
	"sync"
)

// ErrNoArtifact is returned by Latest when no location has been recorded,
// or the recorded one has expired.
var ErrNoArtifact = errors.New("no artifact recorded")

// Store holds the latest artifact location.
type Store interface {
	Put(ctx context.Context, location string) error
	Latest(ctx context.Context) (string, error)
}

// Memory is an in-process Store, sufficient when both stages run in the
// same process.
type Memory struct {
	mu       sync.RWMutex
	location string
}

// NewMemory returns an empty in-process Store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Put(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = location
	return nil
}

func (m *Memory) Latest(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.location == "" {
		return "", ErrNoArtifact
	}
	return m.location, nil
}

package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemorySaver is an in-process Checkpointer. Each thread keeps an append-only
// history; Get returns its last entry.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
}

// NewMemorySaver creates an empty MemorySaver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]*Checkpoint)}
}

// Put appends a copy of cp.
func (m *MemorySaver) Put(ctx context.Context, cfg CheckpointConfig, cp *Checkpoint) error {
	if cfg.ThreadID == "" {
		return ErrInvalidThread
	}
	if cp == nil {
		return fmt.Errorf("nil checkpoint for thread %s", cfg.ThreadID)
	}
	stored := cp.Clone()
	stored.ThreadID = cfg.ThreadID

	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[cfg.ThreadID] = append(m.threads[cfg.ThreadID], stored)
	return nil
}

// Get returns a copy of the latest checkpoint, or nil.
func (m *MemorySaver) Get(ctx context.Context, cfg CheckpointConfig) (*Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, ErrInvalidThread
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.threads[cfg.ThreadID]
	if len(history) == 0 {
		return nil, nil
	}
	return history[len(history)-1].Clone(), nil
}

// List returns copies of the thread's checkpoints, oldest first.
func (m *MemorySaver) List(ctx context.Context, cfg CheckpointConfig) ([]*Checkpoint, error) {
	if cfg.ThreadID == "" {
		return nil, ErrInvalidThread
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.threads[cfg.ThreadID]
	out := make([]*Checkpoint, 0, len(history))
	for _, cp := range history {
		out = append(out, cp.Clone())
	}
	return out, nil
}

// Threads returns the known thread ids in sorted order.
func (m *MemorySaver) Threads() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ ThreadStore = (*MemorySaver)(nil)

// ListThreads implements ThreadStore.
func (m *MemorySaver) ListThreads(ctx context.Context) ([]string, error) {
	return m.Threads(), nil
}

// DeleteThread drops a thread's history.
func (m *MemorySaver) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

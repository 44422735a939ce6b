package linker

import (
	"context"
	"sync"
	"time"

	"github.com/zero-day-ai/kgraph/schema"
)

// PendingLink is a relationship waiting for one of its endpoints to exist.
type PendingLink struct {
	ID         string              `json:"id"`
	FromID     string              `json:"from_id"`
	ToID       string              `json:"to_id"`
	Type       schema.RelationType `json:"type"`
	Properties map[string]any      `json:"properties,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`

	// Attempts counts how many times the link was retried.
	Attempts int `json:"attempts"`
}

// PendingStore holds pending links keyed by the id of the missing node.
type PendingStore interface {
	// Add queues link under key.
	Add(ctx context.Context, key string, link PendingLink) error

	// Take removes and returns every link queued under key, oldest first.
	Take(ctx context.Context, key string) ([]PendingLink, error)

	// Len returns the number of queued links across all keys.
	Len(ctx context.Context) (int, error)
}

// MemoryPending is an in-process PendingStore.
type MemoryPending struct {
	mu    sync.Mutex
	links map[string][]PendingLink
}

var _ PendingStore = (*MemoryPending)(nil)

// NewMemoryPending creates an empty store.
func NewMemoryPending() *MemoryPending {
	return &MemoryPending{links: make(map[string][]PendingLink)}
}

func (m *MemoryPending) Add(_ context.Context, key string, link PendingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[key] = append(m.links[key], link)
	return nil
}

func (m *MemoryPending) Take(_ context.Context, key string) ([]PendingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	links := m.links[key]
	delete(m.links, key)
	return links, nil
}

func (m *MemoryPending) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, links := range m.links {
		n += len(links)
	}
	return n, nil
}

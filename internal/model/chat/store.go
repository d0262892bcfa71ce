package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store persists chat messages in insertion order.
type Store interface {
	// Append persists msg and returns the identifier assigned to it.
	Append(ctx context.Context, msg Message) (string, error)
	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, limit int) ([]Message, error)
	// Count reports how many messages are stored.
	Count(ctx context.Context) (int, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Message
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied messages.
func NewMemoryStore(items []Message) *MemoryStore {
	return &MemoryStore{items: append([]Message(nil), items...)}
}

// Append stores msg under a fresh identifier.
func (s *MemoryStore) Append(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg.ID = uuid.NewString()

	s.mu.Lock()
	s.items = append(s.items, msg)
	s.mu.Unlock()

	return msg.ID, nil
}

// Recent returns the newest limit messages in insertion order.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Message{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.items) - limit
	if start < 0 {
		start = 0
	}
	copied := make([]Message, len(s.items)-start)
	copy(copied, s.items[start:])
	return copied, nil
}

// Count returns the number of stored messages.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Close is a no-op so MemoryStore can stand in for durable backends.
func (s *MemoryStore) Close() error {
	return nil
}

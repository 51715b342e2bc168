package chatlog

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

// MemoryStore keeps the chat log in process memory, suitable for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []chatlog.Entry
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied entries.
// Seed entries without an ID receive one.
func NewMemoryStore(seed ...chatlog.Entry) *MemoryStore {
	store := &MemoryStore{entries: make([]chatlog.Entry, 0, len(seed)+16)}
	for _, entry := range seed {
		if entry.ID == "" {
			entry.ID = NewPushID()
		}
		store.entries = append(store.entries, entry)
	}
	return store
}

// Append adds an entry to the end of the log.
func (s *MemoryStore) Append(ctx context.Context, entry chatlog.Entry) (chatlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return chatlog.Entry{}, err
	}

	entry.ID = NewPushID()
	entry.CreatedAt = copyTimestamp(entry.CreatedAt)

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	return entry, nil
}

// Recent returns the newest limit entries, oldest first.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]chatlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	copied := make([]chatlog.Entry, len(s.entries))
	copy(copied, s.entries)
	s.mu.RUnlock()

	sortByCreatedAt(copied)
	if limit > 0 && len(copied) > limit {
		copied = copied[len(copied)-limit:]
	}
	return copied, nil
}

// Len reports how many entries the log holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func copyTimestamp(ts *int64) *int64 {
	if ts == nil {
		return nil
	}
	v := *ts
	return &v
}

package chatlog

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/observe"
)

// Listener receives every entry once it has been stored. Listeners run on the
// appending goroutine and must not block.
type Listener func(entry chatlog.Entry)

// ObservedStore decorates a Store and announces each successful append, the
// way the hosting runtime fires a "child added" event for new log entries.
type ObservedStore struct {
	Store

	metrics *observe.Metrics

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// NewObservedStore wraps inner. metrics may be nil.
func NewObservedStore(inner Store, metrics *observe.Metrics) *ObservedStore {
	return &ObservedStore{
		Store:     inner,
		metrics:   metrics,
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (s *ObservedStore) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Append stores entry through the wrapped store and notifies listeners.
func (s *ObservedStore) Append(ctx context.Context, entry chatlog.Entry) (chatlog.Entry, error) {
	stored, err := s.Store.Append(ctx, entry)
	if err != nil {
		return chatlog.Entry{}, err
	}
	s.metrics.RecordAppend(ctx, stored.IsGenerated)

	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		l(stored)
	}
	return stored, nil
}

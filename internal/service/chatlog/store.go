package chatlog

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

// Store is the ordered, push-append chat log the responder reads from and writes to.
type Store interface {
	// Append stores entry under a freshly assigned push ID and returns the stored copy.
	// CreatedAt is kept as supplied, including nil.
	Append(ctx context.Context, entry chatlog.Entry) (chatlog.Entry, error)
	// Recent returns up to limit of the newest entries ordered by createdAt ascending.
	// Entries without createdAt sort before timestamped ones, ties fall back to the key.
	// A limit <= 0 returns the whole log.
	Recent(ctx context.Context, limit int) ([]chatlog.Entry, error)
}

// NewPushID returns a time-ordered identifier whose string form sorts by creation time.
func NewPushID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// sortByCreatedAt orders entries the way the log's child query does.
func sortByCreatedAt(entries []chatlog.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].CreatedAt, entries[j].CreatedAt
		switch {
		case a == nil && b == nil:
			return entries[i].ID < entries[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case *a != *b:
			return *a < *b
		default:
			return entries[i].ID < entries[j].ID
		}
	})
}

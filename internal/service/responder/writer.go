package responder

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
)

// Writer appends generated replies to the log.
type Writer struct {
	store chatlogservice.Store
	now   func() time.Time
}

// NewWriter returns a Writer stamping entries with the wall clock.
func NewWriter(store chatlogservice.Store) *Writer {
	return &Writer{store: store, now: time.Now}
}

// Write appends text as a generated entry. There is no read-after-write check.
func (w *Writer) Write(ctx context.Context, text string) (chatlog.Entry, error) {
	stored, err := w.store.Append(ctx, chatlog.Entry{
		Text:        text,
		AuthorName:  chatlog.GeneratedAuthor,
		IsGenerated: true,
		CreatedAt:   chatlog.Timestamp(w.now()),
	})
	if err != nil {
		return chatlog.Entry{}, fmt.Errorf("append reply: %w", err)
	}
	return stored, nil
}

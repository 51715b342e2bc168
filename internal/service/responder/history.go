package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
)

// HistoryReader turns the newest window of the log into transcript lines.
type HistoryReader struct {
	store chatlogservice.Store
	limit int
}

// NewHistoryReader reads at most limit entries per call.
func NewHistoryReader(store chatlogservice.Store, limit int) *HistoryReader {
	return &HistoryReader{store: store, limit: limit}
}

// Read returns transcript lines oldest first, in the order the store returned
// them. Entries without text are dropped after the query, so the window is
// not refilled. A store error is returned as is and no partial history is used.
func (r *HistoryReader) Read(ctx context.Context) ([]string, error) {
	entries, err := r.store.Recent(ctx, r.limit)
	if err != nil {
		return nil, fmt.Errorf("read chat log history: %w", err)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if line, ok := TranscriptLine(entry); ok {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// TranscriptLine renders entry as "ROLE(name): text". It returns false when
// the normalized text is empty.
func TranscriptLine(entry chatlog.Entry) (string, bool) {
	text := normalizeText(entry.Text)
	if text == "" {
		return "", false
	}

	role := entry.Role()
	name := strings.TrimSpace(entry.AuthorName)
	if name == "" {
		name = role
	}
	return fmt.Sprintf("%s(%s): %s", role, name, text), true
}

// normalizeText collapses whitespace runs into one space and trims the ends.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

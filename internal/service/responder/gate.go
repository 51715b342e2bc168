package responder

import (
	"strings"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

// ShouldRespond reports whether a newly created entry deserves a reply. It is
// the only guard against the responder answering its own entries, so it runs
// before any I/O and must stay free of side effects.
func ShouldRespond(entry *chatlog.Entry) bool {
	if entry == nil {
		return false
	}
	if entry.IsGenerated || entry.AuthorName == chatlog.GeneratedAuthor {
		return false
	}
	return strings.TrimSpace(entry.Text) != ""
}

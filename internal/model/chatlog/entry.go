package chatlog

import "time"

// GeneratedAuthor is the reserved author label carried by entries the responder writes.
const GeneratedAuthor = "AI"

// Role labels used when rendering transcript lines.
const (
	RoleAI   = "AI"
	RoleUser = "USER"
)

// Entry is one record of the shared append-only chat log.
type Entry struct {
	ID          string `json:"id,omitempty"`
	Text        string `json:"text,omitempty"`
	AuthorName  string `json:"uname,omitempty"`
	IsGenerated bool   `json:"isAI,omitempty"`
	// CreatedAt is milliseconds since the Unix epoch; nil when the writer omitted it.
	CreatedAt *int64 `json:"createdAt,omitempty"`
}

// Role returns RoleAI for generated entries and RoleUser otherwise.
func (e Entry) Role() string {
	if e.IsGenerated {
		return RoleAI
	}
	return RoleUser
}

// Timestamp converts t into the log's millisecond representation.
func Timestamp(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

package responder

import (
	"testing"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

func TestShouldRespond(t *testing.T) {
	tests := []struct {
		name  string
		entry *chatlog.Entry
		want  bool
	}{
		{name: "nil entry", entry: nil, want: false},
		{name: "generated flag", entry: &chatlog.Entry{Text: "hi", IsGenerated: true}, want: false},
		{name: "generated author label", entry: &chatlog.Entry{Text: "hi", AuthorName: chatlog.GeneratedAuthor}, want: false},
		{name: "generated flag and human name", entry: &chatlog.Entry{Text: "hi", AuthorName: "u1", IsGenerated: true}, want: false},
		{name: "empty text", entry: &chatlog.Entry{Text: ""}, want: false},
		{name: "whitespace only", entry: &chatlog.Entry{Text: " \n\t　"}, want: false},
		{name: "missing text with name", entry: &chatlog.Entry{AuthorName: "u1"}, want: false},
		{name: "human message", entry: &chatlog.Entry{Text: "I want to switch careers", AuthorName: "u1"}, want: true},
		{name: "anonymous human message", entry: &chatlog.Entry{Text: "hello"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRespond(tt.entry); got != tt.want {
				t.Fatalf("ShouldRespond() = %v, want %v", got, tt.want)
			}
		})
	}
}

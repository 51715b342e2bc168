package chatlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
)

func setupRouter(seed ...chatlog.Entry) (*chi.Mux, *chatlogservice.MemoryStore) {
	store := chatlogservice.NewMemoryStore(seed...)
	handler := New(store, 30, nil)
	handler.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func postMessage(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestAppendMessage(t *testing.T) {
	r, store := setupRouter()

	resp := postMessage(r, `{"text":"  I want to switch careers ","uname":"u1","isAI":true,"createdAt":1}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	var stored chatlog.Entry
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected an id")
	}
	if stored.Text != "I want to switch careers" {
		t.Fatalf("unexpected text %q", stored.Text)
	}
	if stored.IsGenerated {
		t.Fatal("clients must not be able to mark entries as generated")
	}
	if stored.CreatedAt == nil || *stored.CreatedAt != 1_700_000_000_000 {
		t.Fatalf("expected server timestamp, got %v", stored.CreatedAt)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored entry, got %d", store.Len())
	}
}

func TestAppendMessageRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"text":`},
		{name: "empty text", body: `{"text":"   ","uname":"u1"}`},
		{name: "reserved author", body: `{"text":"hi","uname":"AI"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := setupRouter()
			resp := postMessage(r, tt.body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
			if store.Len() != 0 {
				t.Fatalf("expected nothing stored, got %d", store.Len())
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	seed := make([]chatlog.Entry, 0, 40)
	for i := 0; i < 40; i++ {
		ms := int64(i)
		seed = append(seed, chatlog.Entry{Text: fmt.Sprintf("m%02d", i), AuthorName: "u", CreatedAt: &ms})
	}
	r, _ := setupRouter(seed...)

	tests := []struct {
		query string
		want  int
		first string
	}{
		{query: "", want: 30, first: "m10"},
		{query: "?limit=5", want: 5, first: "m35"},
		{query: "?limit=500", want: 40, first: "m00"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/messages"+tt.query, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusOK {
			t.Fatalf("%q: expected 200, got %d", tt.query, resp.Code)
		}
		var body struct {
			Entries []chatlog.Entry `json:"entries"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Entries) != tt.want {
			t.Fatalf("%q: expected %d entries, got %d", tt.query, tt.want, len(body.Entries))
		}
		if body.Entries[0].Text != tt.first {
			t.Fatalf("%q: expected first entry %s, got %s", tt.query, tt.first, body.Entries[0].Text)
		}
	}
}

func TestListMessagesInvalidLimit(t *testing.T) {
	r, _ := setupRouter()

	for _, q := range []string{"abc", "0", "-1", "501"} {
		req := httptest.NewRequest(http.MethodGet, "/messages?limit="+q, nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", q, resp.Code)
		}
	}
}

func TestListMessagesEmptyLog(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := resp.Body.String(); got != "{\"entries\":[]}\n" {
		t.Fatalf("unexpected body %q", got)
	}
}

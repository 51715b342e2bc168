package live

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
)

func newLiveServer(t *testing.T) (*httptest.Server, *chatlogservice.ObservedStore) {
	t.Helper()
	store := chatlogservice.NewObservedStore(chatlogservice.NewMemoryStore(), nil)

	r := chi.NewRouter()
	New(store, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestWebSocketPushesAppendedEntries(t *testing.T) {
	srv, store := newLiveServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/messages/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello outgoingMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)

	stored, err := store.Append(context.Background(), chatlog.Entry{Text: "hello", AuthorName: "u1"})
	require.NoError(t, err)

	var msg outgoingMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "entry", msg.Type)
	require.NotNil(t, msg.Entry)
	assert.Equal(t, stored.ID, msg.Entry.ID)
	assert.Equal(t, "hello", msg.Entry.Text)
}

func TestSSEPushesAppendedEntries(t *testing.T) {
	srv, store := newLiveServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/messages/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if event != "" {
					return event, data
				}
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, _ := readEvent()
	require.Equal(t, "status", event)

	_, err = store.Append(context.Background(), chatlog.Entry{Text: "【結論】", AuthorName: chatlog.GeneratedAuthor, IsGenerated: true})
	require.NoError(t, err)

	event, data := readEvent()
	assert.Equal(t, "entry", event)
	assert.Contains(t, data, `"isAI":true`)
	assert.Contains(t, data, "【結論】")
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	store := chatlogservice.NewObservedStore(chatlogservice.NewMemoryStore(), nil)
	h := New(store, nil)

	entries, unsubscribe := h.subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < bufferSize+10; i++ {
			_, _ = store.Append(context.Background(), chatlog.Entry{Text: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("append blocked on a slow subscriber")
	}
	assert.Len(t, entries, bufferSize)
}

// Package live pushes newly appended chat log entries to connected clients.
package live

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/pkg/utils"
)

const (
	bufferSize   = 64
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Feed is the append notification source, normally a *chatlog.ObservedStore.
type Feed interface {
	Subscribe(l chatlogservice.Listener) (unsubscribe func())
}

// Handler 实时推送日志条目的处理器
type Handler struct {
	feed         Feed
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// New 创建实时推送处理器
func New(feed Feed, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		feed:   feed,
		logger: logger.Named("live"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: pingInterval,
	}
}

// RegisterRoutes 注册实时推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages/live", h.handleWebSocket)
	r.Get("/messages/stream", h.handleSSE)
}

type outgoingMessage struct {
	Type      string         `json:"type"`
	Entry     *chatlog.Entry `json:"entry,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// subscribe registers a buffered listener. Entries that do not fit are
// dropped so a slow client never stalls the appending goroutine.
func (h *Handler) subscribe() (<-chan chatlog.Entry, func()) {
	ch := make(chan chatlog.Entry, bufferSize)
	unsubscribe := h.feed.Subscribe(func(entry chatlog.Entry) {
		select {
		case ch <- entry:
		default:
			h.logger.Warn("live client too slow, dropping entry", zap.String("entryID", entry.ID))
		}
	})
	return ch, unsubscribe
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the upgrade so nothing appended after the handshake is missed.
	entries, unsubscribe := h.subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("live client connected", zap.String("remote", r.RemoteAddr))

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	if err := h.write(conn, outgoingMessage{Type: "connected", Timestamp: time.Now().UnixMilli()}); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case entry := <-entries:
			if err := h.write(conn, outgoingMessage{Type: "entry", Entry: &entry, Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 丢弃客户端消息，只负责处理 pong 和检测断开
func (h *Handler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, msg outgoingMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// handleSSE 以 Server-Sent Events 推送同样的数据，供无法使用 WebSocket 的客户端
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	entries, unsubscribe := h.subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"}); err != nil {
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-entries:
			if err := utils.SendSSEEvent(w, flusher, "entry", entry); err != nil {
				h.logger.Debug("sse write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "ping"); err != nil {
				return
			}
		}
	}
}

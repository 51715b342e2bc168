package chatlog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	chatlogservice "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/pkg/utils"
)

const (
	maxListLimit = 500
	maxTextBytes = 16 << 10
)

// Handler 聊天日志的HTTP处理器
type Handler struct {
	store        chatlogservice.Store
	defaultLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// New 创建聊天日志处理器，defaultLimit 是未指定 limit 时返回的条数
func New(store chatlogservice.Store, defaultLimit int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:        store,
		defaultLimit: defaultLimit,
		logger:       logger.Named("chatlog"),
		now:          time.Now,
	}
}

// RegisterRoutes 注册聊天日志相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleList)
	r.Post("/messages", h.handleAppend)
}

// handleList 返回最近的日志条目，按时间正序
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxListLimit {
			utils.RespondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list entries", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to read chat log")
		return
	}
	if entries == nil {
		entries = []chatlog.Entry{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleAppend 追加一条用户消息；isAI 与 createdAt 由服务端决定
func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text       string `json:"text"`
		AuthorName string `json:"uname"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	name := strings.TrimSpace(payload.AuthorName)
	if name == chatlog.GeneratedAuthor {
		utils.RespondError(w, http.StatusBadRequest, "uname is reserved")
		return
	}

	stored, err := h.store.Append(r.Context(), chatlog.Entry{
		Text:       text,
		AuthorName: name,
		CreatedAt:  chatlog.Timestamp(h.now()),
	})
	if err != nil {
		h.logger.Error("failed to append entry", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to write chat log")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, stored)
}

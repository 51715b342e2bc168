package trigger

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/trigger"
	"github.com/zhouzirui/z-mentor/backend/pkg/utils"
)

const maxEntryBytes = 64 << 10

// Handler 托管运行时的 webhook 入口：请求体是新写入的一条日志
type Handler struct {
	pipeline trigger.Handler
}

// New 创建 webhook 处理器
func New(pipeline trigger.Handler) *Handler {
	return &Handler{pipeline: pipeline}
}

// RegisterRoutes 注册触发路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/triggers", h.handleTrigger)
}

// handleTrigger 同步执行一次回复流水线并返回结果
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var entry chatlog.Entry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntryBytes)).Decode(&entry); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.pipeline.Handle(r.Context(), &entry)
	if err != nil {
		// The cause is already logged by the pipeline and may carry provider details.
		utils.RespondJSON(w, http.StatusInternalServerError, map[string]string{
			"result": string(result),
			"error":  "reply pipeline aborted",
		})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

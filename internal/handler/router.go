package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	chatlogHandler "github.com/zhouzirui/z-mentor/backend/internal/handler/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/handler/live"
	triggerHandler "github.com/zhouzirui/z-mentor/backend/internal/handler/trigger"
	middlewarePkg "github.com/zhouzirui/z-mentor/backend/internal/middleware"
	chatlogService "github.com/zhouzirui/z-mentor/backend/internal/service/chatlog"
	"github.com/zhouzirui/z-mentor/backend/internal/service/trigger"
	"github.com/zhouzirui/z-mentor/backend/pkg/utils"
)

// Dependencies 汇总路由需要的服务
type Dependencies struct {
	Store        *chatlogService.ObservedStore
	Pipeline     trigger.Handler
	HistoryLimit int
	Logger       *zap.Logger
	// Metrics 默认使用 promhttp.Handler()
	Metrics http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatlogH := chatlogHandler.New(deps.Store, deps.HistoryLimit, deps.Logger)
	liveH := live.New(deps.Store, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		chatlogH.RegisterRoutes(api)
		liveH.RegisterRoutes(api)

		if deps.Pipeline != nil {
			triggerHandler.New(deps.Pipeline).RegisterRoutes(api)
		}
	})

	return r
}

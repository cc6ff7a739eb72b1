package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/auth"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/handlers"
	ws "github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/handlers/websocket"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/recorder"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// Dependencies bundles everything route handlers need.
type Dependencies struct {
	Logger    *Logger.Logger
	Registry  *session.Registry
	Orch      *pipeline.Orchestrator
	Barge     *pipeline.BargeInController
	Flow      flow.Flow
	Recorder  recorder.Recorder
	Validator *auth.Validator
}

func NewServerDependencies(
	logger *Logger.Logger,
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	barge *pipeline.BargeInController,
	fl flow.Flow,
	rec recorder.Recorder,
	validator *auth.Validator,
) Dependencies {
	return Dependencies{
		Logger:    logger,
		Registry:  registry,
		Orch:      orch,
		Barge:     barge,
		Flow:      fl,
		Recorder:  rec,
		Validator: validator,
	}
}

// InitializeRoutes wires all HTTP and websocket routes onto the engine.
func InitializeRoutes(cfg *config.Settings, r *gin.Engine, dep Dependencies) {
	r.Use(handlers.CORSMiddleware())
	r.Use(handlers.RequestLoggerMiddleware(dep.Logger))
	r.Use(handlers.ErrorHandlerMiddleware(dep.Logger))

	startedAt := time.Now()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"env":      cfg.Env,
			"sessions": dep.Registry.Len(),
			"uptime":   time.Since(startedAt).String(),
		})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": dep.Registry.Len(),
			"turns":    dep.Orch.States(),
		})
	})

	wsHandler := ws.NewHandler(
		dep.Logger.Named("ws"),
		cfg,
		dep.Registry,
		dep.Orch,
		dep.Barge,
		dep.Flow,
		dep.Validator,
	)
	wsHandler.RegisterRoutes(r)

	monitor := handlers.NewMonitorHandler(
		dep.Registry,
		dep.Orch,
		dep.Recorder,
		dep.Logger.Named("monitor"),
	)
	api := r.Group("/api/v1")
	api.Use(handlers.AuthMiddleware(dep.Validator, dep.Logger))
	monitor.RegisterRoutes(api)
}

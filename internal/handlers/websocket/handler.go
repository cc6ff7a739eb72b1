package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/auth"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/vad"
)

// Handler owns the two websocket legs: the vendor telephony stream and
// the raw-pcm browser stream.
type Handler struct {
	logger    *Logger.Logger
	settings  *config.Settings
	registry  *session.Registry
	orch      *pipeline.Orchestrator
	barge     *pipeline.BargeInController
	fl        flow.Flow
	validator *auth.Validator
	upgrader  websocket.Upgrader
}

func NewHandler(
	logger *Logger.Logger,
	settings *config.Settings,
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	barge *pipeline.BargeInController,
	fl flow.Flow,
	validator *auth.Validator,
) *Handler {
	return &Handler{
		logger:    logger,
		settings:  settings,
		registry:  registry,
		orch:      orch,
		barge:     barge,
		fl:        fl,
		validator: validator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers websocket routes.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	ws := router.Group("/ws")
	{
		ws.GET("/call", h.HandleCallSocket)
		ws.GET("/audio", h.HandleAudioSocket)
	}
}

// newSegmenter builds a per-connection segmenter with the configured
// classifier.
func (h *Handler) newSegmenter() *vad.Segmenter {
	cfg := h.settings.VAD
	var cls vad.Classifier
	if h.settings.Voice.VADProvider == "silero" && h.settings.Voice.SileroURL != "" {
		cls = vad.NewSileroClassifier(h.settings.Voice.SileroURL, cfg, h.logger)
	} else {
		cls = vad.NewEnergyClassifier(cfg.NoiseGate)
	}
	return vad.NewSegmenter(cfg, cls, h.logger)
}

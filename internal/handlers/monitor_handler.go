package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/recorder"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// MonitorHandler exposes read-only views over live sessions and stored
// transcripts for operators.
type MonitorHandler struct {
	registry *session.Registry
	orch     *pipeline.Orchestrator
	rec      recorder.Recorder
	logger   *Logger.Logger
}

func NewMonitorHandler(
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	rec recorder.Recorder,
	logger *Logger.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		registry: registry,
		orch:     orch,
		rec:      rec,
		logger:   logger,
	}
}

// RegisterRoutes registers monitoring routes on the given group.
func (h *MonitorHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/sessions", h.ListSessions)
	router.GET("/sessions/:id", h.GetSession)
	router.GET("/sessions/:id/transcript", h.GetTranscript)
}

type sessionSummary struct {
	ID        string `json:"id"`
	Transport string `json:"transport"`
	TurnState string `json:"turn_state"`
	CreatedAt string `json:"created_at"`
	LastSeen  string `json:"last_seen"`
}

func (h *MonitorHandler) summarize(id string) (sessionSummary, bool) {
	sess, ok := h.registry.Get(id)
	if !ok {
		return sessionSummary{}, false
	}
	return sessionSummary{
		ID:        sess.ID,
		Transport: string(sess.Transport),
		TurnState: h.orch.TurnState(sess.ID).String(),
		CreatedAt: sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastSeen:  sess.LastSeen().Format("2006-01-02T15:04:05Z07:00"),
	}, true
}

// ListSessions returns every live session with its pipeline state.
func (h *MonitorHandler) ListSessions(c *gin.Context) {
	ids := h.registry.Snapshot()
	sessions := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		if summary, ok := h.summarize(id); ok {
			sessions = append(sessions, summary)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// GetSession returns one live session with its call identity and DTMF
// history.
func (h *MonitorHandler) GetSession(c *gin.Context) {
	id := c.Param("id")
	sess, ok := h.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	callID, streamID, caller, called := sess.CallInfo()
	digits := sess.Digits()
	keys := make([]gin.H, 0, len(digits))
	for _, d := range digits {
		keys = append(keys, gin.H{
			"digit":       d.Digit,
			"track":       d.Track,
			"received_at": d.ReceivedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         sess.ID,
		"transport":  sess.Transport,
		"turn_state": h.orch.TurnState(sess.ID).String(),
		"call_id":    callID,
		"stream_id":  streamID,
		"caller":     caller,
		"called":     called,
		"digits":     keys,
		"created_at": sess.CreatedAt,
		"last_seen":  sess.LastSeen(),
	})
}

// GetTranscript returns the stored transcript for a session. Transcripts
// outlive their sessions, so this works for ended calls too.
func (h *MonitorHandler) GetTranscript(c *gin.Context) {
	id := c.Param("id")
	entries, err := h.rec.Transcript(id)
	if err != nil {
		h.logger.Errorf("transcript read failed for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transcript"})
		return
	}
	if entries == nil {
		entries = []recorder.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"entries":    entries,
	})
}

package websocket

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/telephony"
)

// HandleCallSocket serves the vendor telephony stream. The protocol
// adapter owns all framing and lifecycle decisions; this handler only
// pumps messages.
func (h *Handler) HandleCallSocket(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("call socket upgrade failed: %v", err)
		return
	}
	conn := NewConn(ws)
	defer conn.Close()

	adapter := telephony.NewAdapter(
		conn,
		h.registry,
		h.orch,
		h.barge,
		h.fl,
		h.newSegmenter(),
		h.settings.VAD,
		h.logger,
		func() { conn.Close() },
	)

	ctx := c.Request.Context()
	if err := adapter.Connect(ctx); err != nil {
		h.logger.Errorf("call socket handshake failed: %v", err)
		return
	}
	// Teardown must survive request-context cancellation.
	defer adapter.Close(context.Background())

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			h.logger.Infof("call socket closed: %v", err)
			return
		}
		adapter.HandleFrame(ctx, msg)
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	audioring "github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/audioRing"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/vad"
)

// inboundRingBytes bounds buffered inbound audio per connection, about
// ten seconds of 16kHz mono PCM16.
const inboundRingBytes = 320 * 1024

// clientMessage is a text frame from the raw-pcm client.
type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// clientEvent is a JSON control frame sent to the raw-pcm client; audio
// itself travels as binary PCM16 messages.
type clientEvent struct {
	Event string `json:"event"`
	Name  string `json:"name,omitempty"`
}

// rawSink streams pipeline audio to a browser client: binary PCM16
// frames plus JSON mark/clear events.
type rawSink struct {
	conn *Conn
}

func (s *rawSink) WriteAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.WriteBinary(pcm)
}

func (s *rawSink) Mark(name string) error {
	return s.conn.WriteFrame(clientEvent{Event: "mark", Name: name})
}

func (s *rawSink) Clear() error {
	return s.conn.WriteFrame(clientEvent{Event: "clear"})
}

var _ pipeline.AudioSink = (*rawSink)(nil)

// HandleAudioSocket serves the raw-pcm leg: 16kHz mono PCM16 in binary
// frames, optional JSON text messages, token auth when enabled.
func (h *Handler) HandleAudioSocket(c *gin.Context) {
	var clientID string
	if h.validator.Enabled() {
		claims, err := h.validator.Validate(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		clientID = claims.ClientID
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("audio socket upgrade failed: %v", err)
		return
	}
	conn := NewConn(ws)
	defer conn.Close()

	id := uuid.NewString()
	sess, err := h.registry.Create(id, session.TransportRawPCM)
	if err != nil {
		h.logger.Errorf("session create failed: %v", err)
		return
	}
	defer h.registry.Remove(id)

	ctx := c.Request.Context()
	callerName := c.Query("name")
	if callerName == "" {
		callerName = clientID
	}
	cursor, welcome, err := h.fl.Open(ctx, callerName)
	if err != nil {
		h.logger.Errorf("flow open failed for session %s: %v", id, err)
	}
	sess.SetCursor(string(cursor))
	defer h.fl.Close(cursor)

	sink := &rawSink{conn: conn}
	if err := h.orch.Attach(id, sink, cursor, func(action flow.Action) {
		if action == flow.ActionEndCall {
			conn.Close()
		}
	}); err != nil {
		h.logger.Errorf("pipeline attach failed for session %s: %v", id, err)
		return
	}
	defer h.orch.Detach(id)

	h.logger.Infof("audio session %s opened (client %q)", id, clientID)
	if welcome != "" {
		if err := h.orch.Announce(id, welcome); err != nil {
			h.logger.Warnf("welcome prompt skipped for session %s: %v", id, err)
		}
	}

	// Segmentation runs on its own goroutine behind a bounded ring so
	// a slow classifier can never stall the socket read loop. When the
	// ring overflows, the oldest audio is dropped.
	ring := audioring.New(inboundRingBytes)
	notify := make(chan struct{}, 1)
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	go h.pumpAudio(pumpCtx, sess, ring, notify)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			h.logger.Infof("audio session %s closed: %v", id, err)
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			frame := audioring.Frame{
				Data:       msg,
				Timestamp:  time.Now(),
				SampleRate: h.settings.VAD.SampleRate,
				Channels:   1,
			}
			if err := ring.Enqueue(frame); err != nil {
				h.logger.Warnf("audio frame dropped for session %s: %v", id, err)
				continue
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		case websocket.TextMessage:
			h.handleText(id, msg)
		}
	}
}

// pumpAudio drains the inbound ring through the segmenter.
func (h *Handler) pumpAudio(ctx context.Context, sess *session.Session, ring audioring.FrameRing, notify <-chan struct{}) {
	seg := h.newSegmenter()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		}
		for {
			frame, ok := ring.Dequeue()
			if !ok {
				break
			}
			h.handleAudio(ctx, sess, seg, frame)
		}
	}
}

func (h *Handler) handleAudio(ctx context.Context, sess *session.Session, seg *vad.Segmenter, frame audioring.Frame) {
	sess.AppendAudio(frame.Data)
	for _, ev := range seg.Push(ctx, frame.Data, frame.Timestamp) {
		switch ev.Kind {
		case vad.EventSpeechStart:
			h.barge.OnSpeechStart(sess.ID)
		case vad.EventSpeechEnd:
			sess.ClearAudio()
			err := h.orch.Submit(&pipeline.Utterance{
				ID:         uuid.New(),
				SessionID:  sess.ID,
				Audio:      ev.Utterance.Audio,
				SampleRate: h.settings.VAD.SampleRate,
				StartedAt:  ev.Utterance.StartedAt,
				EndedAt:    ev.Utterance.EndedAt,
			})
			if err != nil {
				h.logger.Warnf("utterance dropped for session %s: %v", sess.ID, err)
			}
		}
	}
}

func (h *Handler) handleText(sessionID string, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warnf("malformed text frame for session %s: %v", sessionID, err)
		return
	}
	if msg.Type != "text" {
		h.logger.Debugf("ignoring client message type %q", msg.Type)
		return
	}
	if err := h.orch.SubmitText(sessionID, msg.Content); err != nil {
		h.logger.Warnf("text input rejected for session %s: %v", sessionID, err)
	}
}

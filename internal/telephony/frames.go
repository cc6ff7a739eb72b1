package telephony

import (
	"encoding/json"
	"fmt"
)

// Inbound event kinds sent by the vendor.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventDTMF      = "dtmf"
	EventMark      = "mark"
	EventStop      = "stop"
	EventClear     = "clear"
)

// StartData carries the call identity declared on stream start.
type StartData struct {
	CallSID          string            `json:"callSid"`
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid,omitempty"`
	Tracks           string            `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      map[string]any    `json:"mediaFormat,omitempty"`
}

// MediaData is one inbound audio chunk.
type MediaData struct {
	Payload   string `json:"payload"` // base64 μ-law
	Chunk     int    `json:"chunk"`
	Timestamp int64  `json:"timestamp"`
}

// DTMFData is one keypress.
type DTMFData struct {
	CallSID   string `json:"callSid"`
	StreamSID string `json:"streamSid"`
	Digit     string `json:"digit"`
	Track     string `json:"track,omitempty"`
}

// MarkData acknowledges a previously sent outbound mark.
type MarkData struct {
	CallSID   string `json:"callSid,omitempty"`
	StreamSID string `json:"streamSid,omitempty"`
	Name      string `json:"name"`
}

// StopData carries the stream teardown reason.
type StopData struct {
	CallSID    string `json:"callSid"`
	Reason     string `json:"reason"`
	AccountSID string `json:"accountSid,omitempty"`
}

// InboundFrame is the discriminated union of vendor events. The vendor
// assigns inbound sequence numbers; they are validated for presence
// only, so the raw value is kept as sent.
type InboundFrame struct {
	Event          string          `json:"event"`
	SequenceNumber json.RawMessage `json:"sequenceNumber,omitempty"`
	StreamSID      string          `json:"streamSid,omitempty"`

	Start *StartData `json:"start,omitempty"`
	Media *MediaData `json:"media,omitempty"`
	DTMF  *DTMFData  `json:"dtmf,omitempty"`
	Mark  *MarkData  `json:"mark,omitempty"`
	Stop  *StopData  `json:"stop,omitempty"`
}

// ParseInbound decodes and validates one vendor frame.
func ParseInbound(raw []byte) (*InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Event {
	case EventConnected:
		return &f, nil
	case EventStart, EventMedia, EventDTMF, EventMark, EventStop:
	default:
		return nil, fmt.Errorf("unknown event kind %q", f.Event)
	}

	if f.StreamSID == "" {
		return nil, fmt.Errorf("%s frame missing streamSid", f.Event)
	}
	if len(f.SequenceNumber) == 0 {
		return nil, fmt.Errorf("%s frame missing sequenceNumber", f.Event)
	}

	switch f.Event {
	case EventStart:
		if f.Start == nil {
			return nil, fmt.Errorf("start frame missing start data")
		}
	case EventMedia:
		if f.Media == nil {
			return nil, fmt.Errorf("media frame missing media data")
		}
	case EventDTMF:
		if f.DTMF == nil {
			return nil, fmt.Errorf("dtmf frame missing dtmf data")
		}
	case EventMark:
		if f.Mark == nil {
			return nil, fmt.Errorf("mark frame missing mark data")
		}
	case EventStop:
		if f.Stop == nil {
			return nil, fmt.Errorf("stop frame missing stop data")
		}
	}
	return &f, nil
}

// ConnectedFrame is the handshake sent as soon as the socket opens.
type ConnectedFrame struct {
	Event    string `json:"event"`
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

func NewConnected() ConnectedFrame {
	return ConnectedFrame{Event: EventConnected, Protocol: "Call", Version: "1.0.0"}
}

// MediaPayload carries outbound base64 μ-law audio.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MediaFrame streams one synthesized audio chunk to the vendor.
type MediaFrame struct {
	Event          string       `json:"event"`
	SequenceNumber uint64       `json:"sequenceNumber"`
	StreamSID      string       `json:"streamSid"`
	Media          MediaPayload `json:"media"`
}

func NewMedia(streamSID string, seq uint64, payload string) MediaFrame {
	return MediaFrame{
		Event:          EventMedia,
		SequenceNumber: seq,
		StreamSID:      streamSID,
		Media:          MediaPayload{Payload: payload},
	}
}

// MarkPayload names an outbound playback mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// MarkFrame asks the vendor to acknowledge once playback reaches it.
type MarkFrame struct {
	Event          string      `json:"event"`
	SequenceNumber uint64      `json:"sequenceNumber"`
	StreamSID      string      `json:"streamSid"`
	Mark           MarkPayload `json:"mark"`
}

func NewMark(streamSID string, seq uint64, name string) MarkFrame {
	return MarkFrame{
		Event:          EventMark,
		SequenceNumber: seq,
		StreamSID:      streamSID,
		Mark:           MarkPayload{Name: name},
	}
}

// ClearFrame tells the vendor to discard its buffered playback. Unlike
// media and mark it carries no sequence number on the wire.
type ClearFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func NewClear(streamSID string) ClearFrame {
	return ClearFrame{Event: EventClear, StreamSID: streamSID}
}

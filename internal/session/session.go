package session

import (
	"context"
	"sync"
	"time"
)

// TransportKind identifies which leg a session arrived on.
type TransportKind string

const (
	TransportRawPCM    TransportKind = "raw-pcm"
	TransportTelephony TransportKind = "telephony"
)

// Digit is one DTMF keypress recorded against a session.
type Digit struct {
	Digit      string
	Track      string
	ReceivedAt time.Time
}

// Session owns the mutable per-conversation state. All mutation goes
// through methods that serialize access; callers must not cache the
// sequence counter or buffers across blocking calls.
type Session struct {
	ID        string
	Transport TransportKind
	CreatedAt time.Time

	mu       sync.Mutex
	seq      uint64
	audio    []byte
	digits   []Digit
	cursor   string
	callID   string
	streamID string
	caller   string
	called   string
	cancel   context.CancelFunc
	lastSeen time.Time
}

func newSession(id string, kind TransportKind, now time.Time) *Session {
	return &Session{
		ID:        id,
		Transport: kind,
		CreatedAt: now,
		lastSeen:  now,
	}
}

// NextSequence assigns the next outbound frame number. The counter
// starts at zero, so the first frame sent carries sequence 1.
func (s *Session) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Sequence returns the last assigned sequence number.
func (s *Session) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// AppendAudio accumulates inbound PCM for the current utterance.
func (s *Session) AppendAudio(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, pcm...)
	s.lastSeen = time.Now()
}

// TakeAudio returns the accumulated buffer and clears it.
func (s *Session) TakeAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.audio
	s.audio = nil
	return buf
}

// ClearAudio drops any accumulated inbound audio.
func (s *Session) ClearAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = nil
}

// AddDigit records a DTMF keypress.
func (s *Session) AddDigit(digit, track string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digits = append(s.digits, Digit{Digit: digit, Track: track, ReceivedAt: time.Now()})
	s.lastSeen = time.Now()
}

// Digits returns a copy of the DTMF history.
func (s *Session) Digits() []Digit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Digit, len(s.digits))
	copy(out, s.digits)
	return out
}

// SetCursor stores the conversation cursor handed back by the flow
// collaborator. The core never inspects it.
func (s *Session) SetCursor(cursor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
}

func (s *Session) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// SetCallInfo records the vendor identifiers from a start frame.
func (s *Session) SetCallInfo(callID, streamID, caller, called string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = callID
	s.streamID = streamID
	s.caller = caller
	s.called = called
}

func (s *Session) CallInfo() (callID, streamID, caller, called string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID, s.streamID, s.caller, s.called
}

// SetCancel installs the cancellation handle for in-flight pipeline work.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// Cancel signals any in-flight pipeline work to stop.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Touch marks the session as recently active.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen reports the last inbound activity.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

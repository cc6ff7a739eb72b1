package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
)

var (
	// ErrNotAttached is returned for work submitted against a session
	// that has no transport attached.
	ErrNotAttached = errors.New("session not attached to pipeline")

	// ErrStageBusy signals backpressure: the caller may retry, drop, or
	// surface the overload upstream.
	ErrStageBusy = errors.New("stage busy")

	// ErrTurnInFlight is returned when an announcement would break the
	// single-flight invariant.
	ErrTurnInFlight = errors.New("turn already in flight")
)

// Utterance is one VAD-delimited speech segment awaiting recognition.
type Utterance struct {
	ID         uuid.UUID
	SessionID  string
	Audio      []byte
	SampleRate int32
	StartedAt  time.Time
	EndedAt    time.Time
}

// AudioSink is the transport-facing end of a session: synthesized PCM
// chunks go out through it, as do playback marks and clear signals.
type AudioSink interface {
	WriteAudio(ctx context.Context, pcm []byte) error
	Mark(name string) error
	Clear() error
}

// TurnState tracks one turn through the pipeline.
type TurnState int

const (
	TurnNone TurnState = iota
	TurnRecognizing
	TurnReasoning
	TurnSynthesizing
	TurnPlaying
	TurnCompleted
	TurnCancelled
)

func (s TurnState) String() string {
	switch s {
	case TurnRecognizing:
		return "recognizing"
	case TurnReasoning:
		return "reasoning"
	case TurnSynthesizing:
		return "synthesizing"
	case TurnPlaying:
		return "playing"
	case TurnCompleted:
		return "completed"
	case TurnCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Terminal reports whether no further stage may run for this state.
func (s TurnState) Terminal() bool {
	return s == TurnCompleted || s == TurnCancelled
}

// Turn is one utterance's full cycle through recognize, reason and
// synthesize. Its context is the cancellation handle every stage checks
// at its yield points.
type Turn struct {
	ID        uuid.UUID
	SessionID string

	utterance  *Utterance
	transcript string
	reply      *flow.Result
	fellBack   bool

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state TurnState
}

// State returns the turn's current state.
func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState advances the turn. Terminal states are sticky: once a turn
// is completed or cancelled no stage may resurrect it.
func (t *Turn) setState(s TurnState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return false
	}
	t.state = s
	return true
}

func (t *Turn) terminal() bool {
	return t.State().Terminal()
}

func (t *Turn) cancelled() bool {
	return t.ctx.Err() != nil
}

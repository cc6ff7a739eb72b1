package pipeline

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/recorder"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/tts"
)

// playbackChunkBytes is 100ms of 16kHz mono PCM16 per sink write, the
// granularity at which cancellation cuts playback.
const playbackChunkBytes = 3200

// attachment binds a live session to its transport sink and flow cursor
// and holds the single-flight turn bookkeeping.
type attachment struct {
	id       string
	sink     AudioSink
	cursor   flow.Cursor
	onAction func(flow.Action)

	active  *Turn
	pending []*Utterance
}

// Orchestrator runs the recognize, reason and synthesize stages over
// shared worker pools. Work is tagged by session; per session at most
// one turn is in flight and turns complete in submission order.
type Orchestrator struct {
	cfg        config.PipelineConfig
	recognizer stt.Recognizer
	fl         flow.Flow
	synth      tts.Synthesizer
	chunker    tts.Chunker
	rec        recorder.Recorder
	registry   *session.Registry
	logger     *Logger.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	recognizeQ  chan *Turn
	reasonQ     chan *Turn
	synthesizeQ chan *Turn

	mu       sync.Mutex
	sessions map[string]*attachment
}

func NewOrchestrator(
	cfg config.PipelineConfig,
	recognizer stt.Recognizer,
	fl flow.Flow,
	synth tts.Synthesizer,
	rec recorder.Recorder,
	registry *session.Registry,
	logger *Logger.Logger,
) *Orchestrator {
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:         cfg,
		recognizer:  recognizer,
		fl:          fl,
		synth:       synth,
		chunker:     tts.NewChunker(),
		rec:         rec,
		registry:    registry,
		logger:      logger,
		ctx:         ctx,
		stop:        stop,
		recognizeQ:  make(chan *Turn, cfg.QueueSize),
		reasonQ:     make(chan *Turn, cfg.QueueSize),
		synthesizeQ: make(chan *Turn, cfg.QueueSize),
		sessions:    make(map[string]*attachment),
	}
}

// Start launches the stage worker pools.
func (o *Orchestrator) Start() {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(3)
		go o.worker(o.recognizeQ, o.runRecognize)
		go o.worker(o.reasonQ, o.runReason)
		go o.worker(o.synthesizeQ, o.runSynthesize)
	}
	o.logger.Infof("pipeline started with %d workers per stage, queue size %d", o.cfg.Workers, o.cfg.QueueSize)
}

// Stop cancels all in-flight turns and waits for workers to drain.
func (o *Orchestrator) Stop() {
	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) worker(q <-chan *Turn, run func(*Turn)) {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case turn := <-q:
			run(turn)
		}
	}
}

// Attach binds a session to its transport sink and conversation cursor.
func (o *Orchestrator) Attach(sessionID string, sink AudioSink, cursor flow.Cursor, onAction func(flow.Action)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sessions[sessionID]; ok {
		return ErrTurnInFlight
	}
	o.sessions[sessionID] = &attachment{
		id:       sessionID,
		sink:     sink,
		cursor:   cursor,
		onAction: onAction,
	}
	return nil
}

// Detach cancels any in-flight turn and forgets the session.
func (o *Orchestrator) Detach(sessionID string) {
	o.mu.Lock()
	att, ok := o.sessions[sessionID]
	delete(o.sessions, sessionID)
	o.mu.Unlock()
	if !ok {
		return
	}
	if att.active != nil && !att.active.terminal() {
		att.active.setState(TurnCancelled)
		att.active.cancel()
	}
}

// Submit queues one utterance. While a turn is in flight the utterance
// waits its turn; a full pending queue rejects with ErrStageBusy.
func (o *Orchestrator) Submit(utt *Utterance) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	att, ok := o.sessions[utt.SessionID]
	if !ok {
		return ErrNotAttached
	}
	if len(att.pending) >= o.cfg.MaxPending {
		return ErrStageBusy
	}
	att.pending = append(att.pending, utt)
	o.promoteLocked(att)
	return nil
}

// Announce speaks text outside the recognize path, e.g. the welcome
// prompt. It occupies the single-flight slot like any other turn.
func (o *Orchestrator) Announce(sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	o.mu.Lock()
	att, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return ErrNotAttached
	}
	if att.active != nil && !att.active.terminal() {
		o.mu.Unlock()
		return ErrTurnInFlight
	}

	turn := o.newTurn(sessionID, nil)
	turn.reply = &flow.Result{Text: text, NextAction: flow.ActionContinue}
	turn.setState(TurnSynthesizing)

	select {
	case o.synthesizeQ <- turn:
		att.active = turn
		o.mu.Unlock()
		return nil
	default:
		turn.cancel()
		o.mu.Unlock()
		return ErrStageBusy
	}
}

// SubmitText starts a turn from already-textual input, skipping the
// recognize stage. Used for typed messages on the raw-pcm leg.
func (o *Orchestrator) SubmitText(sessionID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	att, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return ErrNotAttached
	}
	if att.active != nil && !att.active.terminal() {
		o.mu.Unlock()
		return ErrTurnInFlight
	}

	turn := o.newTurn(sessionID, nil)
	turn.transcript = text
	turn.setState(TurnReasoning)

	select {
	case o.reasonQ <- turn:
		att.active = turn
		o.mu.Unlock()
		o.rec.Record(sessionID, recorder.Entry{Role: "caller", Text: text})
		return nil
	default:
		turn.cancel()
		o.mu.Unlock()
		return ErrStageBusy
	}
}

// TurnState reports the active turn's state for a session.
func (o *Orchestrator) TurnState(sessionID string) TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	att, ok := o.sessions[sessionID]
	if !ok || att.active == nil {
		return TurnNone
	}
	return att.active.State()
}

// CancelActive cancels the in-flight turn and clears transport-side
// playback. Reports whether a turn was actually cancelled.
func (o *Orchestrator) CancelActive(sessionID string) bool {
	o.mu.Lock()
	att, ok := o.sessions[sessionID]
	var turn *Turn
	var sink AudioSink
	if ok {
		turn = att.active
		sink = att.sink
	}
	o.mu.Unlock()

	if turn == nil || turn.terminal() {
		return false
	}
	turn.setState(TurnCancelled)
	turn.cancel()
	if sink != nil {
		if err := sink.Clear(); err != nil {
			o.logger.Warnf("playback clear failed for session %s: %v", sessionID, err)
		}
	}
	o.logger.Infof("turn %s cancelled for session %s", turn.ID, sessionID)
	return true
}

// States snapshots per-session turn states for diagnostics.
func (o *Orchestrator) States() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]string, len(o.sessions))
	for id, att := range o.sessions {
		state := TurnNone
		if att.active != nil {
			state = att.active.State()
		}
		out[id] = state.String()
	}
	return out
}

func (o *Orchestrator) newTurn(sessionID string, utt *Utterance) *Turn {
	ctx, cancel := context.WithCancel(o.ctx)
	turn := &Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		utterance: utt,
		ctx:       ctx,
		cancel:    cancel,
		state:     TurnRecognizing,
	}
	if sess, ok := o.registry.Get(sessionID); ok {
		sess.SetCancel(cancel)
	}
	return turn
}

// promoteLocked starts the next pending utterance once the active turn
// is terminal. Caller holds o.mu.
func (o *Orchestrator) promoteLocked(att *attachment) {
	if att.active != nil && !att.active.terminal() {
		return
	}
	if len(att.pending) == 0 {
		return
	}

	utt := att.pending[0]
	turn := o.newTurn(att.id, utt)
	select {
	case o.recognizeQ <- turn:
		att.pending = att.pending[1:]
		att.active = turn
	default:
		turn.cancel()
		o.logger.Warnf("recognize stage busy, deferring utterance for session %s", att.id)
		time.AfterFunc(o.cfg.RetryBackoff, func() { o.retryPromote(att.id) })
	}
}

func (o *Orchestrator) retryPromote(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.sessions[sessionID]; ok {
		o.promoteLocked(att)
	}
}

// finishTurn moves the turn to a terminal state and promotes the next
// pending utterance in detection order.
func (o *Orchestrator) finishTurn(turn *Turn, state TurnState) {
	turn.setState(state)
	turn.cancel()

	o.mu.Lock()
	if att, ok := o.sessions[turn.SessionID]; ok && att.active == turn {
		o.promoteLocked(att)
	}
	o.mu.Unlock()
}

// forward hands the turn to the next stage, yielding if the queue is
// full and abandoning the handoff when the turn is cancelled.
func (o *Orchestrator) forward(q chan<- *Turn, turn *Turn) {
	select {
	case q <- turn:
	case <-turn.ctx.Done():
		o.finishTurn(turn, TurnCancelled)
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) runRecognize(turn *Turn) {
	if turn.cancelled() || turn.terminal() {
		o.finishTurn(turn, TurnCancelled)
		return
	}

	var transcript *stt.Transcript
	err := o.withRetries(turn, "recognize", func(ctx context.Context) error {
		t, err := o.recognizer.Transcribe(ctx, turn.utterance.Audio, turn.utterance.SampleRate)
		if err == nil {
			transcript = t
		}
		return err
	})
	if turn.cancelled() {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	if err != nil {
		o.logger.Errorf("recognize failed for session %s: %v", turn.SessionID, err)
		o.fallback(turn)
		return
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		o.logger.Debugf("empty transcript for session %s, completing turn", turn.SessionID)
		o.finishTurn(turn, TurnCompleted)
		return
	}

	turn.transcript = text
	o.rec.Record(turn.SessionID, recorder.Entry{Role: "caller", Text: text})
	if !turn.setState(TurnReasoning) {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	o.forward(o.reasonQ, turn)
}

func (o *Orchestrator) runReason(turn *Turn) {
	if turn.cancelled() || turn.terminal() {
		o.finishTurn(turn, TurnCancelled)
		return
	}

	cursor := o.cursorOf(turn.SessionID)
	var result *flow.Result
	err := o.withRetries(turn, "reason", func(ctx context.Context) error {
		r, err := o.fl.Reply(ctx, cursor, turn.transcript)
		if err == nil {
			result = r
		}
		return err
	})
	if turn.cancelled() {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	if err != nil {
		o.logger.Errorf("reason failed for session %s: %v", turn.SessionID, err)
		o.fallback(turn)
		return
	}

	turn.reply = result
	o.rec.Record(turn.SessionID, recorder.Entry{Role: "bot", Text: result.Text})
	if !turn.setState(TurnSynthesizing) {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	o.forward(o.synthesizeQ, turn)
}

func (o *Orchestrator) runSynthesize(turn *Turn) {
	if turn.cancelled() || turn.terminal() {
		o.finishTurn(turn, TurnCancelled)
		return
	}

	sink := o.sinkOf(turn.SessionID)
	if sink == nil {
		o.finishTurn(turn, TurnCancelled)
		return
	}

	played := false
	for _, chunk := range o.chunker.Split(turn.reply.Text) {
		if turn.cancelled() {
			o.finishTurn(turn, TurnCancelled)
			return
		}
		ok, err := o.speakChunk(turn, sink, chunk)
		if err != nil {
			o.logger.Errorf("synthesize failed for session %s: %v", turn.SessionID, err)
			o.finishTurn(turn, TurnCancelled)
			return
		}
		played = played || ok
	}

	if played && !turn.cancelled() {
		if err := sink.Mark(turn.ID.String()); err != nil {
			o.logger.Warnf("playback mark failed for session %s: %v", turn.SessionID, err)
		}
	}

	final := TurnCompleted
	if turn.fellBack {
		final = TurnCancelled
	}
	o.finishTurn(turn, final)

	if turn.reply.NextAction == flow.ActionEndCall {
		if onAction := o.onActionOf(turn.SessionID); onAction != nil {
			onAction(flow.ActionEndCall)
		}
	}
}

// speakChunk synthesizes one text chunk and streams it to the sink in
// playback-sized writes, checking cancellation between writes.
func (o *Orchestrator) speakChunk(turn *Turn, sink AudioSink, text string) (bool, error) {
	var stream io.ReadCloser
	err := o.withRetries(turn, "synthesize", func(ctx context.Context) error {
		s, err := o.synth.Synthesize(ctx, text)
		if err == nil {
			stream = s
		}
		return err
	})
	if err != nil {
		return false, err
	}
	defer stream.Close()

	played := false
	buf := make([]byte, playbackChunkBytes)
	for {
		if turn.cancelled() {
			return played, nil
		}
		n, readErr := stream.Read(buf)
		if n > 0 {
			if !played {
				turn.setState(TurnPlaying)
				played = true
			}
			if err := sink.WriteAudio(turn.ctx, buf[:n]); err != nil {
				if turn.cancelled() {
					return played, nil
				}
				return played, err
			}
		}
		if readErr == io.EOF {
			return played, nil
		}
		if readErr != nil {
			return played, readErr
		}
	}
}

// fallback speaks the flow's filler phrase; the turn still ends
// cancelled so callers never mistake it for a successful reply.
func (o *Orchestrator) fallback(turn *Turn) {
	filler := o.fl.Filler(o.cursorOf(turn.SessionID))
	if strings.TrimSpace(filler) == "" {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	turn.reply = &flow.Result{Text: filler, NextAction: flow.ActionContinue}
	turn.fellBack = true
	if !turn.setState(TurnSynthesizing) {
		o.finishTurn(turn, TurnCancelled)
		return
	}
	o.forward(o.synthesizeQ, turn)
}

// withRetries runs one stage call with a per-attempt timeout, retrying
// on failure unless the turn itself was cancelled.
func (o *Orchestrator) withRetries(turn *Turn, stage string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= o.cfg.StageRetries; attempt++ {
		ctx, cancel := context.WithTimeout(turn.ctx, o.cfg.StageTimeout)
		err = fn(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if turn.cancelled() {
			return err
		}
		if attempt < o.cfg.StageRetries {
			o.logger.Warnf("%s attempt %d failed for session %s: %v", stage, attempt+1, turn.SessionID, err)
			select {
			case <-time.After(o.cfg.RetryBackoff * time.Duration(attempt+1)):
			case <-turn.ctx.Done():
				return err
			}
		}
	}
	return err
}

func (o *Orchestrator) cursorOf(sessionID string) flow.Cursor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.sessions[sessionID]; ok {
		return att.cursor
	}
	return ""
}

func (o *Orchestrator) sinkOf(sessionID string) AudioSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.sessions[sessionID]; ok {
		return att.sink
	}
	return nil
}

func (o *Orchestrator) onActionOf(sessionID string) func(flow.Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if att, ok := o.sessions[sessionID]; ok {
		return att.onAction
	}
	return nil
}

package telephony

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/codec"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/vad"
)

// FrameWriter sends one outbound frame. Implementations must serialize
// concurrent writes.
type FrameWriter interface {
	WriteFrame(v any) error
}

// Lifecycle states of one vendor stream.
const (
	stateDisconnected = "disconnected"
	stateConnected    = "connected"
	stateStreaming    = "streaming"
	stateStopped      = "stopped"
)

// Adapter speaks the vendor wire protocol for one websocket connection:
// it owns the stream lifecycle, feeds inbound audio through the codec
// into the segmenter, and bridges the pipeline's audio back out as
// sequenced media frames.
type Adapter struct {
	writer   FrameWriter
	registry *session.Registry
	orch     *pipeline.Orchestrator
	barge    *pipeline.BargeInController
	fl       flow.Flow
	seg      *vad.Segmenter
	vadCfg   vad.Config
	logger   *Logger.Logger
	hangup   func()

	machine   *fsm.FSM
	streamSID string
}

func NewAdapter(
	writer FrameWriter,
	registry *session.Registry,
	orch *pipeline.Orchestrator,
	barge *pipeline.BargeInController,
	fl flow.Flow,
	seg *vad.Segmenter,
	vadCfg vad.Config,
	logger *Logger.Logger,
	hangup func(),
) *Adapter {
	return &Adapter{
		writer:   writer,
		registry: registry,
		orch:     orch,
		barge:    barge,
		fl:       fl,
		seg:      seg,
		vadCfg:   vadCfg,
		logger:   logger,
		hangup:   hangup,
		machine: fsm.NewFSM(
			stateDisconnected,
			fsm.Events{
				{Name: "connect", Src: []string{stateDisconnected}, Dst: stateConnected},
				{Name: "start", Src: []string{stateConnected}, Dst: stateStreaming},
				{Name: "stop", Src: []string{stateConnected, stateStreaming}, Dst: stateStopped},
			},
			fsm.Callbacks{},
		),
	}
}

// Connect acknowledges the socket with the handshake frame.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.machine.Event(ctx, "connect"); err != nil {
		return err
	}
	return a.writer.WriteFrame(NewConnected())
}

// HandleFrame processes one raw inbound frame. Protocol errors drop the
// frame and keep the connection alive.
func (a *Adapter) HandleFrame(ctx context.Context, raw []byte) {
	if a.machine.Is(stateStopped) {
		return
	}

	frame, err := ParseInbound(raw)
	if err != nil {
		a.logger.Warnf("dropping frame: %v", err)
		return
	}

	switch frame.Event {
	case EventConnected:
		// vendor-side echo, nothing to do
	case EventStart:
		a.handleStart(ctx, frame)
	case EventMedia:
		a.handleMedia(ctx, frame)
	case EventDTMF:
		a.handleDTMF(ctx, frame)
	case EventMark:
		a.logger.Debugf("mark %q acknowledged for stream %s", frame.Mark.Name, frame.StreamSID)
		a.touch()
	case EventStop:
		a.logger.Infof("stream %s stopped by vendor: %s", frame.StreamSID, frame.Stop.Reason)
		a.teardown(ctx)
	}
}

// Close tears the stream down on transport disconnect.
func (a *Adapter) Close(ctx context.Context) {
	a.teardown(ctx)
}

func (a *Adapter) handleStart(ctx context.Context, frame *InboundFrame) {
	if a.machine.Is(stateStreaming) {
		a.logger.Warnf("duplicate start for stream %s, frame ignored", frame.StreamSID)
		return
	}
	if !a.machine.Is(stateConnected) {
		a.logger.Warnf("start frame in state %s, frame ignored", a.machine.Current())
		return
	}

	sess, err := a.registry.Create(frame.StreamSID, session.TransportTelephony)
	if err != nil {
		a.logger.Warnf("start rejected: %v", err)
		return
	}

	callerName := frame.Start.CustomParameters["caller_name"]
	sess.SetCallInfo(frame.Start.CallSID, frame.StreamSID,
		frame.Start.CustomParameters["caller"], frame.Start.CustomParameters["called"])

	cursor, welcome, err := a.fl.Open(ctx, callerName)
	if err != nil {
		a.logger.Errorf("flow open failed for stream %s: %v", frame.StreamSID, err)
	}
	sess.SetCursor(string(cursor))

	sink := &streamSink{writer: a.writer, sess: sess, streamSID: frame.StreamSID}
	if err := a.orch.Attach(frame.StreamSID, sink, cursor, a.onFlowAction); err != nil {
		a.logger.Errorf("pipeline attach failed for stream %s: %v", frame.StreamSID, err)
		a.registry.Remove(frame.StreamSID)
		return
	}

	if err := a.machine.Event(ctx, "start"); err != nil {
		a.logger.Errorf("lifecycle start failed: %v", err)
		a.orch.Detach(frame.StreamSID)
		a.registry.Remove(frame.StreamSID)
		return
	}
	a.streamSID = frame.StreamSID
	a.logger.Infof("stream %s started, call %s", frame.StreamSID, frame.Start.CallSID)

	if welcome != "" {
		if err := a.orch.Announce(frame.StreamSID, welcome); err != nil {
			a.logger.Warnf("welcome prompt skipped for stream %s: %v", frame.StreamSID, err)
		}
	}
}

func (a *Adapter) handleMedia(ctx context.Context, frame *InboundFrame) {
	if !a.machine.Is(stateStreaming) {
		a.logger.Warnf("media before start for stream %s, frame dropped", frame.StreamSID)
		return
	}
	sess, ok := a.registry.Get(a.streamSID)
	if !ok || frame.StreamSID != a.streamSID {
		a.logger.Warnf("media for unknown stream %s, frame dropped", frame.StreamSID)
		return
	}

	pcm8k, err := codec.DecodePayload(frame.Media.Payload)
	if err != nil {
		a.logger.Warnf("undecodable media payload for stream %s: %v", a.streamSID, err)
		return
	}
	pcm16k, err := codec.Upsample8kTo16k(pcm8k)
	if err != nil {
		a.logger.Warnf("resample failed for stream %s: %v", a.streamSID, err)
		return
	}
	sess.AppendAudio(pcm16k)

	for _, ev := range a.seg.Push(ctx, pcm16k, time.Now()) {
		switch ev.Kind {
		case vad.EventSpeechStart:
			a.barge.OnSpeechStart(a.streamSID)
		case vad.EventSpeechEnd:
			sess.ClearAudio()
			a.submitUtterance(ev.Utterance)
		}
	}
}

func (a *Adapter) submitUtterance(utt *vad.Utterance) {
	err := a.orch.Submit(&pipeline.Utterance{
		ID:         uuid.New(),
		SessionID:  a.streamSID,
		Audio:      utt.Audio,
		SampleRate: a.vadCfg.SampleRate,
		StartedAt:  utt.StartedAt,
		EndedAt:    utt.EndedAt,
	})
	if err != nil {
		a.logger.Warnf("utterance dropped for stream %s: %v", a.streamSID, err)
	}
}

func (a *Adapter) handleDTMF(ctx context.Context, frame *InboundFrame) {
	if !a.machine.Is(stateStreaming) {
		a.logger.Warnf("dtmf before start for stream %s, frame dropped", frame.StreamSID)
		return
	}
	sess, ok := a.registry.Get(a.streamSID)
	if !ok {
		return
	}
	sess.AddDigit(frame.DTMF.Digit, frame.DTMF.Track)
	a.logger.Infof("dtmf %q on stream %s", frame.DTMF.Digit, a.streamSID)

	if err := a.fl.OnDigit(ctx, flow.Cursor(sess.Cursor()), frame.DTMF.Digit, frame.DTMF.Track); err != nil {
		a.logger.Warnf("flow digit report failed for stream %s: %v", a.streamSID, err)
	}
}

func (a *Adapter) onFlowAction(action flow.Action) {
	if action != flow.ActionEndCall {
		return
	}
	a.logger.Infof("flow requested end of call for stream %s", a.streamSID)
	if a.hangup != nil {
		a.hangup()
	}
}

func (a *Adapter) teardown(ctx context.Context) {
	if a.machine.Is(stateStopped) {
		return
	}
	if err := a.machine.Event(ctx, "stop"); err != nil {
		return
	}
	if a.streamSID != "" {
		if sess, ok := a.registry.Get(a.streamSID); ok {
			a.fl.Close(flow.Cursor(sess.Cursor()))
		}
		a.orch.Detach(a.streamSID)
		a.registry.Remove(a.streamSID)
		a.seg.Reset()
	}
}

func (a *Adapter) touch() {
	if sess, ok := a.registry.Get(a.streamSID); ok {
		sess.Touch()
	}
}

// streamSink carries pipeline audio out as sequenced vendor frames.
// mu is held from sequence assignment through the frame write so
// concurrent completions can never skip or reorder numbers, and so a
// clear linearizes against in-flight media: any media write that loses
// the race to a barge-in sees its cancelled context inside the lock and
// emits nothing after the clear.
type streamSink struct {
	writer    FrameWriter
	sess      *session.Session
	streamSID string

	mu sync.Mutex
}

// WriteAudio implements pipeline.AudioSink. The pipeline hands over
// 16kHz PCM16; the vendor expects 8kHz μ-law in base64.
func (s *streamSink) WriteAudio(ctx context.Context, pcm16k []byte) error {
	pcm8k, err := codec.Downsample16kTo8k(pcm16k)
	if err != nil {
		return err
	}
	payload, err := codec.EncodePayload(pcm8k)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writer.WriteFrame(NewMedia(s.streamSID, s.sess.NextSequence(), payload))
}

// Mark implements pipeline.AudioSink.
func (s *streamSink) Mark(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteFrame(NewMark(s.streamSID, s.sess.NextSequence(), name))
}

// Clear implements pipeline.AudioSink.
func (s *streamSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteFrame(NewClear(s.streamSID))
}

var _ pipeline.AudioSink = (*streamSink)(nil)

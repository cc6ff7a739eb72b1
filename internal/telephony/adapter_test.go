package telephony

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/flow"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/pipeline"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/recorder"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt/vad"
)

type fakeWriter struct {
	mu     sync.Mutex
	frames []any
}

func (f *fakeWriter) WriteFrame(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeWriter) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.frames))
	copy(out, f.frames)
	return out
}

type stubRecognizer struct{}

func (stubRecognizer) Transcribe(_ context.Context, pcm []byte, _ int32) (*stt.Transcript, error) {
	return &stt.Transcript{Text: "stub transcript"}, nil
}

type stubFlow struct{}

func (stubFlow) Open(context.Context, string) (flow.Cursor, string, error) {
	return "cur-1", "Welcome to the helpline", nil
}

func (stubFlow) Reply(_ context.Context, _ flow.Cursor, transcript string) (*flow.Result, error) {
	return &flow.Result{Text: "you said " + transcript, NextAction: flow.ActionContinue}, nil
}

func (stubFlow) Filler(flow.Cursor) string { return "please repeat" }

func (stubFlow) OnDigit(context.Context, flow.Cursor, string, string) error { return nil }

func (stubFlow) Close(flow.Cursor) {}

type stubSynth struct{}

func (stubSynth) Synthesize(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(make([]byte, 8000))), nil
}

func (stubSynth) SampleRate() int32 { return 16000 }

func newTestAdapter(t *testing.T) (*Adapter, *fakeWriter, *session.Registry) {
	t.Helper()
	logger := Logger.New(true)
	registry := session.NewRegistry(logger)
	orch := pipeline.NewOrchestrator(config.PipelineConfig{
		QueueSize:    8,
		Workers:      2,
		StageRetries: 1,
		RetryBackoff: 10 * time.Millisecond,
		StageTimeout: 2 * time.Second,
		MaxPending:   4,
	}, stubRecognizer{}, stubFlow{}, stubSynth{}, recorder.Noop{}, registry, logger)
	orch.Start()
	t.Cleanup(orch.Stop)

	vadCfg := vad.DefaultConfig()
	seg := vad.NewSegmenter(vadCfg, vad.NewEnergyClassifier(vadCfg.NoiseGate), logger)
	writer := &fakeWriter{}
	adapter := NewAdapter(writer, registry, orch,
		pipeline.NewBargeInController(orch, logger), stubFlow{}, seg, vadCfg, logger, nil)
	return adapter, writer, registry
}

func startFrame(streamSID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"start","sequenceNumber":"1","streamSid":"%s","start":{"callSid":"CA1","streamSid":"%s","customParameters":{"caller_name":"Asha"}}}`,
		streamSID, streamSID))
}

func mediaFrame(streamSID string, seq int) []byte {
	payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, 160))
	return []byte(fmt.Sprintf(
		`{"event":"media","sequenceNumber":"%d","streamSid":"%s","media":{"payload":"%s","chunk":%d,"timestamp":%d}}`,
		seq, streamSID, payload, seq, seq*20))
}

func stopFrame(streamSID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"stop","sequenceNumber":"99","streamSid":"%s","stop":{"callSid":"CA1","reason":"callended"}}`,
		streamSID))
}

func waitForFrames(t *testing.T, w *fakeWriter, what string, cond func([]any) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond(w.snapshot()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; frames: %#v", what, w.snapshot())
}

func TestConnectSendsHandshake(t *testing.T) {
	adapter, writer, _ := newTestAdapter(t)
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	frames := writer.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if _, ok := frames[0].(ConnectedFrame); !ok {
		t.Errorf("expected connected frame, got %#v", frames[0])
	}
}

func TestStartCreatesSessionAndSpeaksWelcome(t *testing.T) {
	adapter, writer, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, startFrame("ST1"))

	if registry.Len() != 1 {
		t.Fatalf("expected 1 session after start, got %d", registry.Len())
	}
	sess, _ := registry.Get("ST1")
	callID, _, _, _ := sess.CallInfo()
	if callID != "CA1" {
		t.Errorf("call id not recorded: %q", callID)
	}

	// Welcome prompt flows out as sequenced media frames then a mark.
	waitForFrames(t, writer, "welcome audio", func(frames []any) bool {
		for _, f := range frames {
			if _, ok := f.(MarkFrame); ok {
				return true
			}
		}
		return false
	})

	var seqs []uint64
	for _, f := range writer.snapshot() {
		switch fr := f.(type) {
		case MediaFrame:
			seqs = append(seqs, fr.SequenceNumber)
			raw, err := base64.StdEncoding.DecodeString(fr.Media.Payload)
			if err != nil {
				t.Fatalf("outbound payload not base64: %v", err)
			}
			if len(raw)%160 != 0 {
				t.Errorf("outbound payload length %d not 160-aligned", len(raw))
			}
		case MarkFrame:
			seqs = append(seqs, fr.SequenceNumber)
		}
	}
	if len(seqs) == 0 {
		t.Fatal("no media frames emitted for welcome prompt")
	}
	for i, seq := range seqs {
		if seq != uint64(i)+1 {
			t.Fatalf("sequence gap: position %d has %d, want %d", i, seq, i+1)
		}
	}
}

func TestDuplicateStartIgnored(t *testing.T) {
	adapter, _, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, startFrame("ST1"))
	adapter.HandleFrame(ctx, startFrame("ST1"))

	if registry.Len() != 1 {
		t.Errorf("duplicate start must not create a second session, got %d", registry.Len())
	}
}

func TestMediaBeforeStartDropped(t *testing.T) {
	adapter, writer, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, mediaFrame("ST1", 2))

	if registry.Len() != 0 {
		t.Errorf("media before start must not create a session, got %d", registry.Len())
	}
	if frames := writer.snapshot(); len(frames) != 1 {
		t.Errorf("nothing but the handshake should go out, got %d frames", len(frames))
	}
}

func TestMediaAccumulatesSessionAudio(t *testing.T) {
	adapter, _, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, startFrame("ST1"))
	adapter.HandleFrame(ctx, mediaFrame("ST1", 2))
	adapter.HandleFrame(ctx, mediaFrame("ST1", 3))

	sess, _ := registry.Get("ST1")
	// 2 frames × 160 μ-law samples upsampled to 16k = 2×640 bytes.
	if got := len(sess.TakeAudio()); got != 1280 {
		t.Errorf("session audio buffer has %d bytes, want 1280", got)
	}
}

func TestStopReleasesSessionAndSilencesStream(t *testing.T) {
	adapter, _, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, startFrame("ST1"))
	adapter.HandleFrame(ctx, stopFrame("ST1"))

	if registry.Len() != 0 {
		t.Fatalf("stop must release the session, got %d live", registry.Len())
	}

	// Frames after stop are ignored entirely.
	adapter.HandleFrame(ctx, mediaFrame("ST1", 5))
	if registry.Len() != 0 {
		t.Error("media after stop must not resurrect the session")
	}
}

func TestCloseTearsDownLikeStop(t *testing.T) {
	adapter, _, registry := newTestAdapter(t)
	ctx := context.Background()
	adapter.Connect(ctx)
	adapter.HandleFrame(ctx, startFrame("ST1"))

	adapter.Close(ctx)
	if registry.Len() != 0 {
		t.Errorf("transport close must release the session, got %d live", registry.Len())
	}
}

func TestSinkAssignsSerializedSequences(t *testing.T) {
	logger := Logger.New(true)
	registry := session.NewRegistry(logger)
	sess, _ := registry.Create("ST1", session.TransportTelephony)
	writer := &fakeWriter{}
	sink := &streamSink{writer: writer, sess: sess, streamSID: "ST1"}

	pcm := make([]byte, 640) // 320 samples at 16k
	if err := sink.WriteAudio(context.Background(), pcm); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := sink.Mark("turn-1"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	frames := writer.snapshot()
	media := frames[0].(MediaFrame)
	if _, ok := frames[1].(ClearFrame); !ok {
		t.Fatalf("expected clear frame, got %#v", frames[1])
	}
	mark := frames[2].(MarkFrame)
	// Clear is unsequenced on the wire, so mark follows media directly.
	if media.SequenceNumber != 1 || mark.SequenceNumber != 2 {
		t.Errorf("sequences not serialized: %d %d", media.SequenceNumber, mark.SequenceNumber)
	}

	raw, err := base64.StdEncoding.DecodeString(media.Media.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if len(raw) != 160 {
		t.Errorf("payload %d μ-law bytes, want 160 (downsampled then encoded)", len(raw))
	}
}

func TestSinkClearLinearizesAgainstInFlightMedia(t *testing.T) {
	logger := Logger.New(true)
	registry := session.NewRegistry(logger)
	sess, _ := registry.Create("ST1", session.TransportTelephony)
	writer := &fakeWriter{}
	sink := &streamSink{writer: writer, sess: sess, streamSID: "ST1"}

	ctx, cancel := context.WithCancel(context.Background())
	pcm := make([]byte, 640)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := sink.WriteAudio(ctx, pcm); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	cancel()
	if err := sink.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	wg.Wait()

	// Once the clear is on the wire no cancelled write may follow it,
	// and media sequence numbers must stay gapless.
	frames := writer.snapshot()
	clearAt := -1
	var seqs []uint64
	for i, f := range frames {
		switch fr := f.(type) {
		case ClearFrame:
			clearAt = i
		case MediaFrame:
			if clearAt >= 0 {
				t.Fatalf("media frame at %d written after clear at %d", i, clearAt)
			}
			seqs = append(seqs, fr.SequenceNumber)
		}
	}
	if clearAt < 0 {
		t.Fatal("clear frame never written")
	}
	for i, seq := range seqs {
		if seq != uint64(i)+1 {
			t.Fatalf("sequence gap: position %d has %d, want %d", i, seq, i+1)
		}
	}
}

func TestWriteAudioHonorsCancelledContext(t *testing.T) {
	logger := Logger.New(true)
	registry := session.NewRegistry(logger)
	sess, _ := registry.Create("ST1", session.TransportTelephony)
	writer := &fakeWriter{}
	sink := &streamSink{writer: writer, sess: sess, streamSID: "ST1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.WriteAudio(ctx, make([]byte, 640)); err == nil {
		t.Fatal("write with cancelled context must fail")
	}
	if len(writer.snapshot()) != 0 {
		t.Error("no frame may go out after cancellation")
	}
	if sess.Sequence() != 0 {
		t.Error("sequence must not be consumed by a cancelled write")
	}
}

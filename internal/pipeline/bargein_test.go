package pipeline

import (
	"testing"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/session"
)

func TestBargeInCancelsPlayingTurn(t *testing.T) {
	synth := &fakeSynth{}
	orch, registry := newTestOrchestrator(t, &fakeRecognizer{}, &fakeFlow{}, synth)
	registry.Create("s1", session.TransportTelephony)

	// Sink blocks on the first write so the turn parks in playing.
	sink := &memorySink{writeBlock: make(chan struct{})}
	orch.Attach("s1", sink, "cursor-1", nil)
	orch.Submit(utteranceFor("s1", "tell me a story"))

	waitFor(t, 2*time.Second, "turn to reach playing", func() bool {
		return orch.TurnState("s1") == TurnPlaying
	})

	ctl := NewBargeInController(orch, orch.logger)
	if !ctl.OnSpeechStart("s1") {
		t.Fatal("barge-in should interrupt a playing turn")
	}

	waitFor(t, 2*time.Second, "turn cancellation", func() bool {
		return orch.TurnState("s1") == TurnCancelled
	})

	writes, marks, clears := sink.snapshot()
	if clears != 1 {
		t.Errorf("expected 1 clear signal, got %d", clears)
	}
	if marks != 0 {
		t.Errorf("cancelled turn must not emit a playback mark, got %d", marks)
	}
	if writes != 0 {
		t.Errorf("no writes should complete past the blocked sink, got %d", writes)
	}
}

func TestBargeInIgnoresEarlyStages(t *testing.T) {
	rec := &fakeRecognizer{block: make(chan struct{})}
	orch, registry := newTestOrchestrator(t, rec, &fakeFlow{}, &fakeSynth{})
	defer close(rec.block)
	registry.Create("s1", session.TransportTelephony)

	sink := &memorySink{}
	orch.Attach("s1", sink, "cursor-1", nil)
	orch.Submit(utteranceFor("s1", "hello"))

	waitFor(t, time.Second, "turn to start recognizing", func() bool {
		return orch.TurnState("s1") == TurnRecognizing
	})

	ctl := NewBargeInController(orch, orch.logger)
	if ctl.OnSpeechStart("s1") {
		t.Error("speech during recognition must queue, not interrupt")
	}
	if _, _, clears := sink.snapshot(); clears != 0 {
		t.Errorf("no clear expected, got %d", clears)
	}
}

func TestBargeInAllowsNextUtteranceToStart(t *testing.T) {
	synth := &fakeSynth{}
	orch, registry := newTestOrchestrator(t, &fakeRecognizer{}, &fakeFlow{}, synth)
	registry.Create("s1", session.TransportTelephony)

	sink := &memorySink{writeBlock: make(chan struct{})}
	orch.Attach("s1", sink, "cursor-1", nil)
	orch.Submit(utteranceFor("s1", "first question"))

	waitFor(t, 2*time.Second, "turn to reach playing", func() bool {
		return orch.TurnState("s1") == TurnPlaying
	})

	ctl := NewBargeInController(orch, orch.logger)
	ctl.OnSpeechStart("s1")

	// Unblock the sink for the follow-up turn.
	close(sink.writeBlock)

	if err := orch.Submit(utteranceFor("s1", "second question")); err != nil {
		t.Fatalf("submit after barge-in failed: %v", err)
	}
	waitFor(t, 3*time.Second, "follow-up turn completion", func() bool {
		return orch.TurnState("s1") == TurnCompleted
	})
}

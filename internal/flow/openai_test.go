package flow

import (
	"context"
	"testing"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

func newTestOpenAIFlow() *OpenAIFlow {
	return NewOpenAIFlow(config.FlowConfig{
		OpenAIKey:      "test-key",
		WelcomePrompt:  "Hello",
		FallbackPhrase: "please repeat",
	}, Logger.New(true))
}

func TestOpenAIFlowCloseReleasesHistory(t *testing.T) {
	fl := newTestOpenAIFlow()

	cur, welcome, err := fl.Open(context.Background(), "Asha")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if welcome != "Hello" {
		t.Errorf("welcome %q, want %q", welcome, "Hello")
	}
	if len(fl.sessions) != 1 {
		t.Fatalf("expected 1 tracked conversation, got %d", len(fl.sessions))
	}

	fl.Close(cur)
	if len(fl.sessions) != 0 {
		t.Fatalf("conversation history not released, %d left", len(fl.sessions))
	}

	// A closed cursor is gone for good: no call leaves the process.
	if _, err := fl.Reply(context.Background(), cur, "hello?"); err == nil {
		t.Error("reply on a closed cursor must fail")
	}
	if err := fl.OnDigit(context.Background(), cur, "1", "inbound"); err == nil {
		t.Error("digit on a closed cursor must fail")
	}
}

func TestOpenAIFlowCloseUnknownCursorIsSafe(t *testing.T) {
	fl := newTestOpenAIFlow()
	fl.Close("never-opened")
	if len(fl.sessions) != 0 {
		t.Errorf("expected no tracked conversations, got %d", len(fl.sessions))
	}
}

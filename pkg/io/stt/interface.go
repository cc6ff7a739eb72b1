package stt

import (
	"context"
	"time"
)

// Transcript is the result of recognizing one utterance.
type Transcript struct {
	Text          string
	Language      string
	AudioDuration time.Duration
	GeneratedAt   time.Time
}

// Recognizer converts a complete PCM16 utterance into text.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int32) (*Transcript, error)
}

package vad

import (
	"context"
	"time"
)

// Classifier scores a single fixed-duration PCM16 frame with a speech
// probability in [0,1].
type Classifier interface {
	Probability(ctx context.Context, frame []byte) (float32, error)
}

// Config tunes the frame classifier and the utterance state machine.
type Config struct {
	SampleRate    int32         `json:"sampleRate" mapstructure:"sample_rate"`
	FrameDuration time.Duration `json:"frameDuration" mapstructure:"frame_duration"`
	Threshold     float32       `json:"threshold" mapstructure:"threshold"`

	// Decision window: speech starts when TriggerRatio of the window is
	// speech, ends when the ratio falls below ReleaseRatio for the whole
	// hold duration.
	WindowDuration time.Duration `json:"windowDuration" mapstructure:"window_duration"`
	TriggerRatio   float64       `json:"triggerRatio" mapstructure:"trigger_ratio"`
	ReleaseRatio   float64       `json:"releaseRatio" mapstructure:"release_ratio"`

	MinUtterance time.Duration `json:"minUtterance" mapstructure:"min_utterance"`
	HoldDuration time.Duration `json:"holdDuration" mapstructure:"hold_duration"`
	PreSpeech    time.Duration `json:"preSpeech" mapstructure:"pre_speech"`

	// NoiseGate blocks steady background noise (fans, line hum) before
	// the classifier sees it.
	NoiseGate float32 `json:"noiseGate" mapstructure:"noise_gate"`
}

// DefaultConfig returns segmentation parameters tuned for telephone speech.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		FrameDuration:  20 * time.Millisecond,
		Threshold:      0.1,
		WindowDuration: 240 * time.Millisecond,
		TriggerRatio:   0.9,
		ReleaseRatio:   0.25,
		MinUtterance:   400 * time.Millisecond,
		HoldDuration:   600 * time.Millisecond,
		PreSpeech:      240 * time.Millisecond,
		NoiseGate:      0.01,
	}
}

// Utterance is one contiguous speech segment delimited by the segmenter.
type Utterance struct {
	Audio     []byte
	StartedAt time.Time
	EndedAt   time.Time
}

// EventKind classifies what a pushed frame did to the segmenter state.
type EventKind int

const (
	EventSilence EventKind = iota
	EventSpeechStart
	EventSpeechContinuing
	EventSpeechEnd
)

// Event is emitted per processed frame. Utterance is non-nil only for
// EventSpeechEnd.
type Event struct {
	Kind      EventKind
	Utterance *Utterance
}

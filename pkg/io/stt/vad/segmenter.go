package vad

import (
	"context"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// Segmenter turns a per-session stream of PCM16 audio into utterance
// boundaries. It is purely a function of the pushed frames: it holds no
// cross-session state and never blocks on downstream consumers.
type Segmenter struct {
	cfg    Config
	cls    Classifier
	logger *Logger.Logger

	frameBytes int
	windowCap  int
	holdFrames int
	preCap     int
	minBytes   int

	partial    []byte
	window     []bool
	pre        [][]byte
	speech     []byte
	silenceRun int
	inSpeech   bool
	startedAt  time.Time
}

// NewSegmenter creates a segmenter for one session's frame stream.
func NewSegmenter(cfg Config, cls Classifier, logger *Logger.Logger) *Segmenter {
	frameSamples := int(float64(cfg.SampleRate) * cfg.FrameDuration.Seconds())
	return &Segmenter{
		cfg:        cfg,
		cls:        cls,
		logger:     logger,
		frameBytes: frameSamples * 2,
		windowCap:  frames(cfg.WindowDuration, cfg.FrameDuration),
		holdFrames: frames(cfg.HoldDuration, cfg.FrameDuration),
		preCap:     frames(cfg.PreSpeech, cfg.FrameDuration),
		minBytes:   int(float64(cfg.SampleRate)*cfg.MinUtterance.Seconds()) * 2,
	}
}

func frames(d, frame time.Duration) int {
	n := int(d / frame)
	if n < 1 {
		n = 1
	}
	return n
}

// Push feeds raw PCM16 of arbitrary length. Complete frames are
// classified immediately; a trailing partial frame is held until the
// next push. One event is returned per processed frame.
func (s *Segmenter) Push(ctx context.Context, pcm []byte, now time.Time) []Event {
	s.partial = append(s.partial, pcm...)

	var events []Event
	for len(s.partial) >= s.frameBytes {
		frame := make([]byte, s.frameBytes)
		copy(frame, s.partial[:s.frameBytes])
		s.partial = s.partial[s.frameBytes:]
		events = append(events, s.processFrame(ctx, frame, now))
	}
	return events
}

// Reset discards all buffered audio and detection state.
func (s *Segmenter) Reset() {
	s.partial = nil
	s.resetDetection()
}

func (s *Segmenter) resetDetection() {
	s.window = s.window[:0]
	s.pre = s.pre[:0]
	s.speech = nil
	s.silenceRun = 0
	s.inSpeech = false
}

func (s *Segmenter) processFrame(ctx context.Context, frame []byte, now time.Time) Event {
	prob, err := s.cls.Probability(ctx, frame)
	if err != nil {
		s.logger.Warnf("frame classification failed, treating as silence: %v", err)
		prob = 0
	}
	isSpeech := prob >= s.cfg.Threshold

	if len(s.window) >= s.windowCap {
		s.window = s.window[1:]
	}
	s.window = append(s.window, isSpeech)

	speechFrames := 0
	for _, v := range s.window {
		if v {
			speechFrames++
		}
	}
	ratio := float64(speechFrames) / float64(len(s.window))

	if !s.inSpeech {
		if len(s.pre) >= s.preCap {
			s.pre = s.pre[1:]
		}
		s.pre = append(s.pre, frame)

		// Wait for at least half a decision window so a single loud
		// frame at stream start cannot trigger.
		if len(s.window) >= s.windowCap/2 && ratio >= s.cfg.TriggerRatio {
			s.inSpeech = true
			s.silenceRun = 0
			s.startedAt = now.Add(-time.Duration(len(s.pre)) * s.cfg.FrameDuration)
			for _, p := range s.pre {
				s.speech = append(s.speech, p...)
			}
			s.pre = s.pre[:0]
			return Event{Kind: EventSpeechStart}
		}
		return Event{Kind: EventSilence}
	}

	s.speech = append(s.speech, frame...)

	if ratio >= s.cfg.ReleaseRatio {
		s.silenceRun = 0
		return Event{Kind: EventSpeechContinuing}
	}

	s.silenceRun++
	if s.silenceRun < s.holdFrames {
		return Event{Kind: EventSpeechContinuing}
	}

	// Hold duration of silence elapsed: close the utterance.
	buf := s.speech
	started := s.startedAt
	s.resetDetection()

	if len(buf) < s.minBytes {
		// Too short to be speech; dropping it must not stall detection.
		s.logger.Debugf("discarding short utterance (%d bytes < %d)", len(buf), s.minBytes)
		return Event{Kind: EventSilence}
	}

	return Event{
		Kind: EventSpeechEnd,
		Utterance: &Utterance{
			Audio:     buf,
			StartedAt: started,
			EndedAt:   now,
		},
	}
}

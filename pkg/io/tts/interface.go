package tts

import (
	"context"
	"io"
)

// Synthesizer converts reply text into a mono PCM16 audio stream at the
// engine's configured sample rate. The caller owns the returned stream
// and must close it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
	SampleRate() int32
}

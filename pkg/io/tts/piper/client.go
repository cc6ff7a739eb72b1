package piper

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/tts"
)

// Piper synthesizes speech through a wyoming-piper HTTP endpoint.
type Piper struct {
	BaseURL string        // e.g. "http://tts:5000"
	Client  *http.Client  // injected; default if nil
	Voice   string        // piper voice name, empty for server default
	Rate    int32         // PCM sample rate the voice produces
	Timeout time.Duration // per-request timeout
}

func New(baseURL, voice string, rate int32) *Piper {
	if rate == 0 {
		rate = 16000
	}
	return &Piper{BaseURL: baseURL, Voice: voice, Rate: rate}
}

// SampleRate implements tts.Synthesizer.
func (p *Piper) SampleRate() int32 {
	return p.Rate
}

// Synthesize implements tts.Synthesizer. The WAV container returned by
// piper is stripped so callers read raw PCM16.
func (p *Piper) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	// wyoming-piper HTTP: GET /api/text-to-speech?text=...&voice=...
	u, err := url.Parse(p.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("text", text)
	if p.Voice != "" {
		q.Set("voice", p.Voice)
	}
	u.RawQuery = q.Encode()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	hc := p.Client
	if hc == nil {
		hc = &http.Client{}
	}

	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("tts http %d: %s", resp.StatusCode, string(b))
	}

	pcm, err := stripWAVHeader(resp.Body)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}
	return &cancelOnClose{Reader: pcm, body: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.Reader
	body   io.Closer
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.body.Close()
}

// stripWAVHeader consumes RIFF chunks up to the data chunk and returns a
// reader positioned at the raw samples.
func stripWAVHeader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)

	riff := make([]byte, 12)
	if _, err := io.ReadFull(br, riff); err != nil {
		return nil, fmt.Errorf("short WAV header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a WAV stream")
	}

	for {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, fmt.Errorf("malformed WAV chunk: %w", err)
		}
		size := binary.LittleEndian.Uint32(chunk[4:8])
		if string(chunk[0:4]) == "data" {
			return io.LimitReader(br, int64(size)), nil
		}
		if _, err := io.CopyN(io.Discard, br, int64(size)); err != nil {
			return nil, fmt.Errorf("malformed WAV chunk: %w", err)
		}
	}
}

var _ tts.Synthesizer = (*Piper)(nil)

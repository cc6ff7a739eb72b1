package vad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// SileroClassifier scores frames through a Silero VAD HTTP service.
// On any service failure it falls back to energy-based scoring so the
// segmenter never stalls on a model outage.
type SileroClassifier struct {
	serviceURL string
	sampleRate int32
	httpClient *http.Client
	fallback   *EnergyClassifier
	logger     *Logger.Logger
}

type sileroResponse struct {
	HasVoice   bool    `json:"has_voice"`
	Confidence float32 `json:"confidence"`
}

// NewSileroClassifier creates a remote classifier against serviceURL.
func NewSileroClassifier(serviceURL string, cfg Config, logger *Logger.Logger) *SileroClassifier {
	return &SileroClassifier{
		serviceURL: serviceURL,
		sampleRate: cfg.SampleRate,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		fallback:   NewEnergyClassifier(cfg.NoiseGate),
		logger:     logger,
	}
}

// Probability implements Classifier.
func (s *SileroClassifier) Probability(ctx context.Context, frame []byte) (float32, error) {
	p, err := s.callService(ctx, frame)
	if err != nil {
		s.logger.Warnf("silero VAD unavailable, using energy fallback: %v", err)
		return s.fallback.Probability(ctx, frame)
	}
	return p, nil
}

func (s *SileroClassifier) callService(ctx context.Context, frame []byte) (float32, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.wav")
	if err != nil {
		return 0, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavFromPCM(frame, s.sampleRate)); err != nil {
		return 0, fmt.Errorf("failed to write audio data: %w", err)
	}
	writer.WriteField("sampling_rate", strconv.Itoa(int(s.sampleRate)))
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/vad", body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call VAD service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("VAD service returned status %d: %s", resp.StatusCode, string(b))
	}

	var sr sileroResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if !sr.HasVoice {
		return 0, nil
	}
	return sr.Confidence, nil
}

// wavFromPCM wraps raw mono PCM16 in a minimal WAV container.
func wavFromPCM(pcm []byte, sampleRate int32) []byte {
	buf := &bytes.Buffer{}
	dataSize := uint32(len(pcm))

	buf.WriteString("RIFF")
	writeUint32LE(buf, dataSize+36)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)                    // PCM chunk size
	writeUint16LE(buf, 1)                     // PCM format
	writeUint16LE(buf, 1)                     // mono
	writeUint32LE(buf, uint32(sampleRate))    // sample rate
	writeUint32LE(buf, uint32(sampleRate)*2)  // byte rate
	writeUint16LE(buf, 2)                     // block align
	writeUint16LE(buf, 16)                    // bits per sample
	buf.WriteString("data")
	writeUint32LE(buf, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func writeUint16LE(buf *bytes.Buffer, v uint16) {
	buf.Write([]byte{byte(v), byte(v >> 8)})
}

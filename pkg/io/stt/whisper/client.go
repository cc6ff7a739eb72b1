package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/io/stt"
)

// transcriptionResponse is the JSON body returned by the Whisper ASR
// webservice for output=json.
type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Client recognizes utterances through a Whisper ASR webservice.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *Logger.Logger
}

// New creates a Whisper client against baseURL.
func New(baseURL, language string, logger *Logger.Logger) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:  baseURL,
		language: language,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Transcribe implements stt.Recognizer. The utterance is wrapped in a
// WAV container and posted as multipart form data.
func (w *Client) Transcribe(ctx context.Context, pcm []byte, sampleRate int32) (*stt.Transcript, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty utterance")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(pcmToWAV(pcm, sampleRate)); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	requestURL := fmt.Sprintf("%s/asr?encode=true&task=transcribe&language=%s&output=json",
		w.baseURL, w.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper service returned status %d: %s", resp.StatusCode, string(responseBody))
	}
	if len(responseBody) == 0 {
		return nil, fmt.Errorf("whisper service returned empty response")
	}

	duration := time.Duration(float64(len(pcm)) / float64(sampleRate*2) * float64(time.Second))

	// Some deployments return plain text instead of JSON.
	var tr transcriptionResponse
	if err := json.Unmarshal(responseBody, &tr); err != nil {
		w.logger.Debugf("non-JSON whisper response, treating as plain text (%d bytes)", len(responseBody))
		return &stt.Transcript{
			Text:          string(responseBody),
			Language:      w.language,
			AudioDuration: duration,
			GeneratedAt:   time.Now(),
		}, nil
	}

	w.logger.Debugf("whisper transcription: %q (language: %s)", tr.Text, tr.Language)

	return &stt.Transcript{
		Text:          tr.Text,
		Language:      tr.Language,
		AudioDuration: duration,
		GeneratedAt:   time.Now(),
	}, nil
}

// pcmToWAV wraps raw mono PCM16 in a WAV container.
func pcmToWAV(pcm []byte, sampleRate int32) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := int(sampleRate) * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	writeUint32LE(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	writeUint32LE(header[16:20], 16)
	writeUint16LE(header[20:22], 1)
	writeUint16LE(header[22:24], numChannels)
	writeUint32LE(header[24:28], uint32(sampleRate))
	writeUint32LE(header[28:32], uint32(byteRate))
	writeUint16LE(header[32:34], uint16(blockAlign))
	writeUint16LE(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	writeUint32LE(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}

func writeUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func writeUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// ChatbotFlow talks to the external chatbot API.
type ChatbotFlow struct {
	baseURL    string
	token      string
	fallback   string
	welcome    string
	httpClient *http.Client
	logger     *Logger.Logger
}

func NewChatbotFlow(cfg config.FlowConfig, logger *Logger.Logger) *ChatbotFlow {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ChatbotFlow{
		baseURL:    cfg.ChatbotURL,
		token:      cfg.ChatbotToken,
		fallback:   cfg.FallbackPhrase,
		welcome:    cfg.WelcomePrompt,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type initRequest struct {
	CustomerName string `json:"customer_name"`
}

type initResponse struct {
	SessionID      string `json:"session_id"`
	WelcomeMessage string `json:"welcome_message"`
}

type messageRequest struct {
	UserInput string `json:"user_input"`
}

type messageResponse struct {
	BotResponse string `json:"bot_response"`
	NextAction  string `json:"next_action"`
}

type digitRequest struct {
	Digit string `json:"digit"`
	Track string `json:"track"`
}

// Open implements Flow.
func (c *ChatbotFlow) Open(ctx context.Context, callerName string) (Cursor, string, error) {
	var out initResponse
	err := c.post(ctx, "/chat/init", initRequest{CustomerName: callerName}, &out)
	if err != nil {
		return "", "", fmt.Errorf("chatbot init failed: %w", err)
	}
	if out.SessionID == "" {
		return "", "", fmt.Errorf("chatbot init returned no session id")
	}
	greeting := out.WelcomeMessage
	if greeting == "" {
		greeting = c.welcome
	}
	c.logger.Infof("chatbot conversation opened cursor=%s", out.SessionID)
	return Cursor(out.SessionID), greeting, nil
}

// Reply implements Flow.
func (c *ChatbotFlow) Reply(ctx context.Context, cur Cursor, transcript string) (*Result, error) {
	var out messageResponse
	err := c.post(ctx, "/chat/"+string(cur), messageRequest{UserInput: transcript}, &out)
	if err != nil {
		return nil, fmt.Errorf("chatbot message failed: %w", err)
	}

	action := Action(out.NextAction)
	if action != ActionEndCall {
		action = ActionContinue
	}
	return &Result{Text: out.BotResponse, NextAction: action}, nil
}

// Filler implements Flow.
func (c *ChatbotFlow) Filler(Cursor) string {
	return c.fallback
}

// OnDigit implements Flow.
func (c *ChatbotFlow) OnDigit(ctx context.Context, cur Cursor, digit, track string) error {
	return c.post(ctx, "/chat/"+string(cur)+"/dtmf", digitRequest{Digit: digit, Track: track}, nil)
}

// Close implements Flow. Conversation state lives on the chatbot
// service, which expires sessions on its own.
func (c *ChatbotFlow) Close(cur Cursor) {
	c.logger.Debugf("chatbot conversation released cursor=%s", cur)
}

func (c *ChatbotFlow) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatbot API returned status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ Flow = (*ChatbotFlow)(nil)

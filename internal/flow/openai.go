package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/internal/config"
	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

const systemPrompt = `You are a polite voice assistant for a loan services helpline.
Answer in one or two short spoken sentences. If the caller says goodbye or the
query is resolved, end your reply with [END_CALL].`

// OpenAIFlow runs the conversation directly against the OpenAI chat API,
// holding history in memory per cursor.
type OpenAIFlow struct {
	client   openai.Client
	model    openai.ChatModel
	fallback string
	welcome  string
	logger   *Logger.Logger

	mu       sync.Mutex
	sessions map[Cursor][]openai.ChatCompletionMessageParamUnion
}

func NewOpenAIFlow(cfg config.FlowConfig, logger *Logger.Logger) *OpenAIFlow {
	model := openai.ChatModel(cfg.OpenAIModel)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIFlow{
		client:   openai.NewClient(option.WithAPIKey(cfg.OpenAIKey)),
		model:    model,
		fallback: cfg.FallbackPhrase,
		welcome:  cfg.WelcomePrompt,
		logger:   logger,
		sessions: make(map[Cursor][]openai.ChatCompletionMessageParamUnion),
	}
}

// Open implements Flow.
func (o *OpenAIFlow) Open(_ context.Context, callerName string) (Cursor, string, error) {
	cur := Cursor(uuid.NewString())
	prompt := systemPrompt
	if callerName != "" {
		prompt += "\nThe caller's name is " + callerName + "."
	}

	o.mu.Lock()
	o.sessions[cur] = []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt),
	}
	o.mu.Unlock()

	return cur, o.welcome, nil
}

// Reply implements Flow.
func (o *OpenAIFlow) Reply(ctx context.Context, cur Cursor, transcript string) (*Result, error) {
	o.mu.Lock()
	history, ok := o.sessions[cur]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown conversation cursor %s", cur)
	}

	msgs := append(append([]openai.ChatCompletionMessageParamUnion{}, history...),
		openai.UserMessage(transcript))

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	text := completion.Choices[0].Message.Content
	action := ActionContinue
	if strings.Contains(text, "[END_CALL]") {
		text = strings.TrimSpace(strings.ReplaceAll(text, "[END_CALL]", ""))
		action = ActionEndCall
	}

	o.mu.Lock()
	o.sessions[cur] = append(msgs, openai.AssistantMessage(text))
	o.mu.Unlock()

	return &Result{Text: text, NextAction: action}, nil
}

// Filler implements Flow.
func (o *OpenAIFlow) Filler(Cursor) string {
	return o.fallback
}

// Close implements Flow, dropping the cursor's message history so
// ended conversations do not accumulate for the life of the process.
func (o *OpenAIFlow) Close(cur Cursor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, cur)
}

// OnDigit implements Flow. Keypresses are folded into the history as
// user input so the model can react on the next turn.
func (o *OpenAIFlow) OnDigit(_ context.Context, cur Cursor, digit, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	history, ok := o.sessions[cur]
	if !ok {
		return fmt.Errorf("unknown conversation cursor %s", cur)
	}
	o.sessions[cur] = append(history, openai.UserMessage("The caller pressed the "+digit+" key."))
	return nil
}

var _ Flow = (*OpenAIFlow)(nil)

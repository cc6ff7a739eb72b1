package flow

import "context"

// Cursor is the opaque conversation handle issued by the flow provider.
// The pipeline passes it through unchanged and never inspects it.
type Cursor string

// Action tells the caller what the conversation should do next.
type Action string

const (
	ActionContinue Action = "continue"
	ActionEndCall  Action = "end_call"
)

// Result is one reasoning step's output.
type Result struct {
	Text       string
	NextAction Action
}

// Flow is the conversational collaborator behind the reason stage.
type Flow interface {
	// Open starts a conversation and returns its cursor plus the
	// opening line to speak to the caller.
	Open(ctx context.Context, callerName string) (Cursor, string, error)

	// Reply produces the bot response for one transcript.
	Reply(ctx context.Context, cur Cursor, transcript string) (*Result, error)

	// Filler is the phrase spoken when Reply fails past its retries.
	Filler(cur Cursor) string

	// OnDigit reports a DTMF keypress to the conversation.
	OnDigit(ctx context.Context, cur Cursor, digit, track string) error

	// Close releases any provider-side state held for the cursor. Called
	// once when the session ends; safe on unknown cursors.
	Close(cur Cursor)
}

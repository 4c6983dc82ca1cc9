package core

import "context"

// EmbeddingProvider converts text into fixed-dimension vectors.
type EmbeddingProvider interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatMessage is one turn sent to the chat-completion backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient talks to an OpenAI-compatible chat-completion backend.
//
// Both StreamChat and Complete negotiate request parameters against the
// backend: a *ConfigurationError return means no parameter combination was
// accepted and nothing was streamed; a *GenerationStreamError means the
// stream broke after tokens had started flowing.
type ChatClient interface {
	// ValidateConnection runs the negotiation with a minimal request so that
	// misconfiguration surfaces before a real generation starts.
	ValidateConnection(ctx context.Context) error
	// StreamChat streams completion deltas to onDelta and returns the full
	// concatenated text.
	StreamChat(ctx context.Context, messages []ChatMessage, maxTokens int, onDelta func(token string)) (string, error)
	// Complete performs a non-streaming completion (used for thread titles).
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int) (string, error)
	Provider() string
	Model() string
}

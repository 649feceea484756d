package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// The choice mode must be honored by every provider: under
	// ToolsNone the returned message never carries tool calls.
	Chat(ctx context.Context, model string, messages []Message, tools []Tool, choice ToolChoice, opts Options) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

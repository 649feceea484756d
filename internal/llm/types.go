// Package llm provides LLM provider clients behind a common interface.
package llm

// Message represents one turn of a model conversation.
type Message struct {
	Role      string     `json:"role"` // system, user, assistant, tool
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"` // assistant turns only

	// ToolCallID and ToolName correlate a tool turn to the assistant
	// tool call it answers. Gemini matches on name, OpenAI on ID, so
	// both are carried.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// ToolCall is a request from the model to execute a named tool.
type ToolCall struct {
	// ID is the provider-assigned correlation token. Providers without
	// native call IDs (Gemini) get a synthetic one at decode time.
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool is a provider-agnostic tool declaration presented to the model.
// Parameters is a JSON-schema object (type/properties/required).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice controls whether the model may, must, or must not call tools.
type ToolChoice string

const (
	// ToolsAuto lets the model decide whether to call tools.
	ToolsAuto ToolChoice = "auto"

	// ToolsRequired forces the model to call at least one tool.
	ToolsRequired ToolChoice = "required"

	// ToolsNone disables tool calling for this request.
	ToolsNone ToolChoice = "none"
)

// Options are per-request generation parameters.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ChatResponse is the unified response from any provider. Wire format
// conversion happens at provider boundaries (gemini.go, openai.go).
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

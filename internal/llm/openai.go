package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teamforge/crewbot/internal/config"
	"github.com/teamforge/crewbot/internal/httpkit"
)

// OpenAIClient implements Client against any /v1/chat/completions
// compatible server (OpenAI itself, or a local runtime such as Ollama
// or vLLM in compatibility mode).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
// baseURL should include the version prefix (e.g. "https://api.openai.com/v1").
func NewOpenAIClient(baseURL, apiKey string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON-encoded string per the wire format
	} `json:"function"`
}

type openAIToolDecl struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIRequest struct {
	Model       string           `json:"model"`
	Messages    []openAIMessage  `json:"messages"`
	Tools       []openAIToolDecl `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat implements the Client interface.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message, tools []Tool, choice ToolChoice, opts Options) (*ChatResponse, error) {
	req := openAIRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	if opts.TopP > 0 {
		req.TopP = &opts.TopP
	}

	for _, m := range messages {
		om := openAIMessage{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			om.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("openai: marshal tool call args: %w", err)
			}
			otc := openAIToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		req.Messages = append(req.Messages, om)
	}

	if len(tools) > 0 && choice != ToolsNone {
		for _, t := range tools {
			decl := openAIToolDecl{Type: "function"}
			decl.Function.Name = t.Name
			decl.Function.Description = t.Description
			decl.Function.Parameters = t.Parameters
			req.Tools = append(req.Tools, decl)
		}
		switch choice {
		case ToolsRequired:
			req.ToolChoice = "required"
		default:
			req.ToolChoice = "auto"
		}
	} else {
		req.ToolChoice = "none"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "openai request",
		"model", model,
		"payload", string(body),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("openai: API error (status %d): %s", resp.StatusCode, errBody)
	}

	var or openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	if or.Error != nil {
		return nil, fmt.Errorf("openai: API error (%s): %s", or.Error.Type, or.Error.Message)
	}
	if len(or.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	om := or.Choices[0].Message
	msg := Message{Role: "assistant", Content: om.Content}
	for _, tc := range om.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				// Dropping the call would strand it with no result turn
				// on the next request; run the tool on empty arguments
				// and let its own validation speak.
				c.logger.Warn("openai: unparseable tool call arguments, treating as empty",
					"tool", tc.Function.Name, "error", err)
				args = nil
			}
		}
		if args == nil {
			args = map[string]any{}
		}
		id := tc.ID
		if id == "" {
			id = "call-" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	// Some local models ignore the tools wire format and emit the call
	// as JSON in the message text instead. Salvage those, but only when
	// tool use is actually permitted.
	if len(msg.ToolCalls) == 0 && choice != ToolsNone && len(tools) > 0 {
		if calls := parseTextToolCalls(msg.Content, tools); len(calls) > 0 {
			msg.ToolCalls = calls
			msg.Content = ""
		}
	}
	if choice == ToolsNone {
		msg.ToolCalls = nil
	}

	c.logger.Log(ctx, config.LevelTrace, "openai response",
		"model", or.Model,
		"finishReason", or.Choices[0].FinishReason,
		"textLen", len(msg.Content),
		"toolCalls", len(msg.ToolCalls),
	)

	respModel := or.Model
	if respModel == "" {
		respModel = model
	}
	return &ChatResponse{
		Model:        respModel,
		Message:      msg,
		InputTokens:  or.Usage.PromptTokens,
		OutputTokens: or.Usage.CompletionTokens,
	}, nil
}

// Ping implements the Client interface.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: unreachable: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: ping failed with status %d", resp.StatusCode)
	}
	return nil
}

// parseTextToolCalls extracts tool calls that a model emitted as bare
// JSON text instead of using the structured tool_calls field. It accepts
// a single object or an array of objects shaped like
// {"name": "...", "arguments": {...}}, optionally inside a ```json fence,
// and only returns calls whose name matches a declared tool.
func parseTextToolCalls(text string, tools []Tool) []ToolCall {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}

	// Strip a markdown code fence if present.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return nil
	}

	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.Name] = true
	}

	type rawCall struct {
		Name       string         `json:"name"`
		Arguments  map[string]any `json:"arguments"`
		Parameters map[string]any `json:"parameters"` // some models use this key
	}

	var raws []rawCall
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &raws); err != nil {
			return nil
		}
	} else {
		var one rawCall
		if err := json.Unmarshal([]byte(s), &one); err != nil {
			return nil
		}
		raws = []rawCall{one}
	}

	var calls []ToolCall
	for _, r := range raws {
		if r.Name == "" || !known[r.Name] {
			return nil
		}
		args := r.Arguments
		if args == nil {
			args = r.Parameters
		}
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{
			ID:        "call-" + uuid.NewString(),
			Name:      r.Name,
			Arguments: args,
		})
	}
	return calls
}

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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements Client against the Gemini generateContent API.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClient creates a client for the Gemini API. baseURL may be
// empty to use the public endpoint.
func NewGeminiClient(baseURL, apiKey string, logger *slog.Logger) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// No client-level timeout: generation time varies wildly with
		// load. Callers bound requests with ctx deadlines.
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// Gemini wire types. The generateContent request groups turns into
// "contents" with typed parts; system prompts travel out-of-band in
// systemInstruction.

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiToolDecl        `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user or model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode string `json:"mode"` // AUTO, ANY, NONE
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Chat implements the Client interface.
func (c *GeminiClient) Chat(ctx context.Context, model string, messages []Message, tools []Tool, choice ToolChoice, opts Options) (*ChatResponse, error) {
	req := geminiRequest{}

	for _, m := range messages {
		switch m.Role {
		case "system":
			// Gemini takes system prompts out-of-band. Multiple system
			// turns are concatenated, though in practice there is one.
			if req.SystemInstruction == nil {
				req.SystemInstruction = &geminiContent{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts,
				geminiPart{Text: m.Content})
		case "assistant":
			content := geminiContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
			req.Contents = append(req.Contents, content)
		case "tool":
			var payload map[string]any
			if err := json.Unmarshal([]byte(m.Content), &payload); err != nil {
				// Tool produced non-JSON output; wrap it so the part is
				// still a valid functionResponse.
				payload = map[string]any{"output": m.Content}
			}
			req.Contents = append(req.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFunctionResponse{
						Name:     m.ToolName,
						Response: payload,
					},
				}},
			})
		default:
			req.Contents = append(req.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: m.Content}},
			})
		}
	}

	if len(tools) > 0 && choice != ToolsNone {
		decl := geminiToolDecl{}
		for _, t := range tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		req.Tools = []geminiToolDecl{decl}
	}

	mode := "NONE"
	switch choice {
	case ToolsAuto:
		mode = "AUTO"
	case ToolsRequired:
		mode = "ANY"
	}
	req.ToolConfig = &geminiToolConfig{
		FunctionCallingConfig: geminiFunctionCallingConfig{Mode: mode},
	}

	gen := &geminiGenerationConfig{MaxOutputTokens: opts.MaxTokens}
	if opts.Temperature > 0 {
		gen.Temperature = &opts.Temperature
	}
	if opts.TopP > 0 {
		gen.TopP = &opts.TopP
	}
	req.GenerationConfig = gen

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "gemini request",
		"model", model,
		"payload", string(body),
	)

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("gemini: API error (status %d): %s", resp.StatusCode, errBody)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}

	if gr.Error != nil {
		return nil, fmt.Errorf("gemini: API error %d (%s): %s", gr.Error.Code, gr.Error.Status, gr.Error.Message)
	}
	if len(gr.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	cand := gr.Candidates[0]
	msg := Message{Role: "assistant"}
	var texts []string
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
		if p.FunctionCall != nil {
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				// Gemini has no native call IDs; synthesize one so the
				// orchestrator can correlate results uniformly.
				ID:        "call-" + uuid.NewString(),
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	msg.Content = strings.Join(texts, "\n")

	// The API is not supposed to return calls when the mode is NONE, but
	// drop them anyway so callers can rely on the contract.
	if choice == ToolsNone {
		msg.ToolCalls = nil
	}

	c.logger.Log(ctx, config.LevelTrace, "gemini response",
		"model", model,
		"finishReason", cand.FinishReason,
		"textLen", len(msg.Content),
		"toolCalls", len(msg.ToolCalls),
	)

	return &ChatResponse{
		Model:        model,
		Message:      msg,
		InputTokens:  gr.UsageMetadata.PromptTokenCount,
		OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// Ping implements the Client interface. It lists models as a cheap
// authenticated reachability check.
func (c *GeminiClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models?pageSize=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini: unreachable: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini: ping failed with status %d", resp.StatusCode)
	}
	return nil
}

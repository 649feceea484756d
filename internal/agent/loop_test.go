package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/llm"
	"github.com/teamforge/crewbot/internal/prompts"
	"github.com/teamforge/crewbot/internal/tools"
)

// chatCall records one model invocation the loop made.
type chatCall struct {
	model    string
	messages []llm.Message
	tools    []llm.Tool
	choice   llm.ToolChoice
}

// scriptedClient returns canned responses in order and records every call.
type scriptedClient struct {
	responses []func(call chatCall) (*llm.ChatResponse, error)
	calls     []chatCall
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, decls []llm.Tool, choice llm.ToolChoice, opts llm.Options) (*llm.ChatResponse, error) {
	call := chatCall{model: model, messages: messages, tools: decls, choice: choice}
	c.calls = append(c.calls, call)
	if len(c.responses) == 0 {
		return nil, errors.New("scripted client: no responses left")
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next(call)
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func say(text string) func(chatCall) (*llm.ChatResponse, error) {
	return func(call chatCall) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Model: call.model, Message: llm.Message{Role: "assistant", Content: text}}, nil
	}
}

func callTool(name string, args map[string]any) func(chatCall) (*llm.ChatResponse, error) {
	return func(call chatCall) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Model: call.model, Message: llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: name, Arguments: args}},
		}}, nil
	}
}

// echoTool is a trivial tool the scripted model can call.
type echoTool struct{}

func (echoTool) Name() string               { return "lookup" }
func (echoTool) Description() string        { return "look something up" }
func (echoTool) Parameters() map[string]any { return map[string]any{"type": "object", "properties": map[string]any{}} }
func (echoTool) Call(ctx context.Context, args map[string]any) tools.Result {
	return tools.OK(map[string]any{"found": "data"})
}

func newTestLoop(t *testing.T, client llm.Client) *Loop {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := tools.NewRegistry(logger)
	reg.Register(echoTool{})
	reg.Register(tools.ThinkHarder{})

	lib, err := prompts.NewLibrary("")
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}

	return New(client, reg, lib, &convo.Builder{HistoryDepth: 5}, nil,
		Tier{Name: "lite", Model: "lite-model"},
		Tier{Name: "pro", Model: "pro-model"},
		Config{
			MaxToolRounds: 3,
			ReplyLimit:    1800,
			ModelTimeout:  5 * time.Second,
			LiteTools:     []string{"lookup", "think_harder"},
		},
		logger)
}

func testMessage() convo.ChannelMessage {
	return convo.ChannelMessage{
		ID: "m1", AuthorID: "u1", AuthorName: "alice", Content: "question?",
		Timestamp: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
}

func TestRunDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		say("The meeting is Thursday."),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "The meeting is Thursday." {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Escalated || out.Fallback || out.Tier != "lite" {
		t.Errorf("outcome = %+v", out)
	}
	if len(client.calls) != 1 {
		t.Errorf("made %d model calls, want 1", len(client.calls))
	}
	if client.calls[0].choice != llm.ToolsAuto {
		t.Errorf("choice = %q, want auto", client.calls[0].choice)
	}
}

func TestRunToolRoundThenAnswer(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		callTool("lookup", nil),
		say("Found it."),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "Found it." {
		t.Errorf("Text = %q", out.Text)
	}
	if len(out.ExecutedTools) != 1 || out.ExecutedTools[0] != "lookup" {
		t.Errorf("ExecutedTools = %v, want [lookup]", out.ExecutedTools)
	}
	if len(out.ToolResults) != 1 || out.ToolResults[0].IsError() {
		t.Errorf("ToolResults = %v", out.ToolResults)
	}

	// Second call's transcript must contain the assistant tool call and
	// the tool result, in that order.
	msgs := client.calls[1].messages
	last, prev := msgs[len(msgs)-1], msgs[len(msgs)-2]
	if prev.Role != "assistant" || len(prev.ToolCalls) != 1 {
		t.Errorf("penultimate turn = %+v, want assistant tool call", prev)
	}
	if last.Role != "tool" || last.ToolName != "lookup" || !strings.Contains(last.Content, "found") {
		t.Errorf("final turn = %+v, want tool result", last)
	}
}

func TestRunTerminatesAtRoundCap(t *testing.T) {
	// Model calls tools forever; the loop must stop at the cap and force
	// a final no-tools answer.
	var responses []func(chatCall) (*llm.ChatResponse, error)
	for i := 0; i < 3; i++ {
		responses = append(responses, callTool("lookup", nil))
	}
	responses = append(responses, say("best effort answer"))

	client := &scriptedClient{responses: responses}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "best effort answer" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(client.calls) != 4 {
		t.Fatalf("made %d model calls, want 3 rounds + 1 forced final", len(client.calls))
	}

	final := client.calls[3]
	if final.choice != llm.ToolsNone {
		t.Errorf("forced final choice = %q, want none", final.choice)
	}
	if len(final.tools) != 0 {
		t.Errorf("forced final still offered %d tools", len(final.tools))
	}
}

func TestRunEscalation(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		callTool("think_harder", map[string]any{"reason": "needs deep analysis"}),
		say("Thorough pro answer."),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Escalated || out.Tier != "pro" {
		t.Fatalf("outcome = %+v, want escalated pro", out)
	}
	if out.Text != "Thorough pro answer." {
		t.Errorf("Text = %q", out.Text)
	}

	if len(client.calls) != 2 {
		t.Fatalf("made %d model calls, want 2", len(client.calls))
	}
	if client.calls[0].model != "lite-model" || client.calls[1].model != "pro-model" {
		t.Errorf("models = %q then %q", client.calls[0].model, client.calls[1].model)
	}
	if len(out.ExecutedTools) != 1 || out.ExecutedTools[0] != "think_harder" {
		t.Errorf("ExecutedTools = %v, want the lite tier's escalate call", out.ExecutedTools)
	}

	// The pro pass starts from a fresh transcript: no tool turns from
	// the lite pass, and the pro system prompt.
	proMsgs := client.calls[1].messages
	for _, m := range proMsgs {
		if m.Role == "tool" {
			t.Errorf("lite tier tool turn leaked into pro transcript: %+v", m)
		}
	}
	if !strings.Contains(proMsgs[0].Content, "escalation tier") {
		t.Error("pro system prompt missing escalation guidance")
	}

	// Pro tier gets the full registry, not the lite allowlist.
	liteNames := toolNames(client.calls[0].tools)
	proNames := toolNames(client.calls[1].tools)
	if len(proNames) < len(liteNames) {
		t.Errorf("pro tools %v smaller than lite tools %v", proNames, liteNames)
	}
}

func toolNames(decls []llm.Tool) []string {
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return names
}

func TestRunEscalationHappensAtMostOnce(t *testing.T) {
	// The pro model also tries think_harder; it must get a rejection
	// result and continue on the pro tier rather than looping.
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		callTool("think_harder", map[string]any{"reason": "hard"}),
		callTool("think_harder", map[string]any{"reason": "harder"}),
		say("pro answer after rejection"),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "pro answer after rejection" {
		t.Errorf("Text = %q", out.Text)
	}
	if out.Tier != "pro" || !out.Escalated {
		t.Errorf("outcome = %+v", out)
	}

	// Call 3 is still the pro model, with the rejection visible in its
	// transcript.
	if client.calls[2].model != "pro-model" {
		t.Fatalf("third call on %q, want pro-model", client.calls[2].model)
	}
	msgs := client.calls[2].messages
	last := msgs[len(msgs)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, "not available in pro mode") {
		t.Errorf("pro transcript missing rejection result: %+v", last)
	}
}

func TestRunModelErrorFallback(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		func(chatCall) (*llm.ChatResponse, error) { return nil, errors.New("boom") },
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != ErrorFallback || !out.Fallback {
		t.Errorf("outcome = %+v, want error fallback", out)
	}
	if len(out.ExecutedTools) != 0 || len(out.ToolResults) != 0 {
		t.Errorf("tool lists not empty after model failure: %v", out.ExecutedTools)
	}
}

func TestRunWhitespaceAnswerForcesFinal(t *testing.T) {
	// Whitespace-only text is not an answer; the loop must fall through
	// to the forced no-tools call.
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		say("   \n"),
		say("Real answer."),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "Real answer." || out.Fallback {
		t.Errorf("outcome = %+v", out)
	}
	if len(client.calls) != 2 || client.calls[1].choice != llm.ToolsNone {
		t.Errorf("calls = %d, second choice = %q", len(client.calls), client.calls[1].choice)
	}
}

func TestRunLoopFallbackAtExhaustedCap(t *testing.T) {
	// Tool calls every round and a blank forced final: the stuck-in-a-
	// loop fallback, distinct from the empty-answer one.
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		callTool("lookup", nil),
		callTool("lookup", nil),
		callTool("lookup", nil),
		say(""),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != LoopFallback || !out.Fallback {
		t.Errorf("outcome = %+v, want loop fallback", out)
	}
	if len(out.ExecutedTools) != 3 {
		t.Errorf("ExecutedTools = %v, want three lookups", out.ExecutedTools)
	}
}

func TestRunEmptyResponsesFallback(t *testing.T) {
	// Model returns nothing, even on the forced final call.
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		say(""),
		say(""),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != EmptyFallback || !out.Fallback {
		t.Errorf("outcome = %+v, want empty-answer fallback", out)
	}
	// Empty first response skips straight to the forced final call.
	if len(client.calls) != 2 {
		t.Errorf("made %d model calls, want 2", len(client.calls))
	}
	if client.calls[1].choice != llm.ToolsNone {
		t.Errorf("second call choice = %q, want none", client.calls[1].choice)
	}
}

func TestRunReplyTruncated(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		say(strings.Repeat("a", 5000)),
	}}
	loop := newTestLoop(t, client)

	out, err := loop.Run(context.Background(), nil, testMessage())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Text) > 1800 {
		t.Errorf("reply length %d exceeds limit", len(out.Text))
	}
	if !strings.HasSuffix(out.Text, "…") {
		t.Error("truncated reply missing ellipsis")
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		func(chatCall) (*llm.ChatResponse, error) {
			cancel()
			return nil, context.Canceled
		},
	}}
	loop := newTestLoop(t, client)

	if _, err := loop.Run(ctx, nil, testMessage()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

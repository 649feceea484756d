package tools

import (
	"context"
	"sync"
)

// Escalation is the per-interaction escalation latch. The think_harder
// tool arms it; the conversation loop reads it after each round.
type Escalation struct {
	mu        sync.Mutex
	requested bool
	reason    string
}

// Request arms the latch. Returns false if it was already armed, so a
// model that calls think_harder twice in one round escalates only once.
func (e *Escalation) Request(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.requested {
		return false
	}
	e.requested = true
	e.reason = reason
	return true
}

// Requested reports whether escalation was asked for.
func (e *Escalation) Requested() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requested
}

// Reason returns the reason given with the first request.
func (e *Escalation) Reason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// ThinkHarder lets the lite model hand a hard question to the pro tier.
type ThinkHarder struct{}

func (ThinkHarder) Name() string { return "think_harder" }

func (ThinkHarder) Description() string {
	return "Escalate this conversation to a stronger reasoning model. Use once, and only for genuinely difficult questions: multi-step reasoning, debugging, code review, or design tradeoffs."
}

func (ThinkHarder) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "One short sentence on why this needs the stronger model.",
			},
		},
		"required": []string{"reason"},
	}
}

func (ThinkHarder) Call(ctx context.Context, args map[string]any) Result {
	env := EnvFrom(ctx)
	if env.Pro {
		return Errf("think_harder is not available in pro mode; answer the question directly")
	}
	if env.Escalation == nil {
		return Errf("escalation is not available here")
	}
	reason := StringArg(args, "reason")
	if !env.Escalation.Request(reason) {
		return Errf("duplicate think_harder call suppressed; escalation happens once per interaction")
	}
	return OK(map[string]any{"status": "escalation scheduled"})
}

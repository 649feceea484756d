package tools

import (
	"context"

	"github.com/teamforge/crewbot/internal/convo"
)

// Env is the per-interaction context handed to tools through the request
// context. Long-lived dependencies (stores, HTTP clients) are injected at
// construction time instead; Env carries only what changes per message.
type Env struct {
	// InteractionID identifies the current run for audit records.
	InteractionID string

	// Message is the channel message that triggered the run.
	Message convo.ChannelMessage

	// Pro is true when running on the escalation tier.
	Pro bool

	// Uploads collects files staged for delivery with the final reply.
	Uploads *Uploads

	// Escalation is the lite-to-pro handoff latch.
	Escalation *Escalation
}

type envKey struct{}

// WithEnv returns a context carrying the interaction environment.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom extracts the interaction environment. The zero Env is returned
// when none was set, which only happens in tests.
func EnvFrom(ctx context.Context) Env {
	env, _ := ctx.Value(envKey{}).(Env)
	return env
}

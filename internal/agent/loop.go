// Package agent runs the tiered tool-calling conversation loop: lite
// model first, escalating to the pro model when the lite tier asks for
// it, with bounded tool rounds and deterministic fallbacks.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/llm"
	"github.com/teamforge/crewbot/internal/prompts"
	"github.com/teamforge/crewbot/internal/reply"
	"github.com/teamforge/crewbot/internal/store"
	"github.com/teamforge/crewbot/internal/tools"
)

// Fallback texts. Every run produces some reply; these cover the paths
// where the model gave us nothing usable: a model call failed, the
// round cap cut off a tool-calling streak, or the forced final call
// still came back blank.
const (
	ErrorFallback = "Sorry, I hit an error while thinking."
	LoopFallback  = "I kept reaching for tools without getting to an answer. Mind rephrasing the question?"
	EmptyFallback = "I couldn't find anything relevant to answer that with. Could you add more detail?"
)

// Tier binds a model name to its generation parameters.
type Tier struct {
	Name  string // "lite" or "pro", for logs and audit
	Model string
	Opts  llm.Options
}

// Config holds the loop's policy knobs.
type Config struct {
	// MaxToolRounds caps model-tool-model iterations per tier.
	MaxToolRounds int

	// ReplyLimit is the maximum reply length in bytes.
	ReplyLimit int

	// ModelTimeout bounds each individual model call.
	ModelTimeout time.Duration

	// LiteTools is the tool allowlist for the lite tier. nil exposes
	// every registered tool, which is the pro tier's behavior.
	LiteTools []string
}

// Outcome is the final result of one mention-to-reply run.
type Outcome struct {
	InteractionID string
	Text          string
	Files         []tools.StagedFile
	Escalated     bool
	Tier          string // tier that produced the final text
	Fallback      bool   // Text is one of the canned fallbacks

	// ExecutedTools and ToolResults list every tool dispatch of the run
	// in execution order, lite tier before pro. Rejected calls appear
	// like successful ones; their result carries the error. Both are
	// empty when a model call failed.
	ExecutedTools []string
	ToolResults   []tools.Result
}

// Loop is the conversation orchestrator. Construct once and share; all
// per-run state lives on the stack and in the tools environment.
type Loop struct {
	client   llm.Client
	registry *tools.Registry
	prompts  *prompts.Library
	builder  *convo.Builder
	audit    *store.Interactions // optional
	lite     Tier
	pro      Tier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a conversation loop. audit may be nil to disable tracing.
func New(client llm.Client, registry *tools.Registry, lib *prompts.Library,
	builder *convo.Builder, audit *store.Interactions,
	lite, pro Tier, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 6
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 90 * time.Second
	}
	return &Loop{
		client:   client,
		registry: registry,
		prompts:  lib,
		builder:  builder,
		audit:    audit,
		lite:     lite,
		pro:      pro,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one full interaction: lite tier, optional escalation to
// pro, finalization. It always returns an Outcome with non-empty Text;
// the error is only non-nil for context cancellation.
func (l *Loop) Run(ctx context.Context, history []convo.ChannelMessage, current convo.ChannelMessage) (*Outcome, error) {
	interactionID := uuid.NewString()
	started := l.now()

	if l.audit != nil {
		if err := l.audit.Begin(ctx, interactionID, current.ID, current.ChannelID, current.AuthorID, started); err != nil {
			l.logger.Warn("audit begin failed", "error", err)
		}
	}

	// Uploads are shared across tiers so files staged before escalation
	// still ship with the pro tier's reply.
	uploads := tools.NewUploads()

	run := &tierRun{
		loop:          l,
		interactionID: interactionID,
		history:       history,
		current:       current,
		uploads:       uploads,
	}

	outcome := &Outcome{InteractionID: interactionID, Tier: l.lite.Name}

	text, err := run.execute(ctx, l.lite, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logger.Error("lite tier failed", "interactionID", interactionID, "error", err)
		outcome.Text = ErrorFallback
		outcome.Fallback = true
	}

	if err == nil && run.escalated {
		outcome.Escalated = true
		outcome.Tier = l.pro.Name
		l.logger.Info("escalating to pro tier",
			"interactionID", interactionID,
			"reason", run.escalationReason,
		)
		text, err = run.execute(ctx, l.pro, true)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Error("pro tier failed", "interactionID", interactionID, "error", err)
			outcome.Text = ErrorFallback
			outcome.Fallback = true
		}
	}

	if !outcome.Fallback {
		outcome.ExecutedTools = run.executedTools
		outcome.ToolResults = run.toolResults
		outcome.Text = reply.Finalize(text, l.cfg.ReplyLimit)
		if outcome.Text == "" {
			if run.capped {
				outcome.Text = LoopFallback
			} else {
				outcome.Text = EmptyFallback
			}
			outcome.Fallback = true
		}
	}
	outcome.Files = uploads.Files()

	if l.audit != nil {
		disposition := "replied"
		if outcome.Fallback {
			disposition = "fallback"
		}
		if err := l.audit.Finish(ctx, interactionID, outcome.Tier, disposition,
			outcome.Escalated, len(outcome.Text), l.now()); err != nil {
			l.logger.Warn("audit finish failed", "error", err)
		}
	}

	l.logger.Info("interaction complete",
		"interactionID", interactionID,
		"tier", outcome.Tier,
		"escalated", outcome.Escalated,
		"fallback", outcome.Fallback,
		"replyLen", len(outcome.Text),
		"files", len(outcome.Files),
		"duration", l.now().Sub(started),
	)
	return outcome, nil
}

// tierRun carries the state shared between the lite and pro passes of
// one interaction.
type tierRun struct {
	loop          *Loop
	interactionID string
	history       []convo.ChannelMessage
	current       convo.ChannelMessage
	uploads       *tools.Uploads

	escalated        bool
	escalationReason string
	capped           bool // last tier pass hit the round cap

	executedTools []string
	toolResults   []tools.Result

	modelSeq int
	toolSeq  int
}

// execute runs the tool-calling loop on one tier and returns the raw
// model text. Escalation starts the pro tier from a fresh transcript:
// the pro model re-reads the conversation rather than inheriting the
// lite model's partial reasoning.
func (r *tierRun) execute(ctx context.Context, tier Tier, pro bool) (string, error) {
	l := r.loop

	esc := &tools.Escalation{}
	ctx = tools.WithEnv(ctx, tools.Env{
		InteractionID: r.interactionID,
		Message:       r.current,
		Pro:           pro,
		Uploads:       r.uploads,
		Escalation:    esc,
	})

	system := l.prompts.System(pro, l.now())
	messages := l.builder.Build(system, r.history, r.current)

	var allowed []string
	if !pro {
		allowed = l.cfg.LiteTools
	}
	decls := l.registry.Describe(allowed)

	ranOut := true
	for round := 0; round < l.cfg.MaxToolRounds; round++ {
		resp, err := r.chat(ctx, tier, messages, decls, llm.ToolsAuto)
		if err != nil {
			return "", err
		}

		if len(resp.Message.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Message.Content) != "" {
				return resp.Message.Content, nil
			}
			// Nothing usable came back. Break out to the forced final
			// call instead of burning rounds on empty responses.
			ranOut = false
			break
		}

		messages = append(messages, resp.Message)
		messages = append(messages, r.dispatchRound(ctx, resp.Message.ToolCalls)...)

		if esc.Requested() && !pro {
			r.escalated = true
			r.escalationReason = esc.Reason()
			// The lite tier's answer is irrelevant now; the pro pass
			// starts over with the full conversation.
			return "", nil
		}
	}

	// Round budget exhausted (or the model went silent). One last call
	// with tools disabled forces a text answer from what it has. The
	// two paths keep distinct fallbacks when even that stays empty.
	r.capped = ranOut
	if ranOut {
		l.logger.Warn("round cap reached, model still calling tools",
			"interactionID", r.interactionID, "tier", tier.Name)
	}
	l.logger.Debug("forcing final answer without tools",
		"interactionID", r.interactionID, "tier", tier.Name)
	resp, err := r.chat(ctx, tier, messages, nil, llm.ToolsNone)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// chat performs one model call with the per-call timeout and audit record.
func (r *tierRun) chat(ctx context.Context, tier Tier, messages []llm.Message, decls []llm.Tool, choice llm.ToolChoice) (*llm.ChatResponse, error) {
	l := r.loop
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ModelTimeout)
	defer cancel()

	start := l.now()
	resp, err := l.client.Chat(callCtx, tier.Model, messages, decls, choice, tier.Opts)
	elapsed := time.Since(start)

	if l.audit != nil {
		rec := store.ModelCall{
			Seq:        r.nextModelSeq(),
			Model:      tier.Model,
			ToolChoice: string(choice),
			DurationMS: elapsed.Milliseconds(),
		}
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.InputTokens = resp.InputTokens
			rec.OutputTokens = resp.OutputTokens
			rec.ToolCalls = len(resp.Message.ToolCalls)
		}
		if aerr := l.audit.RecordModelCall(ctx, r.interactionID, rec); aerr != nil {
			l.logger.Warn("audit model call failed", "error", aerr)
		}
	}
	return resp, err
}

// dispatchRound executes all tool calls of one round concurrently and
// returns their tool messages in call order, so the transcript the model
// sees is deterministic regardless of completion order.
func (r *tierRun) dispatchRound(ctx context.Context, calls []llm.ToolCall) []llm.Message {
	l := r.loop
	results := make([]tools.Result, len(calls))
	durations := make([]time.Duration, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			start := time.Now()
			results[i] = l.registry.Dispatch(ctx, call)
			durations[i] = time.Since(start)
		}(i, call)
	}
	wg.Wait()

	msgs := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		res := results[i]
		r.executedTools = append(r.executedTools, call.Name)
		r.toolResults = append(r.toolResults, res)
		msgs = append(msgs, llm.Message{
			Role:       "tool",
			Content:    res.JSON(),
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})

		if l.audit != nil {
			args, _ := json.Marshal(call.Arguments)
			rec := store.ToolCallRecord{
				Seq:        r.nextToolSeq(),
				Tool:       call.Name,
				Args:       string(args),
				Result:     res.JSON(),
				IsError:    res.IsError(),
				DurationMS: durations[i].Milliseconds(),
			}
			if err := l.audit.RecordToolCall(ctx, r.interactionID, rec); err != nil {
				l.logger.Warn("audit tool call failed", "error", err)
			}
		}
	}
	return msgs
}

func (r *tierRun) nextModelSeq() int {
	r.modelSeq++
	return r.modelSeq
}

func (r *tierRun) nextToolSeq() int {
	r.toolSeq++
	return r.toolSeq
}

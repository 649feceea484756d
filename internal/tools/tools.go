// Package tools defines the tool interface and registry used by the
// conversation loop, plus the standard crewbot tool set.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/teamforge/crewbot/internal/llm"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name is the wire identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Parameters is the JSON-schema object describing the arguments.
	Parameters() map[string]any

	// Call executes the tool. Failures are reported in the Result, not
	// as Go errors: the model is expected to read them and adapt.
	Call(ctx context.Context, args map[string]any) Result
}

// Registry holds the registered tools and dispatches calls to them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering a duplicate name panics: that is a
// wiring bug, not a runtime condition.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic(fmt.Sprintf("tools: duplicate registration of %q", t.Name()))
	}
	r.tools[t.Name()] = t
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns declarations for the model. When allowed is nil every
// registered tool is included; otherwise only names in allowed that are
// actually registered. Output is sorted by name so identical registries
// always produce identical declarations.
func (r *Registry) Describe(allowed []string) []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var selected []Tool
	if allowed == nil {
		for _, t := range r.tools {
			selected = append(selected, t)
		}
	} else {
		for _, name := range allowed {
			if t, ok := r.tools[name]; ok {
				selected = append(selected, t)
			}
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name() < selected[j].Name() })

	decls := make([]llm.Tool, 0, len(selected))
	for _, t := range selected {
		decls = append(decls, llm.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return decls
}

// Dispatch executes one model tool call. Unknown tools and panicking
// tools produce error Results rather than failing the interaction; the
// model reads the error and carries on. Every dispatch is logged with
// its duration.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (res Result) {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("model called unregistered tool", "tool", call.Name)
		return Errf("%s: %s", ErrUnknownTool, call.Name)
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				"tool", call.Name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			res = Errf("tool %s failed internally", call.Name)
		}
		r.logger.Info("tool dispatched",
			"tool", call.Name,
			"callID", call.ID,
			"error", res.Err(),
			"duration", time.Since(start),
		)
	}()

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return t.Call(ctx, args)
}

// StringArg reads a string argument, tolerating absent keys.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// IntArg reads an integer argument. Models send numbers as float64
// through JSON, so both encodings are accepted.
func IntArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/teamforge/crewbot/internal/llm"
)

type fakeTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) Result
}

func (f *fakeTool) Name() string                { return f.name }
func (f *fakeTool) Description() string         { return "fake " + f.name }
func (f *fakeTool) Parameters() map[string]any  { return noParams() }
func (f *fakeTool) Call(ctx context.Context, args map[string]any) Result {
	return f.fn(ctx, args)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryDescribe(t *testing.T) {
	r := NewRegistry(testLogger())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(&fakeTool{name: name, fn: func(context.Context, map[string]any) Result { return OK(nil) }})
	}

	all := r.Describe(nil)
	if len(all) != 3 {
		t.Fatalf("got %d decls, want 3", len(all))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if all[i].Name != want {
			t.Errorf("decl[%d] = %q, want %q (sorted)", i, all[i].Name, want)
		}
	}

	some := r.Describe([]string{"zeta", "alpha", "missing"})
	if len(some) != 2 || some[0].Name != "alpha" || some[1].Name != "zeta" {
		t.Errorf("filtered describe = %+v", some)
	}

	if got := r.Describe([]string{}); len(got) != 0 {
		t.Errorf("empty allowlist should yield no tools, got %d", len(got))
	}
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	res := r.Dispatch(context.Background(), llm.ToolCall{Name: "nope"})
	if !res.IsError() {
		t.Fatalf("expected error result, got %s", res.JSON())
	}
}

func TestRegistryDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeTool{name: "boom", fn: func(context.Context, map[string]any) Result {
		panic("kaboom")
	}})

	res := r.Dispatch(context.Background(), llm.ToolCall{Name: "boom"})
	if !res.IsError() {
		t.Fatalf("expected error result from panicking tool, got %s", res.JSON())
	}
}

func TestRegistryDispatchNilArgs(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeTool{name: "echo", fn: func(_ context.Context, args map[string]any) Result {
		if args == nil {
			t.Error("args should never be nil")
		}
		return OK(map[string]any{"ok": true})
	}})

	res := r.Dispatch(context.Background(), llm.ToolCall{Name: "echo"})
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.Err())
	}
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry(testLogger())
	mk := func() Tool {
		return &fakeTool{name: "dup", fn: func(context.Context, map[string]any) Result { return OK(nil) }}
	}
	r.Register(mk())

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register(mk())
}

func TestResultJSON(t *testing.T) {
	if got := Errf("bad %s", "thing").JSON(); got != `{"error":"bad thing"}` {
		t.Errorf("Errf JSON = %s", got)
	}
	r := OK(map[string]any{"b": 2, "a": 1})
	if got := r.JSON(); got != `{"a":1,"b":2}` {
		t.Errorf("OK JSON not deterministic: %s", got)
	}
	if r.IsError() {
		t.Error("OK result reported as error")
	}
}

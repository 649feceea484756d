package tools

import (
	"context"
	"strings"
	"testing"
)

func TestThinkHarderArmsLatchOnce(t *testing.T) {
	esc := &Escalation{}
	ctx := WithEnv(context.Background(), Env{Escalation: esc})
	tool := ThinkHarder{}

	res := tool.Call(ctx, map[string]any{"reason": "tricky concurrency bug"})
	if res.IsError() {
		t.Fatalf("first call rejected: %s", res.Err())
	}
	if !esc.Requested() {
		t.Fatal("latch not armed")
	}
	if esc.Reason() != "tricky concurrency bug" {
		t.Errorf("reason = %q", esc.Reason())
	}

	// A second call is rejected and does not re-arm or change the reason.
	res = tool.Call(ctx, map[string]any{"reason": "another reason"})
	if !res.IsError() || !strings.Contains(res.Err(), "suppressed") {
		t.Fatalf("duplicate call = %s, want suppression error", res.JSON())
	}
	if esc.Reason() != "tricky concurrency bug" {
		t.Errorf("reason changed by duplicate call: %q", esc.Reason())
	}
}

func TestThinkHarderRejectedInProMode(t *testing.T) {
	esc := &Escalation{}
	ctx := WithEnv(context.Background(), Env{Pro: true, Escalation: esc})

	res := ThinkHarder{}.Call(ctx, map[string]any{"reason": "x"})
	if !res.IsError() || !strings.Contains(res.Err(), "not available in pro mode") {
		t.Fatalf("got %s, want pro-mode rejection", res.JSON())
	}
	if esc.Requested() {
		t.Error("pro-mode call armed the latch")
	}
}

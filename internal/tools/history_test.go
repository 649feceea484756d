package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/discord"
)

type fakeHistory struct {
	msgs      []discord.Message
	lastLimit int
}

func (f *fakeHistory) ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]discord.Message, error) {
	f.lastLimit = limit
	return f.msgs, nil
}

func TestFetchMessages(t *testing.T) {
	hist := &fakeHistory{msgs: []discord.Message{
		{
			Author:    discord.User{Username: "ada"},
			Content:   "<@123> earlier question",
			Timestamp: "2026-08-28T10:00:00+00:00",
		},
	}}
	tool := &FetchMessages{History: hist}
	ctx := WithEnv(context.Background(), Env{Message: convo.ChannelMessage{ID: "m9", ChannelID: "c1"}})

	res := tool.Call(ctx, map[string]any{"count": float64(50)})
	if res.IsError() {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if hist.lastLimit != 20 {
		t.Errorf("limit = %d, want capped at 20", hist.lastLimit)
	}
	out := res.JSON()
	if !strings.Contains(out, "(@ada): earlier question") {
		t.Errorf("result missing formatted line: %s", out)
	}
	if strings.Contains(out, "<@123>") {
		t.Errorf("mention markup leaked: %s", out)
	}
}

func TestFetchMessagesDefaultCount(t *testing.T) {
	hist := &fakeHistory{}
	tool := &FetchMessages{History: hist}
	ctx := WithEnv(context.Background(), Env{Message: convo.ChannelMessage{ID: "m9", ChannelID: "c1"}})

	if res := tool.Call(ctx, nil); res.IsError() {
		t.Fatalf("unexpected error: %v", res.Err())
	}
	if hist.lastLimit != 10 {
		t.Errorf("limit = %d, want default 10", hist.lastLimit)
	}
}

func TestFetchMessagesNoChannel(t *testing.T) {
	tool := &FetchMessages{History: &fakeHistory{}}
	res := tool.Call(context.Background(), nil)
	if !res.IsError() {
		t.Fatal("expected error outside a channel context")
	}
}

package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/teamforge/crewbot/internal/discord"
	"github.com/teamforge/crewbot/internal/llm"
)

type fakeMessenger struct {
	history []discord.Message
	sent    []sentMessage
	typing  int
}

type sentMessage struct {
	channelID string
	content   string
	replyTo   string
	files     []discord.File
}

func (f *fakeMessenger) ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]discord.Message, error) {
	return f.history, nil
}

func (f *fakeMessenger) CreateMessage(ctx context.Context, channelID, content, replyToID string, files []discord.File) (*discord.Message, error) {
	f.sent = append(f.sent, sentMessage{channelID: channelID, content: content, replyTo: replyToID, files: files})
	return &discord.Message{ID: "sent"}, nil
}

func (f *fakeMessenger) TriggerTyping(ctx context.Context, channelID string) error {
	f.typing++
	return nil
}

func mentionMessage(botID string) discord.Message {
	return discord.Message{
		ID:        "m1",
		ChannelID: "chan",
		GuildID:   "guild",
		Author:    discord.User{ID: "u1", Username: "alice"},
		Content:   "<@" + botID + "> when do we meet?",
		Timestamp: "2026-08-28T10:00:00+00:00",
		Mentions:  []discord.User{{ID: botID}},
	}
}

func newTestHandler(t *testing.T, client llm.Client, rest Messenger) *Handler {
	t.Helper()
	loop := newTestLoop(t, client)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(rest, loop, "guild", 5, func() string { return "900" }, logger)
}

func TestHandleMessageRepliesToMention(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		say("Thursday at 18:00."),
	}}
	rest := &fakeMessenger{history: []discord.Message{
		{ID: "m0", Author: discord.User{ID: "u2", Username: "bob"}, Content: "anyone know?", Timestamp: "2026-08-28T09:59:00+00:00"},
	}}
	h := newTestHandler(t, client, rest)

	h.HandleMessage(context.Background(), mentionMessage("900"))

	if rest.typing != 1 {
		t.Errorf("typing calls = %d, want 1", rest.typing)
	}
	if len(rest.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rest.sent))
	}
	got := rest.sent[0]
	if got.content != "Thursday at 18:00." || got.replyTo != "m1" || got.channelID != "chan" {
		t.Errorf("sent = %+v", got)
	}

	// History made it into the transcript.
	transcript := client.calls[0].messages
	found := false
	for _, m := range transcript {
		if strings.Contains(m.Content, "anyone know?") {
			found = true
		}
	}
	if !found {
		t.Error("channel history missing from transcript")
	}
}

func TestHandleMessageIgnoresNonMentions(t *testing.T) {
	client := &scriptedClient{}
	rest := &fakeMessenger{}
	h := newTestHandler(t, client, rest)

	msg := mentionMessage("900")
	msg.Mentions = nil
	h.HandleMessage(context.Background(), msg)

	if len(client.calls) != 0 || len(rest.sent) != 0 {
		t.Error("non-mention triggered a run")
	}
}

func TestHandleMessageIgnoresBots(t *testing.T) {
	client := &scriptedClient{}
	rest := &fakeMessenger{}
	h := newTestHandler(t, client, rest)

	msg := mentionMessage("900")
	msg.Author.Bot = true
	h.HandleMessage(context.Background(), msg)

	if len(rest.sent) != 0 {
		t.Error("bot-authored message triggered a run")
	}
}

func TestHandleMessageIgnoresOtherGuilds(t *testing.T) {
	client := &scriptedClient{}
	rest := &fakeMessenger{}
	h := newTestHandler(t, client, rest)

	msg := mentionMessage("900")
	msg.GuildID = "elsewhere"
	h.HandleMessage(context.Background(), msg)

	if len(rest.sent) != 0 {
		t.Error("foreign-guild message triggered a run")
	}
}

func TestHandleMessageEscalationEndToEnd(t *testing.T) {
	client := &scriptedClient{responses: []func(chatCall) (*llm.ChatResponse, error){
		callTool("think_harder", map[string]any{"reason": "code review"}),
		say("Here is a careful review of the code."),
	}}
	rest := &fakeMessenger{}
	h := newTestHandler(t, client, rest)

	h.HandleMessage(context.Background(), mentionMessage("900"))

	if len(rest.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(rest.sent))
	}
	if rest.sent[0].content != "Here is a careful review of the code." {
		t.Errorf("content = %q", rest.sent[0].content)
	}
	if client.calls[1].model != "pro-model" {
		t.Errorf("escalation did not reach the pro model")
	}
}

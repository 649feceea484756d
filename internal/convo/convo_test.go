package convo

import (
	"strings"
	"testing"
	"time"
)

func TestCleanContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain mention", "<@123456> hello", "hello"},
		{"nickname mention", "<@!987> hey there", "hey there"},
		{"mid-sentence mention", "ask <@42> about it", "ask about it"},
		{"whitespace collapse", "a   b\n\tc", "a b c"},
		{"no mention", "just text", "just text"},
		{"only mention", "<@1>", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanContent(tt.in)
			if got != tt.want {
				t.Errorf("CleanContent(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Cleaning must be idempotent.
			if again := CleanContent(got); again != got {
				t.Errorf("not idempotent: CleanContent(%q) = %q", got, again)
			}
		})
	}
}

func TestBuildTranscript(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	history := []ChannelMessage{
		{ID: "1", AuthorName: "alice", AuthorDisplay: "Alice", Content: "when is the next meeting?", Timestamp: ts},
		{ID: "2", AuthorName: "crewbot", Bot: true, Content: "Thursday at 18:00.", Timestamp: ts.Add(time.Minute)},
		{ID: "3", AuthorName: "bob", AuthorDisplay: "Bob", Content: "thanks <@900>!", Timestamp: ts.Add(2 * time.Minute)},
	}
	current := ChannelMessage{
		ID:            "4",
		AuthorName:    "alice",
		AuthorDisplay: "Alice",
		Content:       "<@900> can you review this?",
		Timestamp:     ts.Add(3 * time.Minute),
		ReplyToAuthor: "Bob",
		ReplyToText:   "thanks <@900>!",
		Attachments: []Attachment{
			{ID: "a1", Filename: "main.go", ContentType: "text/plain", Size: 512},
		},
	}

	b := &Builder{HistoryDepth: 5}
	msgs := b.Build("SYSTEM", history, current)

	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "SYSTEM" {
		t.Errorf("first turn = %+v, want system turn", msgs[0])
	}
	if msgs[1].Role != "user" || !strings.Contains(msgs[1].Content, "Alice (@alice)") {
		t.Errorf("history turn missing attribution: %q", msgs[1].Content)
	}
	if msgs[2].Role != "assistant" || msgs[2].Content != "Thursday at 18:00." {
		t.Errorf("bot history turn = %+v, want plain assistant turn", msgs[2])
	}
	if strings.Contains(msgs[3].Content, "<@") {
		t.Errorf("mention markup leaked into history turn: %q", msgs[3].Content)
	}

	final := msgs[4]
	if final.Role != "user" {
		t.Fatalf("final turn role = %q, want user", final.Role)
	}
	for _, want := range []string{
		"can you review this?",
		"(message id: 4)",
		"(in reply to Bob: thanks !)",
		"(attached file: main.go, text/plain, 512 bytes)",
	} {
		if !strings.Contains(final.Content, want) {
			t.Errorf("final turn missing %q:\n%s", want, final.Content)
		}
	}
	if strings.Contains(final.Content, "<@") {
		t.Errorf("mention markup leaked into final turn: %q", final.Content)
	}
}

func TestBuildTranscriptOmitsBlankTurns(t *testing.T) {
	ts := time.Now()
	history := []ChannelMessage{
		{ID: "1", AuthorName: "alice", Content: "<@900>", Timestamp: ts},
		{ID: "2", AuthorName: "crewbot", Bot: true, Content: "  ", Timestamp: ts},
		{ID: "3", AuthorName: "bob", Content: "real question", Timestamp: ts},
	}
	current := ChannelMessage{ID: "4", AuthorName: "alice", Content: "hi", Timestamp: ts}

	b := &Builder{HistoryDepth: 5}
	msgs := b.Build("S", history, current)

	// system + the one non-empty history message + current
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(msgs), msgs)
	}
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			t.Errorf("blank turn in transcript: %+v", m)
		}
	}
}

func TestBuildTranscriptHistoryDepth(t *testing.T) {
	ts := time.Now()
	var history []ChannelMessage
	for i := 0; i < 10; i++ {
		history = append(history, ChannelMessage{
			ID: string(rune('a' + i)), AuthorName: "u", Content: "msg", Timestamp: ts,
		})
	}
	current := ChannelMessage{ID: "z", AuthorName: "u", Content: "hi", Timestamp: ts}

	b := &Builder{HistoryDepth: 3}
	msgs := b.Build("S", history, current)

	// system + 3 history + current
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
}

func TestBuildTranscriptExcludesCurrentFromHistory(t *testing.T) {
	ts := time.Now()
	current := ChannelMessage{ID: "7", AuthorName: "u", Content: "hi", Timestamp: ts}
	history := []ChannelMessage{current}

	b := &Builder{HistoryDepth: 5}
	msgs := b.Build("S", history, current)

	if len(msgs) != 2 {
		t.Fatalf("triggering message duplicated in history: %d turns", len(msgs))
	}
}

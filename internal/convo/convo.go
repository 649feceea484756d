// Package convo turns raw channel messages into model transcripts.
package convo

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teamforge/crewbot/internal/llm"
)

// Attachment is the metadata of a file attached to a channel message.
// Content is never inlined into the transcript; the model fetches it on
// demand through the read_attachment_file tool.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	URL         string
	Size        int
}

// ChannelMessage is one message as seen by the transcript builder,
// decoupled from any particular chat platform's wire types.
type ChannelMessage struct {
	ID            string
	ChannelID     string
	AuthorID      string
	AuthorName    string // account name, stable
	AuthorDisplay string // server nickname, may change
	Bot           bool   // authored by crewbot itself
	Content       string
	Timestamp     time.Time
	Attachments   []Attachment

	// ReplyToAuthor and ReplyToText describe the message this one replies
	// to, when the platform provides it. Empty otherwise.
	ReplyToAuthor string
	ReplyToText   string
}

var mentionPattern = regexp.MustCompile(`<@!?\d+>`)

// CleanContent strips user mention markup and collapses runs of
// whitespace to single spaces. Applying it twice yields the same result,
// so callers need not track whether a message was already cleaned.
func CleanContent(s string) string {
	s = mentionPattern.ReplaceAllString(s, "")
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Builder assembles model transcripts from channel context.
type Builder struct {
	// HistoryDepth caps how many prior messages are included.
	HistoryDepth int
}

// historyLine formats one non-bot message for the transcript. The prefix
// lets the model attribute statements to speakers; the system prompt
// tells it not to echo the prefix back.
func historyLine(m ChannelMessage) string {
	display := m.AuthorDisplay
	if display == "" {
		display = m.AuthorName
	}
	return fmt.Sprintf("[%s] %s (@%s): %s",
		m.Timestamp.UTC().Format("2006-01-02 15:04"),
		display, m.AuthorName, CleanContent(m.Content))
}

// Build produces the full message list for a model call: one system
// turn, the recent history, and the triggering message as the final user
// turn. Bot-authored history becomes assistant turns with bare content;
// everything else becomes attributed user turns.
func (b *Builder) Build(system string, history []ChannelMessage, current ChannelMessage) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: system}}

	h := history
	if b.HistoryDepth > 0 && len(h) > b.HistoryDepth {
		h = h[len(h)-b.HistoryDepth:]
	}
	for _, m := range h {
		if m.ID == current.ID {
			continue
		}
		// Messages that clean to nothing (a bare mention, say) carry no
		// signal and must not leave a blank turn behind.
		if CleanContent(m.Content) == "" && len(m.Attachments) == 0 {
			continue
		}
		if m.Bot {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: CleanContent(m.Content)})
		} else {
			msgs = append(msgs, llm.Message{Role: "user", Content: historyLine(m)})
		}
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: b.currentTurn(current)})
	return msgs
}

// currentTurn formats the triggering message. It carries extra machine
// context the history lines omit: the message ID (so tools can reference
// it), the reply target, and attachment metadata.
func (b *Builder) currentTurn(m ChannelMessage) string {
	var sb strings.Builder
	sb.WriteString(historyLine(m))
	fmt.Fprintf(&sb, "\n(message id: %s)", m.ID)

	if m.ReplyToAuthor != "" || m.ReplyToText != "" {
		text := CleanContent(m.ReplyToText)
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		fmt.Fprintf(&sb, "\n(in reply to %s: %s)", m.ReplyToAuthor, text)
	}

	for _, a := range m.Attachments {
		fmt.Fprintf(&sb, "\n(attached file: %s, %s, %d bytes)", a.Filename, a.ContentType, a.Size)
	}
	return sb.String()
}

// Package prompts assembles the system prompts for both model tiers.
package prompts

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// defaultPersona is used when no persona file is configured. Deployments
// normally ship their own persona file with server-specific lore.
const defaultPersona = `You are Crew, the team assistant for a student robotics community server.
You are friendly, concise, and practical. You answer questions about the team's
schedule, meetings, and notes, and you help members with their code.

Speak casually but stay on topic. Do not invent schedule entries, meeting
notes, or facts about members; when a tool returns no data, say so plainly.`

const toolGuidance = `
You have tools available. Use them when the question needs live data
(schedules, meetings, notes, attachments) instead of guessing.

When a question is genuinely difficult (multi-step reasoning, code review,
debugging, design tradeoffs), call the think_harder tool once with a short
reason. A stronger model will take over the conversation.

Keep replies under the chat message limit. If you produce a large block of
code, call upload_code_file so it is delivered as a file attachment instead
of flooding the channel.`

const proGuidance = `
You are the escalation tier: a lighter model judged this question hard and
handed it to you. Think carefully and answer thoroughly. Do not call
think_harder; there is no higher tier.`

// Library builds system prompts, optionally from a persona file on disk.
type Library struct {
	persona string
}

// NewLibrary creates a prompt library. If personaFile is non-empty, it is
// read at startup and replaces the built-in persona; a read failure is
// returned rather than silently falling back.
func NewLibrary(personaFile string) (*Library, error) {
	persona := defaultPersona
	if personaFile != "" {
		data, err := os.ReadFile(personaFile)
		if err != nil {
			return nil, fmt.Errorf("read persona file: %w", err)
		}
		persona = strings.TrimSpace(string(data))
		if persona == "" {
			return nil, fmt.Errorf("persona file %s is empty", personaFile)
		}
	}
	return &Library{persona: persona}, nil
}

// System returns the full system prompt for one tier. The current time is
// embedded so the model can resolve relative dates ("today", "next week")
// without a tool round.
func (l *Library) System(pro bool, now time.Time) string {
	var b strings.Builder
	b.WriteString(l.persona)
	b.WriteString("\n")
	b.WriteString(toolGuidance)
	if pro {
		b.WriteString("\n")
		b.WriteString(proGuidance)
	}
	fmt.Fprintf(&b, "\n\nCurrent date and time: %s.\n", now.Format("Monday, January 2 2006, 15:04 MST"))
	b.WriteString("Messages in the conversation are prefixed with their timestamp and author; do not copy that prefix into your replies.")
	return b.String()
}

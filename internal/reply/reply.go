// Package reply post-processes model output into channel-ready text.
package reply

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagPattern   = regexp.MustCompile(`(?s)<tool_call>.*?</tool_call>|<function_call>.*?</function_call>`)
	openTag      = regexp.MustCompile(`<([a-zA-Z_][a-zA-Z0-9_]*)>`)
	blankPattern = regexp.MustCompile(`\n{3,}`)
)

// Clean removes tool-call debris the model left in its prose and
// normalizes whitespace. Some models echo their tool calls as text
// (tagged blocks, tool-name tags around the payload, or bare JSON
// objects) even after the call executed; none of that belongs in a
// channel message.
func Clean(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = stripTaggedCalls(s)
	s = stripToolJSON(s)
	s = blankPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripTaggedCalls removes the <toolname>{...}</toolname> echo form: an
// identifier tag immediately followed by a brace-balanced JSON payload,
// with or without the closing tag. Tags not followed by JSON stay, so
// angle-bracket prose survives.
func stripTaggedCalls(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		loc := openTag.FindStringSubmatchIndex(s[i:])
		if loc == nil {
			b.WriteString(s[i:])
			break
		}
		tagStart, tagEnd := i+loc[0], i+loc[1]
		name := s[i+loc[2] : i+loc[3]]
		b.WriteString(s[i:tagStart])

		j := skipSpace(s, tagEnd)
		if j >= len(s) || s[j] != '{' {
			b.WriteString(s[tagStart:tagEnd])
			i = tagEnd
			continue
		}
		end := matchBrace(s, j)
		if end < 0 {
			b.WriteString(s[tagStart:tagEnd])
			i = tagEnd
			continue
		}
		i = end + 1
		if k := skipSpace(s, i); strings.HasPrefix(s[k:], "</"+name+">") {
			i = k + len(name) + 3
		}
	}
	return b.String()
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// stripToolJSON removes top-level JSON objects that parse as tool calls
// ({"name": ..., "arguments"/"parameters": ...}). Brace matching tracks
// string literals and escapes, so code samples containing braces inside
// quoted strings survive intact.
func stripToolJSON(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '{' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		candidate := s[i : end+1]
		if isToolCallJSON(candidate) {
			i = end + 1
			continue
		}
		b.WriteString(candidate)
		i = end + 1
	}
	return b.String()
}

// matchBrace returns the index of the brace closing the one at start,
// or -1 if the object never closes.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++ // skip the escaped character
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isToolCallJSON(s string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return false
	}
	if _, ok := obj["name"]; !ok {
		return false
	}
	if _, ok := obj["arguments"]; ok {
		return true
	}
	_, ok := obj["parameters"]
	return ok
}

// breakWindow is how far back from the limit Truncate will look for a
// natural break before giving up and cutting mid-sentence.
const breakWindow = 200

// Truncate shortens s to at most limit bytes, preferring to cut at a
// newline or sentence end within the trailing window. A cut at a
// natural break ends cleanly there; only a hard mid-text cut gets an
// ellipsis. Never splits a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	window := s[:limit]
	if i := strings.LastIndexByte(window, '\n'); i >= limit-breakWindow {
		return strings.TrimRight(s[:i], " \n")
	}
	if i := strings.LastIndex(window, ". "); i >= limit-breakWindow {
		return s[:i+1]
	}

	const ellipsis = "…"
	max := limit - len(ellipsis)
	if max <= 0 {
		return ellipsis
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \n") + ellipsis
}

// Chunk splits s into pieces of at most size bytes for platforms with a
// hard per-message cap, breaking at newlines where possible.
func Chunk(s string, size int) []string {
	if s == "" {
		return nil
	}
	var chunks []string
	for len(s) > size {
		cut := size
		if i := strings.LastIndexByte(s[:size], '\n'); i > size/2 {
			cut = i + 1
		} else {
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimRight(s[:cut], "\n"))
		s = s[cut:]
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// Finalize cleans and truncates model output. An empty string after
// cleaning means the model produced nothing usable; callers substitute
// their fallback message.
func Finalize(s string, limit int) string {
	return Truncate(Clean(s), limit)
}

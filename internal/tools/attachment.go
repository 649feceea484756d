package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/httpkit"
)

// ReadAttachment fetches the text content of a file attached to the
// triggering message. Files over the size ceiling or outside the text
// content types are rejected outright, before any download.
type ReadAttachment struct {
	client   *http.Client
	maxBytes int
}

// NewReadAttachment creates the read_attachment_file tool. maxBytes
// caps how much of the file is downloaded and returned.
func NewReadAttachment(maxBytes int) *ReadAttachment {
	return &ReadAttachment{
		client:   httpkit.NewClient(httpkit.WithTimeout(20 * time.Second)),
		maxBytes: maxBytes,
	}
}

func (t *ReadAttachment) Name() string { return "read_attachment_file" }

func (t *ReadAttachment) Description() string {
	return fmt.Sprintf("Read the text content of a file attached to the current message. Text files only, at most %d bytes.", t.maxBytes)
}

func (t *ReadAttachment) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{
				"type":        "string",
				"description": "Name of the attached file, exactly as listed in the message.",
			},
		},
		"required": []string{"filename"},
	}
}

func (t *ReadAttachment) Call(ctx context.Context, args map[string]any) Result {
	filename := StringArg(args, "filename")
	if filename == "" {
		return Errf("filename is required")
	}

	env := EnvFrom(ctx)
	var att *convo.Attachment
	for i := range env.Message.Attachments {
		if env.Message.Attachments[i].Filename == filename {
			att = &env.Message.Attachments[i]
			break
		}
	}
	if att == nil {
		names := make([]string, 0, len(env.Message.Attachments))
		for _, a := range env.Message.Attachments {
			names = append(names, a.Filename)
		}
		return Errf("no attachment named %q on this message (have: %v)", filename, names)
	}

	if att.Size > t.maxBytes {
		return Errf("attachment %q is %d bytes, over the %d byte limit", filename, att.Size, t.maxBytes)
	}
	if !readableContentType(att.ContentType) {
		return Errf("attachment %q (%s) is not a readable text file", filename, att.ContentType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return Errf("fetch attachment: %v", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return Errf("fetch attachment: %v", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return Errf("fetch attachment: status %d", resp.StatusCode)
	}

	// Read one extra byte to catch a body larger than the declared size.
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)+1))
	if err != nil {
		return Errf("read attachment: %v", err)
	}
	if len(data) > t.maxBytes {
		return Errf("attachment %q is over the %d byte limit", filename, t.maxBytes)
	}
	if !utf8.Valid(data) {
		return Errf("attachment %q is not a text file", filename)
	}

	return OK(map[string]any{
		"filename": filename,
		"content":  string(data),
	})
}

// readableContentType reports whether the declared content type is text
// the model can use. An empty declaration falls through to the UTF-8
// check on the bytes themselves.
func readableContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	switch ct {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/yaml", "application/x-sh":
		return true
	}
	return false
}

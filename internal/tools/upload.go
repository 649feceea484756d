package tools

import (
	"context"
	"path/filepath"
	"strings"
)

// codeMarkers are cheap signals that content is actually source code.
// Upload requests lacking all of them are prose the model should have
// put in the reply instead.
var codeMarkers = []string{
	"class ", "public ", "private ", ";", "{", "}",
	"def ", "import ", "package ", "func ",
}

// UploadCodeFile stages a source file for delivery alongside the reply,
// for code too long to post inline. Heavily gated: models love using it
// for three-line snippets.
type UploadCodeFile struct {
	MinChars int
	MinLines int
}

func (t *UploadCodeFile) Name() string { return "upload_code_file" }

func (t *UploadCodeFile) Description() string {
	return "Attach a complete source code file to your reply. Only for long code; short snippets belong in the reply text as a fenced code block."
}

func (t *UploadCodeFile) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{
				"type":        "string",
				"description": "File name with a source-code extension, e.g. drivetrain.py.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The complete file content.",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Language of the content, e.g. \"python\" or \"java\".",
			},
		},
		"required": []string{"filename", "content", "language"},
	}
}

func (t *UploadCodeFile) Call(ctx context.Context, args map[string]any) Result {
	env := EnvFrom(ctx)
	if !env.Pro {
		return Errf("upload_code_file is not available on this tier; put the code in your reply, or call think_harder if the task warrants it")
	}
	if env.Uploads == nil {
		return Errf("file uploads are not available here")
	}
	if env.Uploads.Count() >= 1 {
		return Errf("only one file may be attached per reply")
	}

	filename := strings.TrimSpace(StringArg(args, "filename"))
	content := StringArg(args, "content")
	if filename == "" || content == "" {
		return Errf("filename and content are required")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown", ".txt":
		return Errf("%s is not a code file; write that content in your reply instead", filename)
	}
	switch strings.ToLower(strings.TrimSpace(StringArg(args, "language"))) {
	case "markdown", "md", "text", "txt", "plaintext":
		return Errf("that content is prose, not code; write it in your reply instead")
	}

	lines := strings.Count(content, "\n") + 1
	if len(content) < t.MinChars && lines < t.MinLines {
		return Errf("content is too short for a file (%d chars, %d lines); put it in your reply as a fenced code block", len(content), lines)
	}

	if !looksLikeCode(content) {
		return Errf("content does not look like source code; put it in your reply instead")
	}

	if !env.Uploads.Add(filename, []byte(content)) {
		return OK(map[string]any{"status": "already staged", "filename": filename})
	}
	return OK(map[string]any{"status": "staged", "filename": filename, "bytes": len(content)})
}

func looksLikeCode(content string) bool {
	if strings.HasPrefix(strings.TrimSpace(content), "```") {
		return true
	}
	for _, marker := range codeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

package tools

import (
	"context"
	"strings"
	"testing"
)

func uploadCtx(pro bool, uploads *Uploads) context.Context {
	return WithEnv(context.Background(), Env{Pro: pro, Uploads: uploads})
}

// longCode builds content that passes the size and code-marker gates.
func longCode(lines int) string {
	var b strings.Builder
	b.WriteString("package main\n")
	for i := 1; i < lines; i++ {
		b.WriteString("func x() { return }\n")
	}
	return b.String()
}

func TestUploadCodeFileGating(t *testing.T) {
	tool := &UploadCodeFile{MinChars: 2000, MinLines: 100}

	tests := []struct {
		name     string
		pro      bool
		filename string
		content  string
		language string
		wantErr  string
	}{
		{
			name: "blocked on lite tier",
			pro:  false, filename: "a.go", content: longCode(150),
			wantErr: "not available on this tier",
		},
		{
			name: "markdown rejected",
			pro:  true, filename: "notes.md", content: longCode(150),
			wantErr: "not a code file",
		},
		{
			name: "txt rejected",
			pro:  true, filename: "dump.TXT", content: longCode(150),
			wantErr: "not a code file",
		},
		{
			name: "markdown language rejected despite code extension",
			pro:  true, filename: "a.go", content: longCode(150),
			language: "markdown",
			wantErr:  "prose, not code",
		},
		{
			name: "declared language passes",
			pro:  true, filename: "d.java", content: longCode(150),
			language: "java",
		},
		{
			name: "too short rejected",
			pro:  true, filename: "a.go", content: "package main\n",
			wantErr: "too short",
		},
		{
			name: "prose rejected",
			pro:  true, filename: "a.go",
			content: strings.Repeat("just some words without any markers\n", 120),
			wantErr: "does not look like source code",
		},
		{
			name: "long enough by lines alone",
			pro:  true, filename: "a.py",
			content: strings.Repeat("import os\n", 120), // short chars, many lines
		},
		{
			name: "long enough by chars alone",
			pro:  true, filename: "b.java",
			content: "public class A {" + strings.Repeat(" int v = 1;", 300) + "}",
		},
		{
			name: "fenced block accepted as code",
			pro:  true, filename: "c.sh",
			content: "```\n" + strings.Repeat("echo hello there world now\n", 120),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads := NewUploads()
			args := map[string]any{
				"filename": tt.filename,
				"content":  tt.content,
			}
			if tt.language != "" {
				args["language"] = tt.language
			}
			res := tool.Call(uploadCtx(tt.pro, uploads), args)
			if tt.wantErr != "" {
				if !res.IsError() || !strings.Contains(res.Err(), tt.wantErr) {
					t.Fatalf("got %s, want error containing %q", res.JSON(), tt.wantErr)
				}
				if uploads.Count() != 0 {
					t.Error("rejected upload was staged anyway")
				}
				return
			}
			if res.IsError() {
				t.Fatalf("unexpected rejection: %s", res.Err())
			}
			if uploads.Count() != 1 {
				t.Fatalf("staged %d files, want 1", uploads.Count())
			}
		})
	}
}

func TestUploadCodeFileOnePerReply(t *testing.T) {
	tool := &UploadCodeFile{MinChars: 2000, MinLines: 100}
	uploads := NewUploads()
	ctx := uploadCtx(true, uploads)

	if res := tool.Call(ctx, map[string]any{"filename": "a.go", "content": longCode(150)}); res.IsError() {
		t.Fatalf("first upload rejected: %s", res.Err())
	}
	res := tool.Call(ctx, map[string]any{"filename": "b.go", "content": longCode(160)})
	if !res.IsError() || !strings.Contains(res.Err(), "one file") {
		t.Fatalf("second upload should hit the per-reply limit, got %s", res.JSON())
	}
	if uploads.Count() != 1 {
		t.Errorf("staged %d files, want 1", uploads.Count())
	}
}

func TestUploadsDeduplicate(t *testing.T) {
	u := NewUploads()
	if !u.Add("a.go", []byte("content")) {
		t.Fatal("first add rejected")
	}
	if u.Add("a.go", []byte("content")) {
		t.Error("identical file staged twice")
	}
	if !u.Add("a.go", []byte("different")) {
		t.Error("same name with different content should stage")
	}
	if !u.Add("b.go", []byte("content")) {
		t.Error("same content under different name should stage")
	}
	if u.Count() != 3 {
		t.Errorf("count = %d, want 3", u.Count())
	}
}

package tools

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of one tool call. It is a flat JSON object sent
// back to the model verbatim; tools put their payload at the top level
// rather than nesting under a wrapper key, which smaller models handle
// noticeably better.
type Result struct {
	fields map[string]any
}

// OK wraps a payload map as a successful result. The map is used as-is.
func OK(fields map[string]any) Result {
	if fields == nil {
		fields = map[string]any{}
	}
	return Result{fields: fields}
}

// Text is a successful result carrying a single text payload.
func Text(s string) Result {
	return OK(map[string]any{"output": s})
}

// Errf builds an error result. The model sees {"error": "..."} and is
// expected to recover or tell the user; it never aborts the run.
func Errf(format string, args ...any) Result {
	return Result{fields: map[string]any{"error": fmt.Sprintf(format, args...)}}
}

// IsError reports whether the result carries an error key.
func (r Result) IsError() bool {
	_, ok := r.fields["error"]
	return ok
}

// Err returns the error message, or "" for successful results.
func (r Result) Err() string {
	s, _ := r.fields["error"].(string)
	return s
}

// String returns the string value under key, or "".
func (r Result) String(key string) string {
	s, _ := r.fields[key].(string)
	return s
}

// Bool returns the bool value under key, or false.
func (r Result) Bool(key string) bool {
	b, _ := r.fields[key].(bool)
	return b
}

// JSON serializes the result for the model. Map keys are emitted in
// sorted order, so the encoding is deterministic.
func (r Result) JSON() string {
	b, err := json.Marshal(r.fields)
	if err != nil {
		// Only reachable if a tool put an unmarshalable value in its
		// payload. Degrade to an error the model can read.
		return fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, err)
	}
	return string(b)
}

package discord

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChannelMessagesChronologicalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bot tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		// API order: newest first.
		json.NewEncoder(w).Encode([]Message{{ID: "3"}, {ID: "2"}, {ID: "1"}})
	}))
	defer srv.Close()

	c := NewRestClient(srv.URL, "tok", testLogger())
	msgs, err := c.ChannelMessages(context.Background(), "chan", "", 5)
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "1" || msgs[2].ID != "3" {
		t.Errorf("order = %v, want oldest first", []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	}
}

func TestCreateMessagePlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var payload createMessagePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.Content != "hello" {
			t.Errorf("content = %q", payload.Content)
		}
		if payload.MessageReference == nil || payload.MessageReference.MessageID != "m9" {
			t.Errorf("reference = %+v", payload.MessageReference)
		}
		json.NewEncoder(w).Encode(Message{ID: "new"})
	}))
	defer srv.Close()

	c := NewRestClient(srv.URL, "tok", testLogger())
	msg, err := c.CreateMessage(context.Background(), "chan", "hello", "m9", nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.ID != "new" {
		t.Errorf("ID = %q", msg.ID)
	}
}

func TestCreateMessageWithFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		var payload createMessagePayload
		if err := json.Unmarshal([]byte(r.FormValue("payload_json")), &payload); err != nil {
			t.Fatalf("payload_json: %v", err)
		}
		if payload.Content != "see attached" {
			t.Errorf("content = %q", payload.Content)
		}

		f, hdr, err := r.FormFile("files[0]")
		if err != nil {
			t.Fatalf("files[0]: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "main.py" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if !strings.Contains(string(data), "def main") {
			t.Errorf("file content = %q", data)
		}
		json.NewEncoder(w).Encode(Message{ID: "new"})
	}))
	defer srv.Close()

	c := NewRestClient(srv.URL, "tok", testLogger())
	_, err := c.CreateMessage(context.Background(), "chan", "see attached", "",
		[]File{{Name: "main.py", Content: []byte("def main():\n    pass\n")}})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Message{ID: "ok"})
	}))
	defer srv.Close()

	c := NewRestClient(srv.URL, "tok", testLogger())
	msg, err := c.CreateMessage(context.Background(), "chan", "hi", "", nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msg.ID != "ok" || attempts != 2 {
		t.Errorf("msg = %+v after %d attempts", msg, attempts)
	}
}

func TestMessageHelpers(t *testing.T) {
	m := Message{
		Author:    User{ID: "1", Username: "alice", GlobalName: "Alice G"},
		Member:    &Member{Nick: "Allie"},
		Timestamp: "2026-08-28T10:00:00.000000+00:00",
		Mentions:  []User{{ID: "900"}},
	}
	if got := m.DisplayName(); got != "Allie" {
		t.Errorf("DisplayName = %q", got)
	}
	m.Member = nil
	if got := m.DisplayName(); got != "Alice G" {
		t.Errorf("DisplayName = %q", got)
	}
	if m.Time().IsZero() {
		t.Error("Time failed to parse ISO timestamp")
	}
	if !m.MentionsUser("900") || m.MentionsUser("901") {
		t.Error("MentionsUser mismatch")
	}
}

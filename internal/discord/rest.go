package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/teamforge/crewbot/internal/httpkit"
)

const defaultAPIBase = "https://discord.com/api/v10"

// RestClient talks to the Discord REST API with bot authentication.
type RestClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRestClient creates a REST client. baseURL may be empty for the
// public API; tests point it at a local server.
func NewRestClient(baseURL, token string, logger *slog.Logger) *RestClient {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RestClient{
		baseURL: baseURL,
		token:   token,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// do performs one API request. body is kept as bytes so the rate-limit
// retry can resend it.
func (c *RestClient) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Respect the bucket and retry once. The shared transport does
		// not retry on HTTP statuses, only connection errors.
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		httpkit.DrainAndClose(resp.Body, 4096)
		c.logger.Warn("discord rate limited", "path", path, "retryAfter", retryAfter)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
		return c.do(ctx, method, path, body, contentType, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody := httpkit.ReadErrorBody(resp.Body, 2048)
		return fmt.Errorf("discord: %s %s: status %d: %s", method, path, resp.StatusCode, errBody)
	}

	if out == nil {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("discord: decode %s response: %w", path, err)
	}
	return nil
}

func parseRetryAfter(s string) time.Duration {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs * float64(time.Second))
}

// Me returns the bot's own user.
func (c *RestClient) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/users/@me", nil, "", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChannelMessages returns up to limit messages before the given message
// ID (or the newest messages when beforeID is empty), oldest first.
func (c *RestClient) ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if beforeID != "" {
		q.Set("before", beforeID)
	}
	var msgs []Message
	path := fmt.Sprintf("/channels/%s/messages?%s", channelID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, "", &msgs); err != nil {
		return nil, err
	}
	// The API returns newest first; flip to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

type messageReference struct {
	MessageID string `json:"message_id"`
}

type createMessagePayload struct {
	Content          string            `json:"content"`
	MessageReference *messageReference `json:"message_reference,omitempty"`
}

// CreateMessage posts a message, optionally as a reply and with file
// attachments. Files switch the request to multipart per the API.
func (c *RestClient) CreateMessage(ctx context.Context, channelID, content, replyToID string, files []File) (*Message, error) {
	payload := createMessagePayload{Content: content}
	if replyToID != "" {
		payload.MessageReference = &messageReference{MessageID: replyToID}
	}

	path := fmt.Sprintf("/channels/%s/messages", channelID)
	var msg Message

	if len(files) == 0 {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("discord: marshal message: %w", err)
		}
		if err := c.do(ctx, http.MethodPost, path, body, "application/json", &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	jsonPart, err := w.CreateFormField("payload_json")
	if err != nil {
		return nil, fmt.Errorf("discord: multipart: %w", err)
	}
	if err := json.NewEncoder(jsonPart).Encode(payload); err != nil {
		return nil, fmt.Errorf("discord: multipart: %w", err)
	}

	for i, f := range files {
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), f.Name)
		if err != nil {
			return nil, fmt.Errorf("discord: multipart: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, fmt.Errorf("discord: multipart: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("discord: multipart: %w", err)
	}

	if err := c.do(ctx, http.MethodPost, path, buf.Bytes(), w.FormDataContentType(), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TriggerTyping shows the typing indicator in a channel. Best effort;
// failures are logged and ignored by callers.
func (c *RestClient) TriggerTyping(ctx context.Context, channelID string) error {
	path := fmt.Sprintf("/channels/%s/typing", channelID)
	return c.do(ctx, http.MethodPost, path, nil, "", nil)
}

// AddMemberRole grants a role to a guild member.
func (c *RestClient) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	return c.do(ctx, http.MethodPut, path, nil, "", nil)
}

// SetNickname changes a guild member's server nickname.
func (c *RestClient) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	body, err := json.Marshal(map[string]string{"nick": nick})
	if err != nil {
		return fmt.Errorf("discord: marshal nickname: %w", err)
	}
	path := fmt.Sprintf("/guilds/%s/members/%s", guildID, userID)
	return c.do(ctx, http.MethodPatch, path, body, "application/json", nil)
}

// CreateDM opens (or reuses) a DM channel with a user and returns its ID.
func (c *RestClient) CreateDM(ctx context.Context, userID string) (string, error) {
	body, err := json.Marshal(map[string]string{"recipient_id": userID})
	if err != nil {
		return "", fmt.Errorf("discord: marshal dm request: %w", err)
	}
	var ch struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, "application/json", &ch); err != nil {
		return "", err
	}
	return ch.ID, nil
}

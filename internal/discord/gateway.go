package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway intents for the events crewbot needs: guild messages with
// content, plus DMs for verification.
const (
	intentGuilds          = 1 << 0
	intentGuildMessages   = 1 << 9
	intentDirectMessages  = 1 << 12
	intentMessageContent  = 1 << 15
	defaultGatewayIntents = intentGuilds | intentGuildMessages | intentDirectMessages | intentMessageContent
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// MessageHandler receives each MESSAGE_CREATE event. Handlers run on
// their own goroutine; a slow handler does not stall the gateway.
type MessageHandler func(ctx context.Context, msg Message)

// Gateway maintains the Discord gateway connection: identify, heartbeat,
// event dispatch, and reconnect with session resume.
type Gateway struct {
	url     string
	token   string
	intents int
	handler MessageHandler
	logger  *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	// resume state
	sessionID string
	resumeURL string
	sequence  int64
	seqMu     sync.Mutex

	// BotUser is set once READY arrives.
	botUser   User
	botUserMu sync.Mutex
}

// NewGateway creates a gateway client. url may be empty for the public
// gateway.
func NewGateway(url, token string, handler MessageHandler, logger *slog.Logger) *Gateway {
	if url == "" {
		url = defaultGatewayURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		url:     url,
		token:   token,
		intents: defaultGatewayIntents,
		handler: handler,
		logger:  logger,
	}
}

// BotUser returns the bot's own user once connected.
func (g *Gateway) BotUser() User {
	g.botUserMu.Lock()
	defer g.botUserMu.Unlock()
	return g.botUser
}

// gatewayPayload is the envelope for every gateway message.
type gatewayPayload struct {
	Op       int             `json:"op"`
	Data     json.RawMessage `json:"d"`
	Sequence int64           `json:"s"`
	Type     string          `json:"t"`
}

// Run connects and processes events until ctx is cancelled, reconnecting
// with backoff on connection loss.
func (g *Gateway) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := g.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("gateway connection lost", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + time.Duration(rand.Int63n(int64(backoff/2+1)))):
		}
		if backoff < 60*time.Second {
			backoff *= 2
		}
	}
}

// runOnce handles a single connection lifetime.
func (g *Gateway) runOnce(ctx context.Context) error {
	url := g.url
	if g.resumeURL != "" && g.sessionID != "" {
		url = g.resumeURL
	}
	g.logger.Info("connecting to gateway", "url", url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()

	// First frame must be HELLO with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.Data, &helloData); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	if g.sessionID != "" {
		err = g.send(map[string]any{
			"op": opResume,
			"d": map[string]any{
				"token":      g.token,
				"session_id": g.sessionID,
				"seq":        g.seq(),
			},
		})
	} else {
		err = g.send(map[string]any{
			"op": opIdentify,
			"d": map[string]any{
				"token":   g.token,
				"intents": g.intents,
				"properties": map[string]string{
					"os":      "linux",
					"browser": "crewbot",
					"device":  "crewbot",
				},
			},
		})
	}
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go g.heartbeatLoop(hbCtx, time.Duration(helloData.HeartbeatInterval)*time.Millisecond)

	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}

		if payload.Sequence > 0 {
			g.setSeq(payload.Sequence)
		}

		switch payload.Op {
		case opDispatch:
			g.handleDispatch(ctx, payload)
		case opHeartbeat:
			if err := g.send(map[string]any{"op": opHeartbeat, "d": g.seq()}); err != nil {
				return fmt.Errorf("requested heartbeat: %w", err)
			}
		case opHeartbeatACK:
			// nothing to do
		case opReconnect:
			return errors.New("server requested reconnect")
		case opInvalidSession:
			// Session cannot be resumed; re-identify from scratch.
			g.sessionID = ""
			g.resumeURL = ""
			return errors.New("session invalidated")
		default:
			g.logger.Debug("ignoring gateway op", "op", payload.Op)
		}
	}
}

func (g *Gateway) handleDispatch(ctx context.Context, payload gatewayPayload) {
	switch payload.Type {
	case "READY":
		var ready struct {
			SessionID        string `json:"session_id"`
			ResumeGatewayURL string `json:"resume_gateway_url"`
			User             User   `json:"user"`
		}
		if err := json.Unmarshal(payload.Data, &ready); err != nil {
			g.logger.Error("decode READY", "error", err)
			return
		}
		g.sessionID = ready.SessionID
		g.resumeURL = ready.ResumeGatewayURL + "?v=10&encoding=json"
		g.botUserMu.Lock()
		g.botUser = ready.User
		g.botUserMu.Unlock()
		g.logger.Info("gateway ready",
			"sessionID", ready.SessionID,
			"user", ready.User.Username,
		)

	case "RESUMED":
		g.logger.Info("gateway session resumed")

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(payload.Data, &msg); err != nil {
			g.logger.Error("decode MESSAGE_CREATE", "error", err)
			return
		}
		if g.handler != nil {
			go g.handler(ctx, msg)
		}

	default:
		g.logger.Debug("unhandled dispatch", "type", payload.Type)
	}
}

func (g *Gateway) heartbeatLoop(ctx context.Context, interval time.Duration) {
	// First beat after a random fraction of the interval, per the
	// gateway documentation.
	timer := time.NewTimer(time.Duration(rand.Int63n(int64(interval))))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := g.send(map[string]any{"op": opHeartbeat, "d": g.seq()}); err != nil {
			g.logger.Warn("heartbeat failed", "error", err)
			return
		}
		timer.Reset(interval)
	}
}

// send writes one JSON frame. gorilla/websocket allows one concurrent
// writer, so all writes funnel through this mutex.
func (g *Gateway) send(v any) error {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if g.conn == nil {
		return errors.New("gateway not connected")
	}
	return g.conn.WriteJSON(v)
}

func (g *Gateway) seq() int64 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	return g.sequence
}

func (g *Gateway) setSeq(s int64) {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	g.sequence = s
}

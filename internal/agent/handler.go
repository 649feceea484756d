package agent

import (
	"context"
	"log/slog"

	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/discord"
	"github.com/teamforge/crewbot/internal/reply"
)

// discordMessageCap is the platform's hard per-message limit, minus
// headroom for reply decoration.
const discordMessageCap = 1900

// Messenger is the slice of the Discord REST client the handler needs.
type Messenger interface {
	ChannelMessages(ctx context.Context, channelID, beforeID string, limit int) ([]discord.Message, error)
	CreateMessage(ctx context.Context, channelID, content, replyToID string, files []discord.File) (*discord.Message, error)
	TriggerTyping(ctx context.Context, channelID string) error
}

// Handler turns gateway message events into loop runs and posts the
// results back to the channel.
type Handler struct {
	rest         Messenger
	loop         *Loop
	guildID      string // restrict to one guild when set
	historyDepth int
	botID        func() string // resolved after gateway READY
	logger       *slog.Logger
}

// NewHandler creates a mention handler. botID is a function because the
// bot's own ID is only known once the gateway session is ready.
func NewHandler(rest Messenger, loop *Loop, guildID string, historyDepth int, botID func() string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if historyDepth <= 0 {
		historyDepth = 5
	}
	return &Handler{
		rest:         rest,
		loop:         loop,
		guildID:      guildID,
		historyDepth: historyDepth,
		botID:        botID,
		logger:       logger,
	}
}

// HandleMessage processes one MESSAGE_CREATE event. It answers only
// messages that mention the bot, and never answers other bots.
func (h *Handler) HandleMessage(ctx context.Context, msg discord.Message) {
	botID := h.botID()
	if botID == "" || msg.Author.Bot || msg.Author.ID == botID {
		return
	}
	if h.guildID != "" && msg.GuildID != h.guildID {
		return
	}
	if !msg.MentionsUser(botID) {
		return
	}

	h.logger.Info("handling mention",
		"messageID", msg.ID,
		"channelID", msg.ChannelID,
		"author", msg.Author.Username,
	)

	if err := h.rest.TriggerTyping(ctx, msg.ChannelID); err != nil {
		h.logger.Debug("typing indicator failed", "error", err)
	}

	history, err := h.rest.ChannelMessages(ctx, msg.ChannelID, msg.ID, h.historyDepth)
	if err != nil {
		// A missing history is not fatal; answer from the message alone.
		h.logger.Warn("history fetch failed", "channelID", msg.ChannelID, "error", err)
	}

	convHistory := make([]convo.ChannelMessage, 0, len(history))
	for _, m := range history {
		convHistory = append(convHistory, toChannelMessage(m, botID))
	}

	out, err := h.loop.Run(ctx, convHistory, toChannelMessage(msg, botID))
	if err != nil {
		h.logger.Error("loop run aborted", "messageID", msg.ID, "error", err)
		return
	}

	files := make([]discord.File, 0, len(out.Files))
	for _, f := range out.Files {
		files = append(files, discord.File{Name: f.Filename, Content: f.Content})
	}

	chunks := reply.Chunk(out.Text, discordMessageCap)
	for i, chunk := range chunks {
		var chunkFiles []discord.File
		replyTo := ""
		if i == 0 {
			replyTo = msg.ID
		}
		if i == len(chunks)-1 {
			chunkFiles = files
		}
		if _, err := h.rest.CreateMessage(ctx, msg.ChannelID, chunk, replyTo, chunkFiles); err != nil {
			h.logger.Error("send reply failed", "messageID", msg.ID, "error", err)
			return
		}
	}
}

// toChannelMessage converts a Discord message to the transcript
// builder's platform-neutral form.
func toChannelMessage(m discord.Message, botID string) convo.ChannelMessage {
	cm := convo.ChannelMessage{
		ID:            m.ID,
		ChannelID:     m.ChannelID,
		AuthorID:      m.Author.ID,
		AuthorName:    m.Author.Username,
		AuthorDisplay: m.DisplayName(),
		Bot:           m.Author.ID == botID,
		Content:       m.Content,
		Timestamp:     m.Time(),
	}
	for _, a := range m.Attachments {
		cm.Attachments = append(cm.Attachments, convo.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			URL:         a.URL,
			Size:        a.Size,
		})
	}
	if ref := m.ReferencedMessage; ref != nil {
		cm.ReplyToAuthor = ref.DisplayName()
		cm.ReplyToText = ref.Content
	}
	return cm
}

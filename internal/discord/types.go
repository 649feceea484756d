// Package discord provides the REST and gateway clients crewbot uses to
// talk to Discord. Only the slice of the API the bot needs is modeled.
package discord

import "time"

// User is a Discord account.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

// Display returns the user's preferred display name.
func (u User) Display() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Member is per-guild user state.
type Member struct {
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
}

// Message is a channel message. Timestamp stays a string on the wire;
// use Time to parse it.
type Message struct {
	ID                string       `json:"id"`
	ChannelID         string       `json:"channel_id"`
	GuildID           string       `json:"guild_id"`
	Author            User         `json:"author"`
	Member            *Member      `json:"member"`
	Content           string       `json:"content"`
	Timestamp         string       `json:"timestamp"`
	Attachments       []Attachment `json:"attachments"`
	Mentions          []User       `json:"mentions"`
	ReferencedMessage *Message     `json:"referenced_message"`
}

// Time parses the message timestamp. Returns the zero time on malformed
// input rather than failing; timestamps are informational here.
func (m *Message) Time() time.Time {
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DisplayName returns the author's name as seen in the guild.
func (m *Message) DisplayName() string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return m.Author.Display()
}

// MentionsUser reports whether the message mentions the given user ID.
func (m *Message) MentionsUser(id string) bool {
	for _, u := range m.Mentions {
		if u.ID == id {
			return true
		}
	}
	return false
}

// File is an outgoing attachment.
type File struct {
	Name    string
	Content []byte
}

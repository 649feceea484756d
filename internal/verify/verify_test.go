package verify

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/teamforge/crewbot/internal/discord"
	"github.com/teamforge/crewbot/internal/store"
)

type fakeRest struct {
	roles   []string // "guild/user/role"
	nicks   []string // "guild/user/nick"
	replies []string
}

func (f *fakeRest) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	f.roles = append(f.roles, guildID+"/"+userID+"/"+roleID)
	return nil
}

func (f *fakeRest) SetNickname(ctx context.Context, guildID, userID, nick string) error {
	f.nicks = append(f.nicks, guildID+"/"+userID+"/"+nick)
	return nil
}

func (f *fakeRest) CreateMessage(ctx context.Context, channelID, content, replyToID string, files []discord.File) (*discord.Message, error) {
	f.replies = append(f.replies, content)
	return &discord.Message{ID: "r"}, nil
}

func setup(t *testing.T) (*Verifier, *fakeRest, *store.Roster) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	roster := store.NewRoster(db)
	if _, err := roster.Upsert(context.Background(), store.Student{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org", Team: "Software",
	}); err != nil {
		t.Fatalf("seed roster: %v", err)
	}

	rest := &fakeRest{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := New(roster, rest, "guild", "role-verified",
		map[string]string{"software": "role-software"}, logger)
	return v, rest, roster
}

func dm(userID, content string) discord.Message {
	return discord.Message{
		ID: "dm1", ChannelID: "dmchan",
		Author:  discord.User{ID: userID, Username: "someone"},
		Content: content,
	}
}

func TestVerifySuccessGrantsRoles(t *testing.T) {
	v, rest, roster := setup(t)

	v.HandleDM(context.Background(), dm("u1", "hi! my email is ada@example.org thanks"))

	if len(rest.roles) != 2 {
		t.Fatalf("granted roles = %v, want verified + team", rest.roles)
	}
	if rest.roles[0] != "guild/u1/role-verified" || rest.roles[1] != "guild/u1/role-software" {
		t.Errorf("roles = %v", rest.roles)
	}
	if len(rest.replies) != 1 || !strings.Contains(rest.replies[0], "Ada") {
		t.Errorf("replies = %v", rest.replies)
	}
	if len(rest.nicks) != 1 || rest.nicks[0] != "guild/u1/Ada Lovelace" {
		t.Errorf("nicknames = %v", rest.nicks)
	}

	if _, err := roster.Verified(context.Background(), "u1"); err != nil {
		t.Errorf("link not persisted: %v", err)
	}
}

func TestVerifyUnknownEmail(t *testing.T) {
	v, rest, _ := setup(t)

	v.HandleDM(context.Background(), dm("u1", "nobody@example.org"))

	if len(rest.roles) != 0 {
		t.Errorf("roles granted for unknown email: %v", rest.roles)
	}
	if len(rest.replies) != 1 || !strings.Contains(rest.replies[0], "couldn't find") {
		t.Errorf("replies = %v", rest.replies)
	}
}

func TestVerifyNoEmailInMessage(t *testing.T) {
	v, rest, _ := setup(t)

	v.HandleDM(context.Background(), dm("u1", "how do I verify?"))

	if len(rest.replies) != 1 || !strings.Contains(rest.replies[0], "send me the email") {
		t.Errorf("replies = %v", rest.replies)
	}
}

func TestVerifyAlreadyVerified(t *testing.T) {
	v, rest, _ := setup(t)
	ctx := context.Background()

	v.HandleDM(ctx, dm("u1", "ada@example.org"))
	rest.replies = nil
	rest.roles = nil

	v.HandleDM(ctx, dm("u1", "ada@example.org"))
	if len(rest.roles) != 0 {
		t.Errorf("roles granted twice: %v", rest.roles)
	}
	if len(rest.replies) != 1 || !strings.Contains(rest.replies[0], "already verified") {
		t.Errorf("replies = %v", rest.replies)
	}
}

func TestVerifyRosterEntryAlreadyClaimed(t *testing.T) {
	v, rest, _ := setup(t)
	ctx := context.Background()

	v.HandleDM(ctx, dm("u1", "ada@example.org"))
	rest.replies = nil
	rest.roles = nil

	v.HandleDM(ctx, dm("u2", "ada@example.org"))
	if len(rest.roles) != 0 {
		t.Errorf("roles granted to second claimant: %v", rest.roles)
	}
	if len(rest.replies) != 1 || !strings.Contains(rest.replies[0], "already linked") {
		t.Errorf("replies = %v", rest.replies)
	}
}

func TestVerifyIgnoresBots(t *testing.T) {
	v, rest, _ := setup(t)
	msg := dm("u1", "ada@example.org")
	msg.Author.Bot = true

	v.HandleDM(context.Background(), msg)
	if len(rest.replies) != 0 {
		t.Errorf("replied to a bot: %v", rest.replies)
	}
}

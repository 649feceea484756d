// Package verify links Discord accounts to roster entries over DM and
// grants the corresponding guild roles.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/teamforge/crewbot/internal/discord"
	"github.com/teamforge/crewbot/internal/store"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Rest is the slice of the Discord client the verifier needs.
type Rest interface {
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
	SetNickname(ctx context.Context, guildID, userID, nick string) error
	CreateMessage(ctx context.Context, channelID, content, replyToID string, files []discord.File) (*discord.Message, error)
}

// Verifier handles the DM verification flow: a member sends the email
// they are registered under, and on a roster match they get the verified
// role plus their sub-team's role.
type Verifier struct {
	roster         *store.Roster
	rest           Rest
	guildID        string
	verifiedRoleID string
	teamRoles      map[string]string // team name -> role ID
	logger         *slog.Logger
}

// New creates a verifier.
func New(roster *store.Roster, rest Rest, guildID, verifiedRoleID string, teamRoles map[string]string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		roster:         roster,
		rest:           rest,
		guildID:        guildID,
		verifiedRoleID: verifiedRoleID,
		teamRoles:      teamRoles,
		logger:         logger,
	}
}

// HandleDM processes one direct message. Replies always go back to the
// same DM channel; nothing is ever posted publicly.
func (v *Verifier) HandleDM(ctx context.Context, msg discord.Message) {
	if msg.Author.Bot {
		return
	}

	respond := func(text string) {
		if _, err := v.rest.CreateMessage(ctx, msg.ChannelID, text, "", nil); err != nil {
			v.logger.Error("verification reply failed", "user", msg.Author.ID, "error", err)
		}
	}

	if _, err := v.roster.Verified(ctx, msg.Author.ID); err == nil {
		respond("You're already verified. If your roles look wrong, ask a team lead.")
		return
	}

	email := emailPattern.FindString(msg.Content)
	if email == "" {
		respond("To verify, send me the email address you registered with the team.")
		return
	}

	student, err := v.roster.ByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		v.logger.Info("verification email not on roster", "user", msg.Author.ID)
		respond(fmt.Sprintf("I couldn't find %s on the roster. Check the spelling, or ask a team lead to add you.", email))
		return
	}
	if err != nil {
		v.logger.Error("roster lookup failed", "error", err)
		respond("Something went wrong on my end. Try again in a bit.")
		return
	}

	if err := v.roster.Verify(ctx, msg.Author.ID, student.ID); err != nil {
		// The unique index on student_id trips when someone else already
		// claimed this roster entry.
		v.logger.Warn("verification link rejected", "user", msg.Author.ID, "studentID", student.ID, "error", err)
		respond("That roster entry is already linked to another Discord account. If that's wrong, ask a team lead.")
		return
	}

	if err := v.rest.AddMemberRole(ctx, v.guildID, msg.Author.ID, v.verifiedRoleID); err != nil {
		v.logger.Error("grant verified role failed", "user", msg.Author.ID, "error", err)
		respond("You're verified, but I couldn't set your role. Ask a team lead to fix it.")
		return
	}

	// The nickname makes the server name match the roster. Many guilds
	// deny this for members above the bot's role, so failure is fine.
	nick := strings.TrimSpace(student.FirstName + " " + student.LastName)
	if err := v.rest.SetNickname(ctx, v.guildID, msg.Author.ID, nick); err != nil {
		v.logger.Debug("set nickname failed", "user", msg.Author.ID, "error", err)
	}

	welcome := fmt.Sprintf("Welcome, %s! You're verified.", student.FirstName)
	if roleID, ok := v.teamRoles[strings.ToLower(student.Team)]; ok && roleID != "" {
		if err := v.rest.AddMemberRole(ctx, v.guildID, msg.Author.ID, roleID); err != nil {
			v.logger.Error("grant team role failed", "user", msg.Author.ID, "team", student.Team, "error", err)
		} else {
			welcome = fmt.Sprintf("Welcome, %s! You're verified and tagged for the %s team.", student.FirstName, student.Team)
		}
	}
	respond(welcome)

	v.logger.Info("member verified",
		"user", msg.Author.ID,
		"studentID", student.ID,
		"team", student.Team,
	)
}

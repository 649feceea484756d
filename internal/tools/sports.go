package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/teamforge/crewbot/internal/httpkit"
)

// sportsAPI wraps a TheSportsDB-compatible JSON API. The free tier keys
// the endpoint by a path segment, so baseURL includes it.
type sportsAPI struct {
	baseURL string
	client  *http.Client
}

func newSportsAPI(baseURL string) *sportsAPI {
	return &sportsAPI{
		baseURL: baseURL,
		client:  httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (a *sportsAPI) get(ctx context.Context, path string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/%s?%s", a.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sports api: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type sportsTeam struct {
	ID     string `json:"idTeam"`
	Name   string `json:"strTeam"`
	League string `json:"strLeague"`
	Sport  string `json:"strSport"`
}

type sportsEvent struct {
	Event     string `json:"strEvent"`
	Date      string `json:"dateEvent"`
	Time      string `json:"strTime"`
	Venue     string `json:"strVenue"`
	HomeTeam  string `json:"strHomeTeam"`
	AwayTeam  string `json:"strAwayTeam"`
	HomeScore string `json:"intHomeScore"`
	AwayScore string `json:"intAwayScore"`
}

// The free API encodes standings numbers as strings.
type sportsStanding struct {
	Rank   string `json:"intRank"`
	Team   string `json:"strTeam"`
	Played string `json:"intPlayed"`
	Win    string `json:"intWin"`
	Draw   string `json:"intDraw"`
	Loss   string `json:"intLoss"`
	Points string `json:"intPoints"`
}

// FindSportsTeam resolves a team name to its API ID.
type FindSportsTeam struct {
	api *sportsAPI
}

// NewFindSportsTeam creates the find_sports_team tool.
func NewFindSportsTeam(baseURL string) *FindSportsTeam {
	return &FindSportsTeam{api: newSportsAPI(baseURL)}
}

func (t *FindSportsTeam) Name() string { return "find_sports_team" }

func (t *FindSportsTeam) Description() string {
	return "Look up a professional sports team by name. Returns team IDs for use with team_next_events and team_last_events."
}

func (t *FindSportsTeam) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Team name, e.g. \"Arsenal\".",
			},
		},
		"required": []string{"name"},
	}
}

func (t *FindSportsTeam) Call(ctx context.Context, args map[string]any) Result {
	name := StringArg(args, "name")
	if name == "" {
		return Errf("name is required")
	}

	var body struct {
		Teams []sportsTeam `json:"teams"`
	}
	if err := t.api.get(ctx, "searchteams.php", url.Values{"t": {name}}, &body); err != nil {
		return Errf("team search failed: %v", err)
	}
	if len(body.Teams) == 0 {
		return OK(map[string]any{"teams": []any{}, "message": "no teams matched"})
	}

	out := make([]map[string]any, 0, len(body.Teams))
	for _, team := range body.Teams {
		out = append(out, map[string]any{
			"id": team.ID, "name": team.Name, "league": team.League, "sport": team.Sport,
		})
	}
	return OK(map[string]any{"teams": out})
}

// TeamNextEvents lists a team's upcoming fixtures.
type TeamNextEvents struct {
	api *sportsAPI
}

// NewTeamNextEvents creates the team_next_events tool.
func NewTeamNextEvents(baseURL string) *TeamNextEvents {
	return &TeamNextEvents{api: newSportsAPI(baseURL)}
}

func (t *TeamNextEvents) Name() string { return "team_next_events" }

func (t *TeamNextEvents) Description() string {
	return "Get a professional sports team's next scheduled games by team ID."
}

func (t *TeamNextEvents) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"team_id": map[string]any{
				"type":        "string",
				"description": "Team ID from find_sports_team.",
			},
		},
		"required": []string{"team_id"},
	}
}

func (t *TeamNextEvents) Call(ctx context.Context, args map[string]any) Result {
	teamID := StringArg(args, "team_id")
	if teamID == "" {
		return Errf("team_id is required")
	}

	var body struct {
		Events []sportsEvent `json:"events"`
	}
	if err := t.api.get(ctx, "eventsnext.php", url.Values{"id": {teamID}}, &body); err != nil {
		return Errf("fixture lookup failed: %v", err)
	}
	if len(body.Events) == 0 {
		return OK(map[string]any{"events": []any{}, "message": "no upcoming games found"})
	}

	out := make([]map[string]any, 0, len(body.Events))
	for _, e := range body.Events {
		out = append(out, map[string]any{
			"event": e.Event, "date": e.Date, "time": e.Time,
			"venue": e.Venue, "home": e.HomeTeam, "away": e.AwayTeam,
		})
	}
	return OK(map[string]any{"events": out})
}

// TeamLastEvents lists a team's most recent results with scores.
type TeamLastEvents struct {
	api *sportsAPI
}

// NewTeamLastEvents creates the team_last_events tool.
func NewTeamLastEvents(baseURL string) *TeamLastEvents {
	return &TeamLastEvents{api: newSportsAPI(baseURL)}
}

func (t *TeamLastEvents) Name() string { return "team_last_events" }

func (t *TeamLastEvents) Description() string {
	return "Get a professional sports team's most recent results, with scores, by team ID."
}

func (t *TeamLastEvents) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"team_id": map[string]any{
				"type":        "string",
				"description": "Team ID from find_sports_team.",
			},
		},
		"required": []string{"team_id"},
	}
}

func (t *TeamLastEvents) Call(ctx context.Context, args map[string]any) Result {
	teamID := StringArg(args, "team_id")
	if teamID == "" {
		return Errf("team_id is required")
	}

	// This endpoint keys its payload "results", not "events".
	var body struct {
		Results []sportsEvent `json:"results"`
	}
	if err := t.api.get(ctx, "eventslast.php", url.Values{"id": {teamID}}, &body); err != nil {
		return Errf("results lookup failed: %v", err)
	}
	if len(body.Results) == 0 {
		return OK(map[string]any{"events": []any{}, "message": "no recent games found"})
	}

	out := make([]map[string]any, 0, len(body.Results))
	for _, e := range body.Results {
		out = append(out, map[string]any{
			"event": e.Event, "date": e.Date,
			"home": e.HomeTeam, "home_score": e.HomeScore,
			"away": e.AwayTeam, "away_score": e.AwayScore,
		})
	}
	return OK(map[string]any{"events": out})
}

// LeagueTable returns a league's current standings.
type LeagueTable struct {
	api *sportsAPI
}

// NewLeagueTable creates the league_table tool.
func NewLeagueTable(baseURL string) *LeagueTable {
	return &LeagueTable{api: newSportsAPI(baseURL)}
}

func (t *LeagueTable) Name() string { return "league_table" }

func (t *LeagueTable) Description() string {
	return "Get a sports league's standings table by league ID and season, e.g. season \"2025-2026\"."
}

func (t *LeagueTable) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"league_id": map[string]any{
				"type":        "string",
				"description": "League ID, e.g. \"4328\" for the English Premier League.",
			},
			"season": map[string]any{
				"type":        "string",
				"description": "Season label, e.g. \"2025-2026\".",
			},
		},
		"required": []string{"league_id", "season"},
	}
}

func (t *LeagueTable) Call(ctx context.Context, args map[string]any) Result {
	leagueID := StringArg(args, "league_id")
	season := StringArg(args, "season")
	if leagueID == "" || season == "" {
		return Errf("league_id and season are required")
	}

	var body struct {
		Table []sportsStanding `json:"table"`
	}
	if err := t.api.get(ctx, "lookuptable.php", url.Values{"l": {leagueID}, "s": {season}}, &body); err != nil {
		return Errf("standings lookup failed: %v", err)
	}
	if len(body.Table) == 0 {
		return OK(map[string]any{"table": []any{}, "message": "no standings found for that league and season"})
	}

	out := make([]map[string]any, 0, len(body.Table))
	for _, row := range body.Table {
		out = append(out, map[string]any{
			"rank": row.Rank, "team": row.Team, "played": row.Played,
			"win": row.Win, "draw": row.Draw, "loss": row.Loss, "points": row.Points,
		})
	}
	return OK(map[string]any{"table": out})
}

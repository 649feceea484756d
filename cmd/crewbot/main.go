// Crewbot is a community Discord bot for a student robotics team.
//
// Members mention the bot to ask about the team schedule, meeting notes,
// and their code. Questions run on a cheap model first; the model can
// escalate hard questions to a stronger one mid-conversation. A DM flow
// verifies members against the team roster and assigns their roles.
//
// Usage:
//
//	crewbot serve                         Connect to Discord and serve mentions
//	crewbot ask <question>                Ask one question from the terminal
//	crewbot inspect [interaction-id]      Show recent interactions or one full trace
//	crewbot import-roster <file.csv>      Import the member roster
//	crewbot import-notes <date> <file.md> Import meeting notes for a date
//	crewbot version                       Print version and build information
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/teamforge/crewbot/internal/agent"
	"github.com/teamforge/crewbot/internal/buildinfo"
	"github.com/teamforge/crewbot/internal/config"
	"github.com/teamforge/crewbot/internal/convo"
	"github.com/teamforge/crewbot/internal/discord"
	"github.com/teamforge/crewbot/internal/ingest"
	"github.com/teamforge/crewbot/internal/llm"
	"github.com/teamforge/crewbot/internal/prompts"
	"github.com/teamforge/crewbot/internal/store"
	"github.com/teamforge/crewbot/internal/tools"
	"github.com/teamforge/crewbot/internal/verify"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// liteTools is the tool allowlist for the lite tier. Everything else,
// including upload_code_file, requires escalation.
var liteTools = []string{
	"think_harder",
	"read_attachment_file",
	"get_schedule_today",
	"get_schedule_date",
	"get_next_meeting",
	"find_meeting",
	"get_meeting_notes",
}

// main delegates to run with the OS-level environment injected, keeping
// os.Exit and os.Args out of the application logic so the lifecycle can
// be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments by hand. The flag package relies on global state
// that makes parallel test runs awkward, and the argument surface here
// is small.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: crewbot ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "inspect":
		id := ""
		if len(cmdArgs) > 0 {
			id = cmdArgs[0]
		}
		return runInspect(ctx, stdout, configPath, id, outputFmt)
	case "import-roster":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: crewbot import-roster <file.csv>")
		}
		return runImportRoster(ctx, stdout, configPath, cmdArgs[0])
	case "import-notes":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: crewbot import-notes <YYYY-MM-DD> <file.md>")
		}
		return runImportNotes(ctx, stdout, configPath, cmdArgs[0], cmdArgs[1])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Crewbot - team Discord assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: crewbot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                          Connect to Discord and serve mentions")
	fmt.Fprintln(w, "  ask <question>                 Ask one question from the terminal")
	fmt.Fprintln(w, "  inspect [interaction-id]       List recent interactions, or show one trace")
	fmt.Fprintln(w, "  import-roster <file.csv>       Import the member roster")
	fmt.Fprintln(w, "  import-notes <date> <file.md>  Import meeting notes for a date")
	fmt.Fprintln(w, "  version                        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, "crewbot.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// buildClient assembles the provider mux and routes both tiers.
func buildClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	mux := llm.NewMux(logger)
	switch cfg.Models.Provider {
	case "gemini", "":
		if cfg.Models.GeminiAPIKey == "" {
			return nil, fmt.Errorf("models.gemini_api_key is required for the gemini provider")
		}
		mux.Register("gemini", llm.NewGeminiClient("", cfg.Models.GeminiAPIKey, logger))
		mux.Route(cfg.Models.Lite.Model, "gemini")
		mux.Route(cfg.Models.Pro.Model, "gemini")
	case "openai":
		mux.Register("openai", llm.NewOpenAIClient(cfg.Models.OpenAIBaseURL, cfg.Models.OpenAIAPIKey, logger))
		mux.Route(cfg.Models.Lite.Model, "openai")
		mux.Route(cfg.Models.Pro.Model, "openai")
	default:
		return nil, fmt.Errorf("unknown models.provider %q (expected gemini or openai)", cfg.Models.Provider)
	}
	return mux, nil
}

// buildRegistry wires every tool against its dependencies. history may
// be nil when no chat transport exists, as in ask.
func buildRegistry(cfg *config.Config, db *sql.DB, history tools.ChannelHistory, logger *slog.Logger) *tools.Registry {
	schedules := store.NewSchedules(db)
	memories := store.NewMemories(db)

	reg := tools.NewRegistry(logger)
	reg.Register(tools.ThinkHarder{})
	reg.Register(tools.NewReadAttachment(cfg.Agent.AttachmentMaxBytes))
	reg.Register(&tools.ScheduleToday{Store: schedules, Now: time.Now})
	reg.Register(&tools.ScheduleDate{Store: schedules})
	reg.Register(&tools.NextMeeting{Store: schedules, Now: time.Now})
	reg.Register(&tools.FindMeeting{Store: schedules})
	reg.Register(&tools.MeetingNotes{Store: schedules})
	reg.Register(&tools.RememberFact{Store: memories})
	reg.Register(&tools.RecallFacts{Store: memories})
	reg.Register(&tools.ForgetFact{Store: memories})
	reg.Register(&tools.UploadCodeFile{
		MinChars: cfg.Agent.UploadMinChars,
		MinLines: cfg.Agent.UploadMinLines,
	})
	if history != nil {
		reg.Register(&tools.FetchMessages{History: history})
	}
	if cfg.Sports.BaseURL != "" {
		reg.Register(tools.NewFindSportsTeam(cfg.Sports.BaseURL))
		reg.Register(tools.NewTeamNextEvents(cfg.Sports.BaseURL))
		reg.Register(tools.NewTeamLastEvents(cfg.Sports.BaseURL))
		reg.Register(tools.NewLeagueTable(cfg.Sports.BaseURL))
	}
	return reg
}

func buildLoop(cfg *config.Config, client llm.Client, reg *tools.Registry, audit *store.Interactions, logger *slog.Logger) (*agent.Loop, error) {
	lib, err := prompts.NewLibrary(cfg.PersonaFile)
	if err != nil {
		return nil, err
	}

	tier := func(name string, tc config.TierConfig) agent.Tier {
		return agent.Tier{
			Name:  name,
			Model: tc.Model,
			Opts: llm.Options{
				Temperature: tc.Temperature,
				TopP:        tc.TopP,
				MaxTokens:   tc.MaxTokens,
			},
		}
	}

	return agent.New(client, reg, lib,
		&convo.Builder{HistoryDepth: cfg.Agent.HistoryDepth},
		audit,
		tier("lite", cfg.Models.Lite),
		tier("pro", cfg.Models.Pro),
		agent.Config{
			MaxToolRounds: cfg.Agent.MaxToolRounds,
			ReplyLimit:    cfg.Agent.ReplyLimit,
			ModelTimeout:  time.Duration(cfg.Agent.ModelTimeoutSec) * time.Second,
			LiteTools:     liteTools,
		},
		logger), nil
}

// runServe connects to Discord and serves mentions until interrupted.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	slog.SetDefault(logger)
	logger.Info("starting", "version", buildinfo.Version, "config", cfgPath)

	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is required for serve")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}
	rest := discord.NewRestClient("", cfg.Discord.Token, logger)
	reg := buildRegistry(cfg, db, rest, logger)
	loop, err := buildLoop(cfg, client, reg, store.NewInteractions(db), logger)
	if err != nil {
		return err
	}

	var gw *discord.Gateway
	handler := agent.NewHandler(rest, loop, cfg.Discord.GuildID, cfg.Agent.HistoryDepth,
		func() string { return gw.BotUser().ID }, logger)
	verifier := verify.New(store.NewRoster(db), rest,
		cfg.Discord.GuildID, cfg.Discord.VerifiedRoleID, cfg.Discord.TeamRoles, logger)

	gw = discord.NewGateway("", cfg.Discord.Token, func(ctx context.Context, msg discord.Message) {
		if msg.GuildID == "" {
			verifier.HandleDM(ctx, msg)
			return
		}
		handler.HandleMessage(ctx, msg)
	}, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = gw.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// runAsk answers one question from the terminal. No Discord, no history,
// in-memory database; useful for smoke-testing models and tools.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, slog.LevelWarn)
	slog.SetDefault(logger)
	logger.Info("config loaded", "path", cfgPath)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}
	reg := buildRegistry(cfg, db, nil, logger)
	loop, err := buildLoop(cfg, client, reg, nil, logger)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	out, err := loop.Run(ctx, nil, convo.ChannelMessage{
		ID:         "cli",
		AuthorID:   "cli",
		AuthorName: "cli",
		Content:    question,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, out.Text)
	for _, f := range out.Files {
		fmt.Fprintf(stdout, "\n--- attached: %s (%d bytes) ---\n%s\n", f.Filename, len(f.Content), f.Content)
	}
	return nil
}

// runImportRoster imports a CSV roster export.
func runImportRoster(ctx context.Context, stdout io.Writer, configPath, path string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := ingest.ImportRosterCSV(ctx, f, store.NewRoster(db))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %d roster entries from %s\n", n, path)
	return nil
}

// runImportNotes imports one markdown notes file for a meeting date.
func runImportNotes(ctx context.Context, stdout io.Writer, configPath, date, path string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	md, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	id, err := ingest.ImportNotes(ctx, store.NewSchedules(db), date, "", md)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported notes for %s into event %d\n", date, id)
	return nil
}

// Package config handles crewbot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/crewbot/config.yaml, /etc/crewbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "crewbot", "config.yaml"))
	}

	paths = append(paths, "/etc/crewbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all crewbot configuration.
type Config struct {
	Discord     DiscordConfig `yaml:"discord"`
	Models      ModelsConfig  `yaml:"models"`
	Agent       AgentConfig   `yaml:"agent"`
	Sports      SportsConfig  `yaml:"sports"`
	DataDir     string        `yaml:"data_dir"`
	PersonaFile string        `yaml:"persona_file"`
	LogLevel    string        `yaml:"log_level"`
}

// DiscordConfig defines the chat platform connection.
type DiscordConfig struct {
	Token string `yaml:"token"`
	// GuildID restricts the bot to a single server. Mentions from other
	// guilds are ignored when set.
	GuildID string `yaml:"guild_id"`
	// VerifiedRoleID is granted to members who pass roster verification.
	VerifiedRoleID string `yaml:"verified_role_id"`
	// TeamRoles maps sub-team names to role IDs assigned at verification.
	TeamRoles map[string]string `yaml:"team_roles"`
}

// ModelsConfig defines the lite/pro model pair and their providers.
type ModelsConfig struct {
	// Provider selects the wire adapter: "gemini" or "openai".
	Provider string `yaml:"provider"`
	// GeminiAPIKey authenticates against the Gemini API.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	// OpenAIBaseURL points the openai adapter at a compatible server
	// (default http://localhost:11434/v1 for a local runtime).
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`

	Lite TierConfig `yaml:"lite"`
	Pro  TierConfig `yaml:"pro"`
}

// TierConfig defines one model tier's generation parameters.
type TierConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AgentConfig holds the orchestrator's policy thresholds. The source of
// record for these numbers is the config file, not code: deployments have
// historically tuned them independently.
type AgentConfig struct {
	// MaxToolRounds caps model→tool→model iterations per run.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// HistoryDepth is how many recent channel messages seed the transcript.
	HistoryDepth int `yaml:"history_depth"`
	// ReplyLimit is the maximum reply length in characters.
	ReplyLimit int `yaml:"reply_limit"`
	// UploadMinChars and UploadMinLines gate the upload_code_file tool:
	// content below both thresholds is rejected as too small to warrant a file.
	UploadMinChars int `yaml:"upload_min_chars"`
	UploadMinLines int `yaml:"upload_min_lines"`
	// AttachmentMaxBytes caps read_attachment_file downloads.
	AttachmentMaxBytes int `yaml:"attachment_max_bytes"`
	// ModelTimeoutSec bounds a single model invocation.
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
}

// SportsConfig defines the sports-data API settings.
type SportsConfig struct {
	// BaseURL of a TheSportsDB-compatible JSON API, including the key path
	// segment. Empty disables the sports tools.
	BaseURL string `yaml:"base_url"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with the standard policy thresholds.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Models: ModelsConfig{
			Provider:      "gemini",
			OpenAIBaseURL: "http://localhost:11434/v1",
			Lite: TierConfig{
				Model:       "gemini-2.0-flash-lite",
				Temperature: 0.7,
				TopP:        0.95,
				MaxTokens:   1024,
			},
			Pro: TierConfig{
				Model:       "gemini-2.5-pro",
				Temperature: 0.4,
				TopP:        0.95,
				MaxTokens:   4096,
			},
		},
		Agent: AgentConfig{
			MaxToolRounds:      6,
			HistoryDepth:       5,
			ReplyLimit:         1800,
			UploadMinChars:     2000,
			UploadMinLines:     100,
			AttachmentMaxBytes: 5000,
			ModelTimeoutSec:    90,
		},
		Sports: SportsConfig{
			BaseURL: "https://www.thesportsdb.com/api/v1/json/123",
		},
	}
}

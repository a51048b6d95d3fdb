// Package config loads process configuration from built-in defaults, an
// optional YAML file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development production"`
	LogLevel    string `yaml:"log_level"`

	Discord    Discord    `yaml:"discord"`
	Store      Store      `yaml:"store"`
	Summarizer Summarizer `yaml:"summarizer"`
	Matching   Matching   `yaml:"matching"`
	Room       Room       `yaml:"room"`
	HTTP       HTTP       `yaml:"http"`
}

// Discord holds the chat platform credentials and channel wiring
type Discord struct {
	Token   string `yaml:"token"`
	AppID   string `yaml:"app_id"`
	GuildID string `yaml:"guild_id"`

	FallbackChannelID  string   `yaml:"fallback_channel_id"`
	StartHereChannelID string   `yaml:"start_here_channel_id"`
	MatchLogChannelID  string   `yaml:"match_log_channel_id"`
	ErrorLogChannelID  string   `yaml:"error_log_channel_id"`
	RoomCategoryID     string   `yaml:"room_category_id"`
	LoggedChannelIDs   []string `yaml:"logged_channel_ids"`
}

// Store selects and configures the ProfileStore backend
type Store struct {
	Driver      string `yaml:"driver" validate:"oneof=memory sqlite postgres supabase"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	SupabaseURL string `yaml:"supabase_url" validate:"required_if=Driver supabase,omitempty,url"`
	SupabaseKey string `yaml:"supabase_key" validate:"required_if=Driver supabase"`
}

// Summarizer selects the generative-text provider
type Summarizer struct {
	Provider string        `yaml:"provider" validate:"oneof=none gemini anthropic"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Matching tunes the ranking pass
type Matching struct {
	HistoryEnabled     bool `yaml:"history_enabled"`
	HistoryWindow      int  `yaml:"history_window" validate:"gte=1,lte=5000"`
	HistoryConcurrency int  `yaml:"history_concurrency" validate:"gte=1,lte=64"`
}

// Room tunes private room provisioning and reclamation
type Room struct {
	Retention     time.Duration `yaml:"retention" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	Timezone      string        `yaml:"timezone" validate:"required"`
}

// HTTP configures the ops endpoint
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		Store: Store{
			Driver:     "memory",
			SQLitePath: "coffeechat.db",
		},
		Summarizer: Summarizer{
			Provider: "none",
			Timeout:  30 * time.Second,
		},
		Matching: Matching{
			HistoryEnabled:     true,
			HistoryWindow:      500,
			HistoryConcurrency: 8,
		},
		Room: Room{
			Retention:     48 * time.Hour,
			SweepInterval: 10 * time.Minute,
			Timezone:      "Asia/Seoul",
		},
		HTTP: HTTP{Addr: ":8080"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and that the room timezone exists
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Room.Timezone); err != nil {
		return fmt.Errorf("invalid config: room timezone: %w", err)
	}
	return nil
}

// RequireDiscord reports whether the platform credentials needed to connect
// are present.
func (c *Config) RequireDiscord() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.Discord.AppID == "" {
		missing = append(missing, "APP_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location returns the room naming timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Room.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDerivedDefaults() {
	if c.Summarizer.Provider == "" {
		c.Summarizer.Provider = "none"
	}
	if c.Summarizer.Provider != "none" && c.Summarizer.APIKey == "" {
		// no key, no provider: the keyword fallback still produces profiles
		c.Summarizer.Provider = "none"
	}
	if c.Summarizer.Model == "" {
		switch c.Summarizer.Provider {
		case "gemini":
			c.Summarizer.Model = "gemini-2.5-flash"
		case "anthropic":
			c.Summarizer.Model = "claude-sonnet-4-20250514"
		}
	}
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("COFFEECHAT_ENV", &c.Environment)
	str("LOG_LEVEL", &c.LogLevel)

	str("DISCORD_TOKEN", &c.Discord.Token)
	str("APP_ID", &c.Discord.AppID)
	str("GUILD_ID", &c.Discord.GuildID)
	str("INTROS_HUB_CHANNEL_ID", &c.Discord.FallbackChannelID)
	str("STARTHERE_CHANNEL_ID", &c.Discord.StartHereChannelID)
	str("MATCH_LOG_CHANNEL_ID", &c.Discord.MatchLogChannelID)
	str("ERROR_LOG_CHANNEL_ID", &c.Discord.ErrorLogChannelID)
	str("COFFEE_CATEGORY_ID", &c.Discord.RoomCategoryID)
	if v, ok := lookup("LOG_CHANNEL_IDS"); ok {
		c.Discord.LoggedChannelIDs = splitList(v)
	}

	str("STORE_DRIVER", &c.Store.Driver)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("POSTGRES_DSN", &c.Store.PostgresDSN)
	str("SUPABASE_URL", &c.Store.SupabaseURL)
	str("SUPABASE_SERVICE_ROLE_KEY", &c.Store.SupabaseKey)
	if _, ok := lookup("STORE_DRIVER"); !ok && c.Store.Driver == "memory" {
		switch {
		case c.Store.PostgresDSN != "":
			c.Store.Driver = "postgres"
		case c.Store.SupabaseURL != "" && c.Store.SupabaseKey != "":
			c.Store.Driver = "supabase"
		}
	}

	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		c.Summarizer.Provider = "gemini"
		c.Summarizer.APIKey = v
		str("GEMINI_MODEL", &c.Summarizer.Model)
	} else if v, ok := lookup("ANTHROPIC_API_KEY"); ok && v != "" {
		c.Summarizer.Provider = "anthropic"
		c.Summarizer.APIKey = v
		str("ANTHROPIC_MODEL", &c.Summarizer.Model)
	}

	if v, ok := lookup("HISTORY_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse HISTORY_ENABLED: %w", err)
		}
		c.Matching.HistoryEnabled = b
	}
	if err := durationEnv(lookup, "ROOM_RETENTION", &c.Room.Retention); err != nil {
		return err
	}
	if err := durationEnv(lookup, "ROOM_SWEEP_INTERVAL", &c.Room.SweepInterval); err != nil {
		return err
	}
	str("ROOM_TIMEZONE", &c.Room.Timezone)
	str("HTTP_ADDR", &c.HTTP.Addr)
	return nil
}

func durationEnv(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

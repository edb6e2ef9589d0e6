// Package config loads the bot configuration from a YAML file.
//
// The file is created with defaults when it does not exist. Secrets can be
// supplied through the environment (BOT_TOKEN, DATABASE_URL, REDIS_ADDR,
// API_KEY); environment values override the file and are never written back.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config.yml"

// Config is the root of config.yml.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	API      APIConfig      `yaml:"api"`
	Modules  ModulesConfig  `yaml:"modules"`
}

// BotConfig configures the gateway connection.
type BotConfig struct {
	// Token is the bot token. Prefer the BOT_TOKEN environment variable.
	Token string `yaml:"token"`

	// Status is the custom presence text shown once connected.
	Status string `yaml:"status"`
}

// DatabaseConfig selects the persistent store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

// CacheConfig selects where volatile state (message cooldowns, leaderboard
// snapshots) lives.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
}

// APIConfig configures the operations HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// APIKey guards the admin routes. Admin routes are refused when empty.
	APIKey string `yaml:"apiKey"`

	AllowedOrigins []string `yaml:"allowedOrigins"`

	// RequestsPerSecond and Burst configure the per-IP rate limiter.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type ModulesConfig struct {
	Leveling LevelingConfig `yaml:"leveling"`
	Polls    PollsConfig    `yaml:"polls"`
	Tickets  TicketsConfig  `yaml:"tickets"`
}

// LevelingConfig configures XP accrual.
type LevelingConfig struct {
	Enabled bool `yaml:"enabled"`

	// MessageXP is awarded per message outside the cooldown window.
	MessageXP int64 `yaml:"messageXP"`

	// VoiceXP is awarded per whole minute spent in a voice channel.
	VoiceXP int64 `yaml:"voiceXP"`

	// CooldownSeconds is the per-member window in which further messages earn nothing.
	CooldownSeconds int `yaml:"cooldownSeconds"`

	LevelUpMessage bool   `yaml:"levelUpMessage"`
	LevelUpChannel string `yaml:"levelUpChannel"`

	RoleRewards []RoleReward `yaml:"roleRewards"`
	XPBoosters  []XPBooster  `yaml:"xpBoosters"`
}

// RoleReward grants RoleID once a member reaches Level.
type RoleReward struct {
	Level  int    `yaml:"level" json:"level"`
	RoleID string `yaml:"roleId" json:"roleId"`
}

// XPBooster multiplies XP until ExpiresAt. An empty RoleID applies to everyone.
type XPBooster struct {
	Multiplier float64       `yaml:"multiplier" json:"multiplier"`
	Duration   time.Duration `yaml:"duration" json:"duration"`
	RoleID     string        `yaml:"roleId,omitempty" json:"roleId,omitempty"`
	ExpiresAt  time.Time     `yaml:"expiresAt" json:"expiresAt"`
}

// Active reports whether the booster still applies at now.
func (b XPBooster) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// PollsConfig configures poll defaults applied at creation and vote time.
type PollsConfig struct {
	Enabled bool `yaml:"enabled"`

	// DefaultDuration in hours, applied when a poll is published without one. 0 disables it.
	DefaultDuration float64 `yaml:"defaultDuration"`

	AllowMultiple bool `yaml:"allowMultiple"`

	// RequireRole restricts voting to members holding this role.
	RequireRole string `yaml:"requireRole"`
}

// TicketsConfig configures the support ticket workflow.
type TicketsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Category is the parent channel ticket channels are created under when the
	// panel's channel has no parent.
	Category string `yaml:"category"`

	// TranscriptChannel receives transcripts of closed tickets.
	TranscriptChannel string `yaml:"transcriptChannel"`

	AutoClose AutoCloseConfig `yaml:"autoClose"`
}

// AutoCloseConfig warns open tickets older than Time hours. Tickets are not closed.
type AutoCloseConfig struct {
	Enabled bool `yaml:"enabled"`
	Time    int  `yaml:"time"`
}

// Default returns the configuration written for a fresh install.
func Default() Config {
	return Config{
		Bot: BotConfig{
			Status: "Watching over the server",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/bot.db",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
		},
		API: APIConfig{
			Enabled:           true,
			Addr:              ":8080",
			AllowedOrigins:    []string{"http://localhost:3000"},
			RequestsPerSecond: 1,
			Burst:             5,
		},
		Modules: ModulesConfig{
			Leveling: LevelingConfig{
				Enabled:         true,
				MessageXP:       15,
				VoiceXP:         10,
				CooldownSeconds: 60,
				LevelUpMessage:  true,
			},
			Polls: PollsConfig{
				Enabled:         true,
				DefaultDuration: 24,
			},
			Tickets: TicketsConfig{
				Enabled: true,
				AutoClose: AutoCloseConfig{
					Enabled: false,
					Time:    24,
				},
			},
		},
	}
}

// Load reads path, writing Default() there first when the file is missing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, fmt.Errorf("writing default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default(), so omitted keys keep their defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WithEnv returns cfg with environment overrides applied.
func WithEnv(cfg Config) Config {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	return cfg
}

// Validate returns every problem found in cfg joined into one error.
func (c Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required (or set BOT_TOKEN)"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be memory or redis", c.Cache.Backend))
	}
	lv := c.Modules.Leveling
	if lv.MessageXP < 0 || lv.VoiceXP < 0 {
		errs = append(errs, errors.New("modules.leveling XP amounts must not be negative"))
	}
	if lv.CooldownSeconds < 0 {
		errs = append(errs, errors.New("modules.leveling.cooldownSeconds must not be negative"))
	}
	if c.Modules.Polls.DefaultDuration < 0 {
		errs = append(errs, errors.New("modules.polls.defaultDuration must not be negative"))
	}
	if c.Modules.Tickets.AutoClose.Enabled && c.Modules.Tickets.AutoClose.Time <= 0 {
		errs = append(errs, errors.New("modules.tickets.autoClose.time must be positive"))
	}
	return errors.Join(errs...)
}

// Clone deep-copies the slices so callers can mutate the result freely.
func (c Config) Clone() Config {
	out := c
	out.API.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	out.Modules.Leveling.RoleRewards = append([]RoleReward(nil), c.Modules.Leveling.RoleRewards...)
	out.Modules.Leveling.XPBoosters = append([]XPBooster(nil), c.Modules.Leveling.XPBoosters...)
	return out
}

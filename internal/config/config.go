// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypePostgres = "postgres"
)

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN,required" validate:"required"`
	DeveloperIDs   []string `env:"DEVELOPER_IDS" envSeparator:"," validate:"dive,numeric"`
	GuildBlacklist []string `env:"GUILD_BLACKLIST" envSeparator:"," validate:"dive,numeric"`

	DefaultPrefix   string `env:"DEFAULT_PREFIX" envDefault:"!" validate:"required,max=5"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"en" validate:"required,len=2"`

	GuildConfigDir     string `env:"GUILD_CONFIG_DIR" envDefault:"data/guilds" validate:"required"`
	GuildConfigBackups int    `env:"GUILD_CONFIG_BACKUPS" envDefault:"3" validate:"gte=0,lte=50"`

	DatabaseType          string        `env:"DATABASE_TYPE" envDefault:"sqlite" validate:"oneof=sqlite postgres"`
	Database              string        `env:"DATABASE" envDefault:"data/audit.sqlite3" validate:"required"`
	DatabaseSlowThreshold time.Duration `env:"DATABASE_SLOW_THRESHOLD" envDefault:"200ms"`
	AuditRetention        time.Duration `env:"AUDIT_MESSAGE_RETENTION" envDefault:"720h" validate:"gte=0s"`

	WizardTimeout time.Duration `env:"WIZARD_TIMEOUT" envDefault:"2m" validate:"gte=1s"`
	CommandRate   float64       `env:"COMMAND_RATE" envDefault:"1" validate:"gt=0"`
	CommandBurst  int           `env:"COMMAND_BURST" envDefault:"5" validate:"gte=1"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}
	return Parse()
}

// Parse builds a Config from the current environment without touching .env.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDeveloper reports whether userID is listed in DEVELOPER_IDS.
func IsDeveloper(cfg *Config, userID string) bool {
	if cfg == nil || userID == "" {
		return false
	}
	return slices.Contains(cfg.DeveloperIDs, userID)
}

// IsGuildBlacklisted reports whether the bot should refuse to stay in guildID.
func (c *Config) IsGuildBlacklisted(guildID string) bool {
	return slices.Contains(c.GuildBlacklist, guildID)
}

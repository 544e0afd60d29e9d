// Package app opens the stores shared by the bot and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"server-warden/datastore"
	"server-warden/internal/audit"
	"server-warden/internal/command"
	"server-warden/internal/config"
	"server-warden/internal/guildconfig"
	"server-warden/internal/locale"
	"server-warden/internal/logging"
	"server-warden/pkg/cmd"
)

type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Guilds   *guildconfig.Store
	Audit    *audit.Store
	Locale   *locale.Catalog
	Registry *cmd.Registry

	files *datastore.DataStore
}

// Setup loads the configuration and builds the process logger.
func Setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(os.Stderr, level, cfg.LogFormat)
	slog.SetDefault(log)
	return cfg, log, nil
}

// Open connects the guild config files, the audit database and the
// locale catalog, and registers the built-in commands.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	cat, err := locale.Builtin(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("load locale: %w", err)
	}
	if missing := cat.Missing(cfg.DefaultLanguage); len(missing) > 0 {
		log.Warn("default language has untranslated strings", "language", cfg.DefaultLanguage, "count", len(missing))
	}

	files, err := datastore.NewWithConfig(&datastore.Config{
		Dir:         cfg.GuildConfigDir,
		BackupCount: cfg.GuildConfigBackups,
		Logger:      logging.Named(log, "datastore"),
	})
	if err != nil {
		return nil, fmt.Errorf("open guild config dir: %w", err)
	}
	stats := files.Stats()
	log.Debug("guild config store opened", "dir", stats["dir"], "guilds", stats["keys"])
	guilds := guildconfig.NewStore(files,
		guildconfig.Defaults{Prefix: cfg.DefaultPrefix, Language: cfg.DefaultLanguage},
		guildconfig.WithLanguages(cat.Has),
		guildconfig.WithLogger(log),
	)

	db, err := audit.Open(audit.Options{
		Type:          cfg.DatabaseType,
		DSN:           cfg.Database,
		SlowThreshold: cfg.DatabaseSlowThreshold,
	}, log)
	if err != nil {
		_ = files.Close()
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	store, err := audit.New(ctx, db, logging.Named(log, "audit"))
	if err != nil {
		_ = files.Close()
		return nil, err
	}

	reg := cmd.NewRegistry()
	if err := command.Register(reg); err != nil {
		_ = store.Close()
		_ = files.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Log:      log,
		Guilds:   guilds,
		Audit:    store,
		Locale:   cat,
		Registry: reg,
		files:    files,
	}, nil
}

func (a *App) Close() error {
	return errors.Join(a.Audit.Close(), a.files.Close())
}

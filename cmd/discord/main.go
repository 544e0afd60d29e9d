// cmd/discord/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"server-warden/internal/announce"
	"server-warden/internal/app"
	"server-warden/internal/audit"
	"server-warden/internal/command"
	"server-warden/internal/discord"
	"server-warden/internal/logging"
	"server-warden/internal/modlog"
	"server-warden/internal/version"
	"server-warden/internal/waiter"
	"server-warden/pkg/session"
)

const (
	pruneEvery    = time.Hour
	cleanupEvery  = 10 * time.Minute
	cooldownIdle  = 30 * time.Minute
	shutdownGrace = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot exited with error", tint.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, log, err := app.Setup()
	if err != nil {
		return err
	}
	log.Info("starting", "app", version.AppName, "version", version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close stores", tint.Err(err))
		}
	}()

	w := waiter.New()
	bot, err := discord.New(cfg, a.Guilds, a.Audit, w, log)
	if err != nil {
		return err
	}

	sessions := session.NewManager(func(status string) {
		log.Debug("session", "status", status)
	})
	cooldowns := command.NewCooldowns(cfg.CommandRate, cfg.CommandBurst)
	dispatcher := command.NewDispatcher(&command.Services{
		Config:      cfg,
		Guilds:      a.Guilds,
		Locale:      a.Locale,
		Audit:       a.Audit,
		Platform:    bot,
		Events:      w,
		Sessions:    sessions,
		Broadcaster: announce.New(a.Guilds, bot, announce.WithLogger(log)),
		Cooldowns:   cooldowns,
		Registry:    a.Registry,
		Log:         logging.Named(log, "command"),
		Started:     time.Now(),
	})
	sink := modlog.NewSink(a.Guilds, a.Locale, bot, modlog.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		audit.RunPruner(ctx, a.Audit, pruneEvery, cfg.AuditRetention)
		return nil
	})
	g.Go(func() error {
		cooldowns.RunCleaner(ctx, cleanupEvery, cooldownIdle)
		return nil
	})
	g.Go(func() error {
		if err := bot.Run(ctx, dispatcher, sink); err != nil {
			return fmt.Errorf("discord bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		if n := sessions.StopAll(); n > 0 {
			log.Info("stopped running wizards", "count", n)
		}
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		case <-time.After(shutdownGrace):
			err = fmt.Errorf("shutdown timed out after %s", shutdownGrace)
		}
	}
	if err != nil {
		return err
	}
	log.Info("bot exited cleanly")
	return nil
}

// Package logging sets up the slog handlers shared by the bot, the CLI and
// the audit database.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	gormlogger "gorm.io/gorm/logger"
)

// NameKey is the attribute identifying which component emitted a record.
const NameKey = "logger"

// New returns a logger writing to w. format is "text" (colorized, via tint)
// or "json".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})
	}
	return slog.New(h)
}

// ParseLevel converts debug/info/warn/error into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// Named returns a child logger tagged with the component name.
func Named(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(NameKey, name)
}

var discordgoLevels = map[int]slog.Level{
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
	discordgo.LogDebug:         slog.LevelDebug,
}

// DiscordgoLogger returns a function suitable for discordgo.Logger that
// forwards the library's messages to log.
func DiscordgoLogger(log *slog.Logger) func(msgL, caller int, format string, a ...any) {
	log = Named(log, "discordgo")
	return func(msgL, _ int, format string, a ...any) {
		level, ok := discordgoLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.Log(context.Background(), level, strings.ReplaceAll(fmt.Sprintf(format, a...), "\n", " "))
	}
}

// GormLogger adapts slog to gorm's logger.Interface.
type GormLogger struct {
	log           *slog.Logger
	SlowThreshold time.Duration
	silent        bool
}

func NewGormLogger(log *slog.Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{log: Named(log, "gorm"), SlowThreshold: slowThreshold}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{log: g.log, SlowThreshold: g.SlowThreshold, silent: level == gormlogger.Silent}
}

func (g *GormLogger) Info(ctx context.Context, s string, args ...any) {
	if !g.silent {
		g.log.InfoContext(ctx, fmt.Sprintf(s, args...))
	}
}

func (g *GormLogger) Warn(ctx context.Context, s string, args ...any) {
	if !g.silent {
		g.log.WarnContext(ctx, fmt.Sprintf(s, args...))
	}
}

func (g *GormLogger) Error(ctx context.Context, s string, args ...any) {
	if !g.silent {
		g.log.ErrorContext(ctx, fmt.Sprintf(s, args...))
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		g.log.ErrorContext(ctx, "sql failed", "elapsed", elapsed, "rows", rows, "sql", sql, tint.Err(err))
	case g.SlowThreshold > 0 && elapsed > g.SlowThreshold:
		g.log.WarnContext(ctx, "slow sql", "elapsed", elapsed, "threshold", g.SlowThreshold, "rows", rows, "sql", sql)
	default:
		g.log.DebugContext(ctx, "sql completed", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}

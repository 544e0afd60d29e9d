// Package audit keeps the relational audit trail: message contents and
// edits, deletions, name and avatar history, command invocations and
// published changelog entries.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"server-warden/internal/config"
	"server-warden/internal/logging"
)

var ErrDuplicateVersion = errors.New("changelog version already exists")

const (
	sqliteMaxOpenConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
)

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

type Options struct {
	Type          string
	DSN           string
	SlowThreshold time.Duration
}

// Open connects to sqlite or postgres.
func Open(opts Options, log *slog.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:  logging.NewGormLogger(log, opts.SlowThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch opts.Type {
	case config.DatabaseTypeSQLite:
		if dir := filepath.Dir(opts.DSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, err
			}
		}
		db, err := gorm.Open(sqlite.Open(opts.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
		for _, p := range sqliteExecPragma {
			if err := db.Exec(p).Error; err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
		return db, nil
	case config.DatabaseTypePostgres:
		db, err := gorm.Open(postgres.Open(opts.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			opts.Type, config.DatabaseTypeSQLite, config.DatabaseTypePostgres,
		)
	}
}

// Store wraps the audit database.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// New migrates the audit tables and returns a Store.
func New(ctx context.Context, db *gorm.DB, log *slog.Logger) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(models()...); err != nil {
		return nil, fmt.Errorf("migrate audit tables: %w", err)
	}
	return &Store{db: db, log: logging.Named(log, "audit")}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

func attachmentURLs(m *discordgo.Message) string {
	urls := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		urls = append(urls, a.URL)
	}
	return strings.Join(urls, "\n")
}

// RecordMessage stores a newly created guild message. Messages already
// stored are left unchanged.
func (s *Store) RecordMessage(ctx context.Context, m *discordgo.Message) error {
	if m == nil || m.GuildID == "" || m.Author == nil {
		return nil
	}
	rec := &MessageRecord{
		ID:          m.ID,
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		Content:     m.Content,
		Attachments: attachmentURLs(m),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

// RecordEdit stores the new content of m and returns the edit, or nil when
// the previous content is unknown or did not change.
func (s *Store) RecordEdit(ctx context.Context, m *discordgo.Message) (*MessageEdit, error) {
	if m == nil || m.GuildID == "" {
		return nil, nil
	}

	var edit *MessageEdit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec MessageRecord
		err := tx.Where("id = ?", m.ID).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if m.Author == nil {
				return nil
			}
			return tx.Create(&MessageRecord{
				ID:          m.ID,
				GuildID:     m.GuildID,
				ChannelID:   m.ChannelID,
				AuthorID:    m.Author.ID,
				AuthorName:  m.Author.Username,
				Content:     m.Content,
				Attachments: attachmentURLs(m),
				EditedAt:    nowMilli(),
			}).Error
		}
		if err != nil {
			return err
		}
		if rec.Content == m.Content {
			return nil
		}

		edit = &MessageEdit{
			MessageID: rec.ID,
			GuildID:   rec.GuildID,
			ChannelID: rec.ChannelID,
			AuthorID:  rec.AuthorID,
			Before:    rec.Content,
			After:     m.Content,
		}
		if err := tx.Create(edit).Error; err != nil {
			return err
		}
		return tx.Model(&rec).Updates(map[string]any{"content": m.Content, "edited_at": nowMilli()}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record edit of %s: %w", m.ID, err)
	}
	return edit, nil
}

// RecordDelete marks a message as removed and returns its last known
// state, or nil when it was never stored.
func (s *Store) RecordDelete(ctx context.Context, messageID string) (*MessageRecord, error) {
	var rec MessageRecord
	err := s.db.WithContext(ctx).Where("id = ?", messageID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.RemovedAt = nowMilli()
	if err := s.db.WithContext(ctx).Model(&rec).Update("removed_at", rec.RemovedAt).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// LastDeleted returns the most recently removed message of a channel.
func (s *Store) LastDeleted(ctx context.Context, channelID string) (*MessageRecord, error) {
	var rec MessageRecord
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND removed_at > 0", channelID).
		Order("removed_at desc").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LogCommand stores one command invocation.
func (s *Store) LogCommand(ctx context.Context, entry *CommandLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// RecentCommands returns the newest invocations in a guild.
func (s *Store) RecentCommands(ctx context.Context, guildID string, limit int) ([]CommandLog, error) {
	var logs []CommandLog
	err := s.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// AddChangelog stores a new release note.
func (s *Store) AddChangelog(ctx context.Context, version, body, authorID string) (*ChangelogEntry, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ChangelogEntry{}).Where("version = ?", version).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
	}
	entry := &ChangelogEntry{Version: version, Body: body, AuthorID: authorID}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// LatestChangelog returns the newest release note, or nil.
func (s *Store) LatestChangelog(ctx context.Context) (*ChangelogEntry, error) {
	var entry ChangelogEntry
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Changelog returns the note for version, or nil.
func (s *Store) Changelog(ctx context.Context, version string) (*ChangelogEntry, error) {
	var entry ChangelogEntry
	err := s.db.WithContext(ctx).Where("version = ?", version).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkChangelogDelivery stores the broadcast result of an entry.
func (s *Store) MarkChangelogDelivery(ctx context.Context, id uint, delivered, failed, skipped int) error {
	return s.db.WithContext(ctx).Model(&ChangelogEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{"delivered": delivered, "failed": failed, "skipped": skipped}).Error
}

// PruneMessages deletes stored messages and edits created before cutoff.
func (s *Store) PruneMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff.UnixMilli()).Delete(&MessageEdit{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		res = tx.Where("created_at < ?", cutoff.UnixMilli()).Delete(&MessageRecord{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

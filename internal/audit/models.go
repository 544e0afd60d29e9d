package audit

import "time"

// ModelUnixTime stores creation and update times as Unix milliseconds.
type ModelUnixTime struct {
	CreatedAt int64 `gorm:"autoCreateTime:milli;index" json:"created_at,omitempty"`
	UpdatedAt int64 `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
}

// Created returns CreatedAt as a time.Time.
func (m ModelUnixTime) Created() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// MessageRecord is the last known state of a guild message.
type MessageRecord struct {
	ID          string `gorm:"primaryKey" json:"id"`
	GuildID     string `gorm:"index" json:"guild_id"`
	ChannelID   string `gorm:"index" json:"channel_id"`
	AuthorID    string `gorm:"index" json:"author_id"`
	AuthorName  string `json:"author_name"`
	Content     string `json:"content"`
	Attachments string `json:"attachments"` // newline separated URLs
	EditedAt    int64  `json:"edited_at,omitempty"`
	RemovedAt   int64  `gorm:"index" json:"removed_at,omitempty"`
	ModelUnixTime
}

// MessageEdit is one observed content change of a message.
type MessageEdit struct {
	ModelUintID
	MessageID string `gorm:"index" json:"message_id"`
	GuildID   string `gorm:"index" json:"guild_id"`
	ChannelID string `json:"channel_id"`
	AuthorID  string `json:"author_id"`
	Before    string `json:"before"`
	After     string `json:"after"`
	ModelUnixTime
}

type ChangeKind string

const (
	ChangeUsername   ChangeKind = "username"
	ChangeGlobalName ChangeKind = "global_name"
	ChangeNickname   ChangeKind = "nickname"
	ChangeAvatar     ChangeKind = "avatar"
)

// NameChange records a username, display name or nickname change. GuildID
// is empty for account-wide names.
type NameChange struct {
	ModelUintID
	UserID  string     `gorm:"index" json:"user_id"`
	GuildID string     `gorm:"index" json:"guild_id"`
	Kind    ChangeKind `json:"kind"`
	Before  string     `json:"before"`
	After   string     `json:"after"`
	ModelUnixTime
}

// AvatarChange records an avatar hash change together with the URL of the
// new avatar at the time it was seen.
type AvatarChange struct {
	ModelUintID
	UserID string `gorm:"index" json:"user_id"`
	Before string `json:"before"`
	After  string `json:"after"`
	URL    string `json:"url"`
	ModelUnixTime
}

// UserSnapshot is the last observed account state of a user.
type UserSnapshot struct {
	UserID     string `gorm:"primaryKey" json:"user_id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	ModelUnixTime
}

// MemberSnapshot is the last observed nickname of a user in a guild.
type MemberSnapshot struct {
	GuildID string `gorm:"primaryKey" json:"guild_id"`
	UserID  string `gorm:"primaryKey" json:"user_id"`
	Nick    string `json:"nick"`
	ModelUnixTime
}

// CommandLog is one command invocation. Outcome is "ok", "error" or the
// key of the check that denied it.
type CommandLog struct {
	ModelUintID
	GuildID   string `gorm:"index" json:"guild_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `gorm:"index" json:"user_id"`
	Command   string `gorm:"index" json:"command"`
	Args      string `json:"args"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	Duration  int64  `json:"duration_ms"`
	ModelUnixTime
}

// ChangelogEntry is a release note published with the changelog command.
type ChangelogEntry struct {
	ModelUintID
	Version   string `gorm:"uniqueIndex" json:"version"`
	Body      string `json:"body"`
	AuthorID  string `json:"author_id"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	// Skipped counts guilds without a changelog channel.
	Skipped int `json:"skipped"`
	ModelUnixTime
}

func models() []any {
	return []any{
		&MessageRecord{},
		&MessageEdit{},
		&NameChange{},
		&AvatarChange{},
		&UserSnapshot{},
		&MemberSnapshot{},
		&CommandLog{},
		&ChangelogEntry{},
	}
}

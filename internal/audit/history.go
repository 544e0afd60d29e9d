package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"
)

// Change is one difference between a stored snapshot and a newly observed
// user or member.
type Change struct {
	Kind    ChangeKind
	UserID  string
	GuildID string
	Before  string
	After   string
	// URL is the new avatar URL for avatar changes.
	URL string
}

// ObserveUser compares u with its stored snapshot, records name and avatar
// changes and updates the snapshot. The first full observation of a user
// only stores the snapshot; partial users without a username are ignored
// until then.
func (s *Store) ObserveUser(ctx context.Context, u *discordgo.User) ([]Change, error) {
	if u == nil || u.ID == "" || u.Bot {
		return nil, nil
	}

	var changes []Change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snap UserSnapshot
		err := tx.Where("user_id = ?", u.ID).Take(&snap).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A partial user has nothing to compare against later.
			if u.Username == "" {
				return nil
			}
			return tx.Create(&UserSnapshot{
				UserID:     u.ID,
				Username:   u.Username,
				GlobalName: u.GlobalName,
				Avatar:     u.Avatar,
			}).Error
		}
		if err != nil {
			return err
		}
		if snap.Username == "" {
			if u.Username == "" {
				return nil
			}
			snap.Username, snap.GlobalName, snap.Avatar = u.Username, u.GlobalName, u.Avatar
			return tx.Save(&snap).Error
		}

		// Partial user objects from presence updates leave fields empty.
		if u.Username != "" && u.Username != snap.Username {
			changes = append(changes, Change{Kind: ChangeUsername, UserID: u.ID, Before: snap.Username, After: u.Username})
			snap.Username = u.Username
		}
		if u.GlobalName != snap.GlobalName && (u.GlobalName != "" || u.Username != "") {
			changes = append(changes, Change{Kind: ChangeGlobalName, UserID: u.ID, Before: snap.GlobalName, After: u.GlobalName})
			snap.GlobalName = u.GlobalName
		}
		if u.Avatar != snap.Avatar && (u.Avatar != "" || u.Username != "") {
			changes = append(changes, Change{Kind: ChangeAvatar, UserID: u.ID, Before: snap.Avatar, After: u.Avatar, URL: u.AvatarURL("1024")})
			snap.Avatar = u.Avatar
		}
		if len(changes) == 0 {
			return nil
		}

		for _, c := range changes {
			if c.Kind == ChangeAvatar {
				err = tx.Create(&AvatarChange{UserID: c.UserID, Before: c.Before, After: c.After, URL: c.URL}).Error
			} else {
				err = tx.Create(&NameChange{UserID: c.UserID, Kind: c.Kind, Before: c.Before, After: c.After}).Error
			}
			if err != nil {
				return err
			}
		}
		return tx.Save(&snap).Error
	})
	if err != nil {
		return nil, fmt.Errorf("observe user %s: %w", u.ID, err)
	}
	return changes, nil
}

// ObserveMember compares the nickname of m in guildID with the stored
// snapshot and records a change when it differs.
func (s *Store) ObserveMember(ctx context.Context, guildID string, m *discordgo.Member) ([]Change, error) {
	if m == nil || m.User == nil || m.User.Bot || guildID == "" {
		return nil, nil
	}

	var changes []Change
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snap MemberSnapshot
		err := tx.Where("guild_id = ? AND user_id = ?", guildID, m.User.ID).Take(&snap).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&MemberSnapshot{GuildID: guildID, UserID: m.User.ID, Nick: m.Nick}).Error
		}
		if err != nil {
			return err
		}
		if snap.Nick == m.Nick {
			return nil
		}

		c := Change{Kind: ChangeNickname, UserID: m.User.ID, GuildID: guildID, Before: snap.Nick, After: m.Nick}
		if err := tx.Create(&NameChange{UserID: c.UserID, GuildID: guildID, Kind: c.Kind, Before: c.Before, After: c.After}).Error; err != nil {
			return err
		}
		changes = append(changes, c)
		return tx.Model(&snap).
			Where("guild_id = ? AND user_id = ?", guildID, m.User.ID).
			Update("nick", m.Nick).Error
	})
	if err != nil {
		return nil, fmt.Errorf("observe member %s: %w", m.User.ID, err)
	}
	return changes, nil
}

// ForgetMember drops the nickname snapshot of a user who left a guild.
func (s *Store) ForgetMember(ctx context.Context, guildID, userID string) error {
	return s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Delete(&MemberSnapshot{}).Error
}

// NameHistory returns account-wide name changes plus nickname changes in
// guildID, newest first.
func (s *Store) NameHistory(ctx context.Context, userID, guildID string, limit int) ([]NameChange, error) {
	var rows []NameChange
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND (guild_id = '' OR guild_id = ?)", userID, guildID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// AvatarHistory returns avatar changes of a user, newest first.
func (s *Store) AvatarHistory(ctx context.Context, userID string, limit int) ([]AvatarChange, error) {
	var rows []AvatarChange
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

package ui_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server-warden/internal/ui"
	"server-warden/internal/ui/uitest"
	"server-warden/internal/waiter"
)

func setup() (*uitest.Messenger, *uitest.Script, *ui.Conversation) {
	m := &uitest.Messenger{}
	s := uitest.NewScript(m)
	return m, s, uitest.Conversation(m, s)
}

func TestMenuPick(t *testing.T) {
	m, s, c := setup()
	s.Pick(1)

	idx, err := c.Menu(context.Background(), "Settings", "Choose", []string{"Prefix", "Language", "Exit"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	require.NoError(t, s.Err())

	sent := m.Last()
	assert.Contains(t, sent.Embed.Description, "2️⃣ Language")
	assert.Equal(t, []string{"1️⃣", "2️⃣", "3️⃣", ui.EmojiCancel}, sent.Reactions)
	assert.True(t, sent.Deleted)
}

func TestMenuPaging(t *testing.T) {
	m, s, c := setup()
	options := make([]string, 12)
	for i := range options {
		options[i] = fmt.Sprintf("option %d", i+1)
	}
	s.React(ui.EmojiNext).Pick(5).Pick(2)

	idx, err := c.Menu(context.Background(), "Commands", "", options)
	require.NoError(t, err)
	assert.Equal(t, 11, idx, "6️⃣ on page two does not exist, 3️⃣ is option 12")

	sent := m.Last()
	assert.Contains(t, sent.Reactions, ui.EmojiPrev)
	assert.Contains(t, sent.Embed.Footer.Text, "Page 2/2")
	assert.NotContains(t, sent.Embed.Description, "option 1\n")
}

func TestMenuCancelAndTimeout(t *testing.T) {
	_, s, c := setup()
	s.No()
	_, err := c.Menu(context.Background(), "t", "", []string{"a"})
	assert.ErrorIs(t, err, ui.ErrCancelled)

	_, err = c.Menu(context.Background(), "t", "", []string{"a"})
	assert.ErrorIs(t, err, ui.ErrTimeout)

	_, err = c.Menu(context.Background(), "t", "", nil)
	assert.ErrorIs(t, err, ui.ErrNoOptions)
}

func TestPromptValidation(t *testing.T) {
	m, s, c := setup()
	s.Say("toolong").Say("ok")

	answer, err := c.Prompt(context.Background(), "Prefix", "New prefix?", func(v string) error {
		if len(v) > 5 {
			return errors.New("Too long.")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
	assert.Contains(t, m.Last().Embed.Description, "Too long. Try again (2 left).")
	assert.Equal(t, "Type cancel to cancel.", m.Last().Embed.Footer.Text)
}

func TestPromptGivesUp(t *testing.T) {
	_, s, c := setup()
	s.Say("a").Say("b").Say("c")
	_, err := c.Prompt(context.Background(), "t", "q", func(string) error { return errors.New("no") })
	assert.ErrorIs(t, err, ui.ErrAttempts)
	assert.True(t, ui.Finished(err))
}

func TestPromptAbort(t *testing.T) {
	m, s, c := setup()
	s.Say("x").Say("unused")
	dbErr := errors.New("database is locked")

	_, err := c.Prompt(context.Background(), "t", "q", func(string) error { return ui.Abort(dbErr) })
	assert.ErrorIs(t, err, dbErr)
	assert.False(t, ui.Finished(err))
	assert.Equal(t, 1, s.Remaining(), "not asked again")
	assert.False(t, m.Contains("database is locked"))
}

func TestPromptCancelWord(t *testing.T) {
	_, s, c := setup()
	s.Say("  CANCEL ")
	_, err := c.Prompt(context.Background(), "t", "q", nil)
	assert.ErrorIs(t, err, ui.ErrCancelled)
}

func TestConfirm(t *testing.T) {
	_, s, c := setup()
	s.Yes().No()

	ok, err := c.Confirm(context.Background(), "Save?", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Confirm(context.Background(), "Save?", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversationWithWaiter(t *testing.T) {
	m := &uitest.Messenger{}
	w := waiter.New()
	c := &ui.Conversation{Messenger: m, Events: w, ChannelID: "c", UserID: "u", Timeout: time.Second, Texts: ui.DefaultTexts()}

	go func() {
		assert.Eventually(t, func() bool { _, r := w.Pending(); return r == 1 }, time.Second, time.Millisecond)
		w.DispatchReaction(&discordgo.MessageReaction{MessageID: m.LastID(), UserID: "other", Emoji: discordgo.Emoji{Name: ui.EmojiConfirm}})
		w.DispatchReaction(&discordgo.MessageReaction{MessageID: m.LastID(), UserID: "u", Emoji: discordgo.Emoji{Name: "🎉"}})
		w.DispatchReaction(&discordgo.MessageReaction{MessageID: m.LastID(), UserID: "u", Emoji: discordgo.Emoji{Name: ui.EmojiConfirm}})
	}()

	ok, err := c.Confirm(context.Background(), "Really?", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

// clickingMessenger lets the user react while the controls are still
// being added.
type clickingMessenger struct {
	*uitest.Messenger
	w     *waiter.Waiter
	at    int
	emoji string
	added int
}

func (m *clickingMessenger) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	m.added++
	if m.added == m.at {
		m.w.DispatchReaction(&discordgo.MessageReaction{MessageID: messageID, UserID: "u", Emoji: discordgo.Emoji{Name: m.emoji}})
	}
	return m.Messenger.AddReaction(ctx, channelID, messageID, emoji)
}

func TestMenuKeepsClickDuringSetup(t *testing.T) {
	w := waiter.New()
	m := &clickingMessenger{Messenger: &uitest.Messenger{}, w: w, at: 2, emoji: "1️⃣"}
	c := &ui.Conversation{Messenger: m, Events: w, ChannelID: "c", UserID: "u", Timeout: 200 * time.Millisecond, Texts: ui.DefaultTexts()}

	idx, err := c.Menu(context.Background(), "t", "", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Zero(t, idx)
	_, pending := w.Pending()
	assert.Zero(t, pending, "subscription ends with the menu")
}

func TestConfirmKeepsClickDuringSetup(t *testing.T) {
	w := waiter.New()
	m := &clickingMessenger{Messenger: &uitest.Messenger{}, w: w, at: 1, emoji: ui.EmojiConfirm}
	c := &ui.Conversation{Messenger: m, Events: w, ChannelID: "c", UserID: "u", Timeout: 200 * time.Millisecond, Texts: ui.DefaultTexts()}

	ok, err := c.Confirm(context.Background(), "t", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParentCancellation(t *testing.T) {
	m := &uitest.Messenger{}
	w := waiter.New()
	c := &ui.Conversation{Messenger: m, Events: w, ChannelID: "c", UserID: "u", Timeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool { n, _ := w.Pending(); return n == 1 }, time.Second, time.Millisecond)
		cancel()
	}()
	_, err := c.Prompt(ctx, "t", "q", nil)
	assert.ErrorIs(t, err, ui.ErrCancelled)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", ui.Truncate("abc", 3))
	assert.Equal(t, "ab…", ui.Truncate("abcd", 3))
	assert.Equal(t, "пр…", ui.Truncate("привет", 3))
}

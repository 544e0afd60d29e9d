// Package ui implements the interactive building blocks of the wizards:
// numbered reaction menus, free-text prompts and yes/no confirmations.
// Every step waits for the invoking user only and gives up after the
// conversation's timeout.
package ui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/locale"
)

var (
	ErrCancelled = errors.New("ui: cancelled")
	ErrTimeout   = errors.New("ui: timed out")
	ErrAttempts  = errors.New("ui: too many invalid answers")
	ErrNoOptions = errors.New("ui: menu has no options")
)

const (
	EmojiPrev    = "◀️"
	EmojiNext    = "▶️"
	EmojiCancel  = "❌"
	EmojiConfirm = "✅"

	// PageSize is the number of options shown per menu page.
	PageSize = 9
	// MaxAttempts is how often a prompt accepts an invalid answer.
	MaxAttempts = 3

	DefaultColor   = 0x5865F2
	DefaultTimeout = 2 * time.Minute

	maxDescription = 4096
)

var keycaps = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

// Keycap returns the emoji of option i on a page.
func Keycap(i int) string {
	return keycaps[i%PageSize]
}

// Messenger sends and edits the messages a conversation shows.
type Messenger interface {
	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	EditEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
}

// Events delivers the user's answers. Reactions subscribes before the
// menu's controls are added, so a click that lands while the bot is still
// reacting is not lost; next blocks for the following match and stop ends
// the subscription.
type Events interface {
	Message(ctx context.Context, match func(*discordgo.Message) bool) (*discordgo.Message, error)
	Reactions(match func(*discordgo.MessageReaction) bool) (next func(context.Context) (*discordgo.MessageReaction, error), stop func())
}

// Texts are the localized fragments the primitives render themselves.
// Placeholders: {cancel}, {page}, {pages}, {error}, {left}.
type Texts struct {
	MenuFooter    string
	PromptFooter  string
	ConfirmFooter string
	Page          string
	Invalid       string
}

func DefaultTexts() Texts {
	return Texts{
		MenuFooter:    "React with a number to choose, ❌ to cancel.",
		PromptFooter:  "Type {cancel} to cancel.",
		ConfirmFooter: "✅ yes · ❌ no",
		Page:          "Page {page}/{pages}",
		Invalid:       "{error} Try again ({left} left).",
	}
}

// Conversation is one user talking to the bot in one channel.
type Conversation struct {
	Messenger   Messenger
	Events      Events
	ChannelID   string
	UserID      string
	Timeout     time.Duration
	Color       int
	CancelWords []string
	Texts       Texts
}

func (c *Conversation) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Conversation) color() int {
	if c.Color == 0 {
		return DefaultColor
	}
	return c.Color
}

// Embed builds an embed in the conversation's color.
func (c *Conversation) Embed(title, description, footer string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: Truncate(description, maxDescription),
		Color:       c.color(),
	}
	if footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return e
}

// Notify shows a message without waiting for an answer.
func (c *Conversation) Notify(ctx context.Context, title, description string) error {
	_, err := c.Messenger.SendEmbed(ctx, c.ChannelID, c.Embed(title, description, ""))
	return err
}

// Menu shows options as a numbered list and returns the index picked by
// reaction. Lists longer than PageSize are paged.
func (c *Conversation) Menu(ctx context.Context, title, description string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, ErrNoOptions
	}
	pages := (len(options) + PageSize - 1) / PageSize
	page := 0

	id, err := c.Messenger.SendEmbed(ctx, c.ChannelID, c.menuEmbed(title, description, options, page, pages))
	if err != nil {
		return -1, err
	}
	defer c.discard(id)

	controls := slices.Clone(keycaps[:min(PageSize, len(options))])
	if pages > 1 {
		controls = append(controls, EmojiPrev, EmojiNext)
	}
	controls = append(controls, EmojiCancel)
	next, stop := c.subscribe(id, controls)
	defer stop()
	if err := c.addControls(ctx, id, controls); err != nil {
		return -1, err
	}

	for {
		r, err := c.reaction(ctx, next)
		if err != nil {
			return -1, err
		}
		switch name := r.Emoji.Name; name {
		case EmojiCancel:
			return -1, ErrCancelled
		case EmojiPrev:
			page = (page - 1 + pages) % pages
		case EmojiNext:
			page = (page + 1) % pages
		default:
			idx := page*PageSize + slices.Index(keycaps, name)
			if idx < len(options) {
				return idx, nil
			}
		}
		_ = c.Messenger.RemoveReaction(ctx, c.ChannelID, id, r.Emoji.Name, c.UserID)
		if err := c.Messenger.EditEmbed(ctx, c.ChannelID, id, c.menuEmbed(title, description, options, page, pages)); err != nil {
			return -1, err
		}
	}
}

func (c *Conversation) menuEmbed(title, description string, options []string, page, pages int) *discordgo.MessageEmbed {
	var b strings.Builder
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n\n")
	}
	start := page * PageSize
	end := min(start+PageSize, len(options))
	for i, opt := range options[start:end] {
		fmt.Fprintf(&b, "%s %s\n", keycaps[i], opt)
	}

	footer := c.Texts.MenuFooter
	if pages > 1 {
		footer += " · " + locale.Substitute(c.Texts.Page, locale.Args{"page": page + 1, "pages": pages})
	}
	return c.Embed(title, strings.TrimRight(b.String(), "\n"), footer)
}

// Confirm asks a yes/no question answered with ✅ or ❌.
func (c *Conversation) Confirm(ctx context.Context, title, description string) (bool, error) {
	id, err := c.Messenger.SendEmbed(ctx, c.ChannelID, c.Embed(title, description, c.Texts.ConfirmFooter))
	if err != nil {
		return false, err
	}
	defer c.discard(id)

	controls := []string{EmojiConfirm, EmojiCancel}
	next, stop := c.subscribe(id, controls)
	defer stop()
	if err := c.addControls(ctx, id, controls); err != nil {
		return false, err
	}
	r, err := c.reaction(ctx, next)
	if err != nil {
		return false, err
	}
	return r.Emoji.Name == EmojiConfirm, nil
}

type abortError struct{ err error }

func (a *abortError) Error() string { return a.err.Error() }
func (a *abortError) Unwrap() error { return a.err }

// Abort marks a validation failure that is not the user's fault, such as a
// failed lookup. Prompt returns err at once instead of asking again.
func Abort(err error) error {
	return &abortError{err: err}
}

// Prompt asks for a free-text answer. validate may be nil; when it
// rejects an answer the question is asked again, up to MaxAttempts times.
func (c *Conversation) Prompt(ctx context.Context, title, question string, validate func(string) error) (string, error) {
	footer := locale.Substitute(c.Texts.PromptFooter, locale.Args{"cancel": c.cancelWord()})
	description := question

	for attempt := 1; ; attempt++ {
		id, err := c.Messenger.SendEmbed(ctx, c.ChannelID, c.Embed(title, description, footer))
		if err != nil {
			return "", err
		}
		m, err := c.message(ctx)
		c.discard(id)
		if err != nil {
			return "", err
		}

		answer := strings.TrimSpace(m.Content)
		if c.isCancel(answer) {
			return "", ErrCancelled
		}
		if validate == nil {
			return answer, nil
		}
		verr := validate(answer)
		if verr == nil {
			return answer, nil
		}
		var abort *abortError
		if errors.As(verr, &abort) {
			return "", abort.err
		}
		if attempt >= MaxAttempts {
			return "", fmt.Errorf("%w: %v", ErrAttempts, verr)
		}
		description = question + "\n\n" + locale.Substitute(c.Texts.Invalid, locale.Args{
			"error": verr.Error(),
			"left":  MaxAttempts - attempt,
		})
	}
}

func (c *Conversation) cancelWord() string {
	if len(c.CancelWords) == 0 {
		return "cancel"
	}
	return c.CancelWords[0]
}

func (c *Conversation) isCancel(answer string) bool {
	if len(c.CancelWords) == 0 {
		return strings.EqualFold(answer, "cancel")
	}
	for _, w := range c.CancelWords {
		if strings.EqualFold(answer, w) {
			return true
		}
	}
	return false
}

func (c *Conversation) subscribe(messageID string, allowed []string) (func(context.Context) (*discordgo.MessageReaction, error), func()) {
	return c.Events.Reactions(func(r *discordgo.MessageReaction) bool {
		return r.MessageID == messageID && r.UserID == c.UserID && slices.Contains(allowed, r.Emoji.Name)
	})
}

func (c *Conversation) addControls(ctx context.Context, messageID string, controls []string) error {
	for _, e := range controls {
		if err := c.Messenger.AddReaction(ctx, c.ChannelID, messageID, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conversation) reaction(ctx context.Context, next func(context.Context) (*discordgo.MessageReaction, error)) (*discordgo.MessageReaction, error) {
	wctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	r, err := next(wctx)
	return r, c.waitErr(ctx, err)
}

func (c *Conversation) message(ctx context.Context) (*discordgo.Message, error) {
	wctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	m, err := c.Events.Message(wctx, func(m *discordgo.Message) bool {
		return m.ChannelID == c.ChannelID && m.Author != nil && m.Author.ID == c.UserID
	})
	return m, c.waitErr(ctx, err)
}

// waitErr maps wait failures: the step timing out is ErrTimeout, anything
// that ends the whole conversation is ErrCancelled.
func (c *Conversation) waitErr(parent context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case parent.Err() != nil:
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	}
	return fmt.Errorf("%w: %v", ErrCancelled, err)
}

// discard deletes a finished menu or prompt. The conversation may already
// be over, so it does not use the caller's context.
func (c *Conversation) discard(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = c.Messenger.DeleteMessage(ctx, c.ChannelID, messageID)
}

// Truncate shortens s to at most n runes, ending with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Finished reports whether err only means the user stopped answering.
func Finished(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrAttempts)
}

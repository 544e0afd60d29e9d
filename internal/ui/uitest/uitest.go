// Package uitest provides an in-memory Messenger and a scripted event
// source for testing conversations without Discord.
package uitest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"server-warden/internal/ui"
)

const (
	ChannelID = "2000"
	UserID    = "3000"
)

// Sent is a message sent through Messenger.
type Sent struct {
	ID        string
	ChannelID string
	Embed     *discordgo.MessageEmbed
	Edits     int
	Deleted   bool
	Reactions []string
}

// Text returns the title, description and field values of the latest embed.
func (s *Sent) Text() string {
	if s.Embed == nil {
		return ""
	}
	parts := []string{s.Embed.Title, s.Embed.Description}
	for _, f := range s.Embed.Fields {
		parts = append(parts, f.Name, f.Value)
	}
	return strings.Join(parts, "\n")
}

// Messenger records everything a conversation shows.
type Messenger struct {
	mu       sync.Mutex
	next     int
	messages []*Sent

	// SendErr, when set, is returned by SendEmbed.
	SendErr error
}

func (m *Messenger) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.next++
	s := &Sent{ID: "m" + strconv.Itoa(m.next), ChannelID: channelID, Embed: embed}
	m.messages = append(m.messages, s)
	return s.ID, nil
}

func (m *Messenger) EditEmbed(_ context.Context, _, messageID string, embed *discordgo.MessageEmbed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(messageID)
	if s == nil {
		return fmt.Errorf("unknown message %s", messageID)
	}
	s.Embed = embed
	s.Edits++
	return nil
}

func (m *Messenger) DeleteMessage(_ context.Context, _, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.find(messageID); s != nil {
		s.Deleted = true
	}
	return nil
}

func (m *Messenger) AddReaction(_ context.Context, _, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.find(messageID); s != nil {
		s.Reactions = append(s.Reactions, emoji)
	}
	return nil
}

func (m *Messenger) RemoveReaction(context.Context, string, string, string, string) error {
	return nil
}

func (m *Messenger) find(id string) *Sent {
	for _, s := range m.messages {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Messages returns every sent message in order.
func (m *Messenger) Messages() []*Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Sent(nil), m.messages...)
}

// Last returns the most recently sent message.
func (m *Messenger) Last() *Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

// LastID returns the ID of the most recently sent message.
func (m *Messenger) LastID() string {
	if s := m.Last(); s != nil {
		return s.ID
	}
	return ""
}

// Contains reports whether any sent message mentions text.
func (m *Messenger) Contains(text string) bool {
	for _, s := range m.Messages() {
		if strings.Contains(s.Text(), text) {
			return true
		}
	}
	return false
}

type step struct {
	text  string
	emoji string
}

// Script answers waits in order. Reactions target the latest sent
// message. Once exhausted every wait times out.
type Script struct {
	mu        sync.Mutex
	messenger *Messenger
	steps     []step
	errs      []string
}

func NewScript(m *Messenger) *Script {
	return &Script{messenger: m}
}

// Say queues a text answer.
func (s *Script) Say(text string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{text: text})
	return s
}

// React queues a reaction.
func (s *Script) React(emoji string) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step{emoji: emoji})
	return s
}

// Pick queues the reaction for option i of the current menu page.
func (s *Script) Pick(i int) *Script {
	return s.React(ui.Keycap(i))
}

func (s *Script) Yes() *Script { return s.React(ui.EmojiConfirm) }
func (s *Script) No() *Script  { return s.React(ui.EmojiCancel) }

// Remaining returns how many answers were not consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Err reports answers that did not fit the wait they were given to.
func (s *Script) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return fmt.Errorf("script: %s", strings.Join(s.errs, "; "))
}

func (s *Script) pop() (step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return step{}, false
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st, true
}

func (s *Script) fail(format string, a ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := fmt.Sprintf(format, a...)
	s.errs = append(s.errs, msg)
	return fmt.Errorf("script: %s", msg)
}

func (s *Script) Message(ctx context.Context, match func(*discordgo.Message) bool) (*discordgo.Message, error) {
	st, ok := s.pop()
	if !ok {
		return nil, context.DeadlineExceeded
	}
	if st.emoji != "" {
		return nil, s.fail("waiting for a message, next answer is reaction %s", st.emoji)
	}
	m := &discordgo.Message{
		ID:        "answer",
		ChannelID: ChannelID,
		Content:   st.text,
		Author:    &discordgo.User{ID: UserID},
	}
	if !match(m) {
		return nil, s.fail("message %q rejected by filter", st.text)
	}
	return m, nil
}

// Reactions hands out one queued reaction per call to next.
func (s *Script) Reactions(match func(*discordgo.MessageReaction) bool) (func(context.Context) (*discordgo.MessageReaction, error), func()) {
	next := func(context.Context) (*discordgo.MessageReaction, error) {
		return s.reaction(match)
	}
	return next, func() {}
}

func (s *Script) reaction(match func(*discordgo.MessageReaction) bool) (*discordgo.MessageReaction, error) {
	st, ok := s.pop()
	if !ok {
		return nil, context.DeadlineExceeded
	}
	if st.emoji == "" {
		return nil, s.fail("waiting for a reaction, next answer is message %q", st.text)
	}
	r := &discordgo.MessageReaction{
		MessageID: s.messenger.LastID(),
		ChannelID: ChannelID,
		UserID:    UserID,
		Emoji:     discordgo.Emoji{Name: st.emoji},
	}
	if !match(r) {
		return nil, s.fail("reaction %s rejected by filter", st.emoji)
	}
	return r, nil
}

// Conversation wires a Messenger and Script into a ui.Conversation.
func Conversation(m *Messenger, s *Script) *ui.Conversation {
	return &ui.Conversation{
		Messenger:   m,
		Events:      s,
		ChannelID:   ChannelID,
		UserID:      UserID,
		CancelWords: []string{"cancel"},
		Texts:       ui.DefaultTexts(),
	}
}

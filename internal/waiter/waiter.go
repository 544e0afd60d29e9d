// Package waiter lets interactive commands block until the next chat
// message that matches a filter, or subscribe to the reactions on a menu.
// The gateway handlers feed every event through Dispatch*, which hands it
// to the oldest matching waiter.
package waiter

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"
)

var ErrClosed = errors.New("waiter: closed")

// subscriptionBuffer is how many reactions a subscription holds before
// further ones are dropped.
const subscriptionBuffer = 16

type pending[T any] struct {
	match func(T) bool
	ch    chan T
	// keep leaves the entry queued after a delivery.
	keep bool
}

type queue[T any] struct {
	mu    sync.Mutex
	waits []*pending[T]
}

func (q *queue[T]) add(match func(T) bool) *pending[T] {
	return q.push(&pending[T]{match: match, ch: make(chan T, 1)})
}

func (q *queue[T]) push(p *pending[T]) *pending[T] {
	q.mu.Lock()
	q.waits = append(q.waits, p)
	q.mu.Unlock()
	return p
}

// remove reports whether p was still queued.
func (q *queue[T]) remove(p *pending[T]) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waits {
		if w == p {
			q.waits = append(q.waits[:i], q.waits[i+1:]...)
			return true
		}
	}
	return false
}

func (q *queue[T]) dispatch(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waits {
		if !w.match(v) {
			continue
		}
		if w.keep {
			select {
			case w.ch <- v:
			default:
			}
			return true
		}
		q.waits = append(q.waits[:i], q.waits[i+1:]...)
		w.ch <- v
		return true
	}
	return false
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waits)
}

func wait[T any](ctx context.Context, done <-chan struct{}, q *queue[T], match func(T) bool) (T, error) {
	var zero T
	select {
	case <-done:
		return zero, ErrClosed
	default:
	}

	p := q.add(match)
	select {
	case v := <-p.ch:
		return v, nil
	case <-ctx.Done():
		if !q.remove(p) {
			// Delivered concurrently with cancellation; keep the event.
			return <-p.ch, nil
		}
		return zero, ctx.Err()
	case <-done:
		if !q.remove(p) {
			return <-p.ch, nil
		}
		return zero, ErrClosed
	}
}

// Waiter is safe for concurrent use.
type Waiter struct {
	messages  queue[*discordgo.Message]
	reactions queue[*discordgo.MessageReaction]

	closeOnce sync.Once
	done      chan struct{}
}

func New() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

// Message blocks until a dispatched message satisfies match.
func (w *Waiter) Message(ctx context.Context, match func(*discordgo.Message) bool) (*discordgo.Message, error) {
	return wait(ctx, w.done, &w.messages, match)
}

// Reactions subscribes to every reaction that satisfies match until stop
// is called. The subscription is live from the moment it returns, so
// reactions added while the caller is still busy are kept. next blocks for
// the following reaction.
func (w *Waiter) Reactions(match func(*discordgo.MessageReaction) bool) (next func(context.Context) (*discordgo.MessageReaction, error), stop func()) {
	p := w.reactions.push(&pending[*discordgo.MessageReaction]{
		match: match,
		ch:    make(chan *discordgo.MessageReaction, subscriptionBuffer),
		keep:  true,
	})
	next = func(ctx context.Context) (*discordgo.MessageReaction, error) {
		select {
		case r := <-p.ch:
			return r, nil
		default:
		}
		select {
		case r := <-p.ch:
			return r, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.done:
			return nil, ErrClosed
		}
	}
	stop = func() { w.reactions.remove(p) }
	return next, stop
}

// DispatchMessage reports whether a waiter consumed m.
func (w *Waiter) DispatchMessage(m *discordgo.Message) bool {
	if m == nil {
		return false
	}
	return w.messages.dispatch(m)
}

// DispatchReaction reports whether a waiter consumed r.
func (w *Waiter) DispatchReaction(r *discordgo.MessageReaction) bool {
	if r == nil {
		return false
	}
	return w.reactions.dispatch(r)
}

// Pending returns the number of waiting message and reaction waits,
// reaction subscriptions included.
func (w *Waiter) Pending() (messages, reactions int) {
	return w.messages.len(), w.reactions.len()
}

// Close wakes every waiter with ErrClosed.
func (w *Waiter) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

// FromUser matches messages by author in a channel.
func FromUser(channelID, userID string) func(*discordgo.Message) bool {
	return func(m *discordgo.Message) bool {
		return m.ChannelID == channelID && m.Author != nil && m.Author.ID == userID
	}
}

// OnMessage matches reactions by user on one message.
func OnMessage(messageID, userID string) func(*discordgo.MessageReaction) bool {
	return func(r *discordgo.MessageReaction) bool {
		return r.MessageID == messageID && r.UserID == userID
	}
}

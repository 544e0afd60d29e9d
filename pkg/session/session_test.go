package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = Key{GuildID: "1", ChannelID: "2", UserID: "3"}

func TestRunRejectsSecondSession(t *testing.T) {
	var mu sync.Mutex
	var events []string
	m := NewManager(func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	})

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background(), key, "config", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := m.Run(context.Background(), key, "limits", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	other := Key{GuildID: "1", ChannelID: "2", UserID: "4"}
	assert.NoError(t, m.Run(context.Background(), other, "limits", func(context.Context) error { return nil }))

	assert.True(t, m.Running(key))
	active := m.Active()
	require.Len(t, active, 1, "finished sessions are not listed")
	assert.Equal(t, "config", active[0].Name)
	assert.Equal(t, key, active[0].Key)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, m.Running(key))
	assert.Empty(t, m.Active())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, "running:config:1:2:3")
	assert.Contains(t, events, "done:config:1:2:3")
}

func TestStopCancelsContext(t *testing.T) {
	m := NewManager(nil)
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background(), key, "setup", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-started

	require.NoError(t, m.Stop(key))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop")
	}
	assert.ErrorIs(t, m.Stop(key), ErrNotRunning)
}

func TestStopAll(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	var ready sync.WaitGroup
	for _, user := range []string{"a", "b"} {
		wg.Add(1)
		ready.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Run(context.Background(), Key{UserID: user}, "wizard", func(ctx context.Context) error {
				ready.Done()
				<-ctx.Done()
				return nil
			})
		}()
	}
	ready.Wait()

	assert.Len(t, m.Active(), 2)
	assert.Equal(t, 2, m.StopAll())
	wg.Wait()
	assert.Empty(t, m.Active())
}

func TestRunReturnsError(t *testing.T) {
	m := NewManager(nil)
	boom := errors.New("boom")
	err := m.Run(context.Background(), key, "x", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Running(key))
}

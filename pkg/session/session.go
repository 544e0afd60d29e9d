// Package session tracks interactive sessions such as configuration
// wizards, so a user runs at most one of them per channel at a time.
//
// Typical usage:
//
//	sm := session.NewManager(func(msg string) {
//	    log.Debug("session", "event", msg)
//	})
//
//	err := sm.Run(ctx, key, "config", func(ctx context.Context) error {
//	    // ask questions until ctx is cancelled
//	    return nil
//	})
//
//	// elsewhere...
//	_ = sm.Stop(key)
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrBusy       = errors.New("session already running")
	ErrNotRunning = errors.New("session not running")
)

// Key identifies who runs a session and where.
type Key struct {
	GuildID   string
	ChannelID string
	UserID    string
}

func (k Key) String() string {
	return k.GuildID + ":" + k.ChannelID + ":" + k.UserID
}

// Session is a running unit of interactive work.
type Session struct {
	Key     Key
	Name    string
	Started time.Time
	cancel  context.CancelFunc
}

// StatusReporter receives lifecycle events for sessions.
// Example messages:
//
//	running:config:1:2:3
//	error:config:1:2:3:some failure
//	done:config:1:2:3
type StatusReporter func(string)

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	Reporter StatusReporter
}

// NewManager creates a Manager. The reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		sessions: make(map[Key]*Session),
		Reporter: reporter,
	}
}

// Run executes fn in the calling goroutine with a context that Stop cancels.
// It fails with ErrBusy when key already has a session.
func (m *Manager) Run(parent context.Context, key Key, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s := &Session{Key: key, Name: name, Started: time.Now(), cancel: cancel}

	m.mu.Lock()
	if cur, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, cur.Name)
	}
	m.sessions[key] = s
	m.mu.Unlock()

	tag := name + ":" + key.String()
	m.report("running:" + tag)

	err := fn(ctx)
	if err != nil {
		m.report("error:" + tag + ":" + err.Error())
	} else {
		m.report("done:" + tag)
	}

	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	return err
}

// Stop cancels the session of key.
func (m *Manager) Stop(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return ErrNotRunning
	}
	s.cancel()
	delete(m.sessions, key)
	return nil
}

// StopAll cancels every session and returns how many were running.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.sessions)
	for k, s := range m.sessions {
		s.cancel()
		delete(m.sessions, k)
	}
	return n
}

// Running reports whether key has a session.
func (m *Manager) Running(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok
}

// Active returns the running sessions ordered by start time.
func (m *Manager) Active() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Session{Key: s.Key, Name: s.Name, Started: s.Started})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}

package guildconfig

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"server-warden/datastore"
	"server-warden/pkg/keymu"
)

// Defaults are applied to guilds without a stored document.
type Defaults struct {
	Prefix   string
	Language string
}

// Store caches guild documents in memory and persists every update through
// the datastore. Updates for the same guild are serialized.
type Store struct {
	ds        *datastore.DataStore
	defaults  Defaults
	languages func(string) bool
	validate  *validator.Validate
	log       *slog.Logger

	mu    sync.RWMutex
	cache map[string]*GuildConfig
	locks *keymu.Map[string]
}

type Option func(*Store)

// WithLanguages restricts Language to codes accepted by known.
func WithLanguages(known func(string) bool) Option {
	return func(s *Store) { s.languages = known }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

func NewStore(ds *datastore.DataStore, defaults Defaults, opts ...Option) *Store {
	s := &Store{
		ds:       ds,
		defaults: defaults,
		validate: newValidator(),
		log:      slog.Default(),
		cache:    make(map[string]*GuildConfig),
		locks:    keymu.New[string](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the guild's configuration, or defaults when the
// guild has none stored. Callers may modify the copy freely.
func (s *Store) Get(guildID string) (*GuildConfig, error) {
	c, _, err := s.load(guildID)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Exists reports whether the guild has a stored document.
func (s *Store) Exists(guildID string) (bool, error) {
	_, stored, err := s.load(guildID)
	return stored, err
}

// Ensure persists the defaults for a guild that has no document yet and
// reports whether it created one.
func (s *Store) Ensure(guildID string) (bool, error) {
	u := s.locks.Lock(guildID)
	defer u.Unlock()

	c, stored, err := s.load(guildID)
	if err != nil || stored {
		return false, err
	}
	if err := s.save(c); err != nil {
		return false, err
	}
	return true, nil
}

// Update applies fn to a copy of the guild's configuration, validates the
// result and saves it. Nothing is saved when fn returns an error.
func (s *Store) Update(guildID string, fn func(*GuildConfig) error) (*GuildConfig, error) {
	u := s.locks.Lock(guildID)
	defer u.Unlock()

	current, _, err := s.load(guildID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.GuildID = guildID
	next.normalize()

	if err := s.Validate(next); err != nil {
		return nil, err
	}
	if err := s.save(next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Reload drops the cached copy so the next Get reads the file again.
func (s *Store) Reload(guildID string) error {
	s.mu.Lock()
	delete(s.cache, guildID)
	s.mu.Unlock()
	_, _, err := s.load(guildID)
	return err
}

// ReloadAll drops every cached copy.
func (s *Store) ReloadAll() {
	s.mu.Lock()
	s.cache = make(map[string]*GuildConfig)
	s.mu.Unlock()
}

func (s *Store) Delete(guildID string) error {
	u := s.locks.Lock(guildID)
	defer u.Unlock()

	if err := s.ds.Delete(guildID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, guildID)
	s.mu.Unlock()
	return nil
}

// Guilds lists guild IDs with a stored document.
func (s *Store) Guilds() ([]string, error) {
	return s.ds.Keys()
}

// Validate checks a configuration before it is saved.
func (s *Store) Validate(c *GuildConfig) error {
	if err := CheckPrefix(c.Prefix); err != nil {
		return err
	}
	if s.languages != nil && !s.languages(c.Language) {
		return fmt.Errorf("%w: %s", ErrUnknownLanguage, c.Language)
	}
	if err := s.validate.Struct(c); err != nil {
		return fmt.Errorf("invalid guild configuration: %w", err)
	}
	return nil
}

// load returns the cached configuration (not a copy) and whether it exists on disk.
func (s *Store) load(guildID string) (*GuildConfig, bool, error) {
	if !IsSnowflake(guildID) {
		return nil, false, fmt.Errorf("invalid guild id %q", guildID)
	}

	s.mu.RLock()
	c, ok := s.cache[guildID]
	s.mu.RUnlock()
	if ok {
		return c, true, nil
	}

	c = Default(guildID, s.defaults.Prefix, s.defaults.Language)
	stored, err := s.ds.Load(guildID, c)
	if err != nil {
		return nil, false, fmt.Errorf("load guild %s: %w", guildID, err)
	}
	if !stored {
		return c, false, nil
	}

	c.GuildID = guildID
	c.normalize()
	if s.languages != nil && !s.languages(c.Language) {
		s.log.Warn("guild uses unknown language, falling back", "guild_id", guildID, "language", c.Language)
		c.Language = s.defaults.Language
	}

	s.mu.Lock()
	s.cache[guildID] = c
	s.mu.Unlock()
	return c, true, nil
}

func (s *Store) save(c *GuildConfig) error {
	if err := s.ds.Save(c.GuildID, c); err != nil {
		return fmt.Errorf("save guild %s: %w", c.GuildID, err)
	}
	s.mu.Lock()
	s.cache[c.GuildID] = c
	s.mu.Unlock()
	return nil
}

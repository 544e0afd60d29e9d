// Package datastore persists one JSON document per key under a directory.
// Writes go through a temporary file and an atomic rename, are verified by
// checksum, are skipped when the content did not change, and rotate a
// bounded number of timestamped backups.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const fileExt = ".json"

var (
	ErrInvalidKey = errors.New("datastore: invalid key")
	ErrClosed     = errors.New("datastore: closed")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Config holds configuration options for the DataStore
type Config struct {
	Dir         string
	BackupCount int // Number of backup files to keep per key
	Logger      *slog.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:         dir,
		BackupCount: 3,
		Logger:      slog.Default().With("logger", "datastore"),
	}
}

type DataStore struct {
	config    *Config
	mu        sync.Mutex        // serializes file operations
	checksums map[string]string // checksum of last saved or loaded content per key
	closed    bool
}

// New creates a DataStore with the default configuration.
func New(dir string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(dir))
}

// NewWithConfig creates a new DataStore with custom configuration
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &DataStore{
		config:    config,
		checksums: make(map[string]string),
	}, nil
}

// Load decodes the document stored under key into v. It reports false when
// no document exists.
func (ds *DataStore) Load(key string, v any) (bool, error) {
	if !keyPattern.MatchString(key) {
		return false, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return false, ErrClosed
	}

	data, err := os.ReadFile(ds.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("invalid JSON in %s: %w", key, err)
	}
	ds.checksums[key] = checksum(data)
	return true, nil
}

// Save writes v under key.
func (ds *DataStore) Save(key string, v any) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}

	sum := checksum(data)
	if ds.checksums[key] == sum {
		return nil
	}

	if ds.config.BackupCount > 0 {
		if err := ds.createBackup(key); err != nil {
			ds.config.Logger.Warn("failed to create backup", "key", key, "error", err)
		}
	}

	if err := ds.writeFileAtomic(ds.path(key), data); err != nil {
		return err
	}
	if err := ds.verifyFile(ds.path(key), sum); err != nil {
		return fmt.Errorf("file verification failed: %w", err)
	}

	ds.checksums[key] = sum
	return nil
}

// Delete removes the document and its backups.
func (ds *DataStore) Delete(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return ErrClosed
	}

	if err := os.Remove(ds.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	for _, b := range ds.backups(key) {
		_ = os.Remove(b.path)
	}
	delete(ds.checksums, key)
	return nil
}

// Keys lists stored keys in lexical order.
func (ds *DataStore) Keys() ([]string, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entries, err := os.ReadDir(ds.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", ds.config.Dir, err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key := strings.TrimSuffix(name, fileExt)
		if keyPattern.MatchString(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close rejects further operations.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.closed = true
	return nil
}

// Stats returns statistics about the DataStore
func (ds *DataStore) Stats() map[string]any {
	keys, _ := ds.Keys()

	ds.mu.Lock()
	defer ds.mu.Unlock()
	return map[string]any{
		"keys":   len(keys),
		"cached": len(ds.checksums),
		"dir":    ds.config.Dir,
	}
}

func (ds *DataStore) path(key string) string {
	return filepath.Join(ds.config.Dir, key+fileExt)
}

// writeFileAtomic performs atomic file write using temporary file and rename
func (ds *DataStore) writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (ds *DataStore) verifyFile(path, expected string) error {
	actual, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file for verification: %w", err)
	}
	if checksum(actual) != expected {
		return fmt.Errorf("file checksum mismatch")
	}
	return nil
}

// createBackup copies the current document aside and drops the oldest
// backups beyond BackupCount.
func (ds *DataStore) createBackup(key string) error {
	src, err := os.Open(ds.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	backupFile := fmt.Sprintf("%s.backup.%s", ds.path(key), time.Now().Format("20060102_150405.000000000"))
	dst, err := os.Create(backupFile)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	backups := ds.backups(key)
	for i := 0; i < len(backups)-ds.config.BackupCount; i++ {
		_ = os.Remove(backups[i].path)
	}
	return nil
}

type backupFile struct {
	path    string
	modTime time.Time
}

// backups returns the backups of key, oldest first.
func (ds *DataStore) backups(key string) []backupFile {
	matches, err := filepath.Glob(ds.path(key) + ".backup.*")
	if err != nil {
		return nil
	}
	files := make([]backupFile, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			files = append(files, backupFile{m, info.ModTime()})
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})
	return files
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

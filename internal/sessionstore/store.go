// Package sessionstore persists authenticated browser state per phone number.
//
// One JSON record per phone lives under the sessions directory. Writes go
// through a temp-file-then-rename cycle so a crash mid-write always leaves the
// previous record intact, and readers never observe a half-written blob.
package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a phone number.
var ErrNotFound = errors.New("session not found")

// Record is one stored authenticated session.
type Record struct {
	Phone      string    `json:"phone"`
	State      []byte    `json:"state"`
	Sealed     bool      `json:"sealed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Meta is a Record without its blob, for listings.
type Meta struct {
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Store manages session records in a single directory.
type Store struct {
	dir    string
	sealer *sealer // nil when encryption is off
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]Meta // phone -> meta; nil until first scan
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptionKey enables at-rest encryption of session blobs. The key is
// any non-empty passphrase; it is stretched to a sealing key internally.
func WithEncryptionKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.sealer = newSealer(key)
		}
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("sessions dir is required")
	}
	clean := filepath.Clean(dir)
	if err := os.MkdirAll(clean, 0700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	s := &Store{
		dir:    clean,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the on-disk root of the store.
func (s *Store) Dir() string {
	return s.dir
}

// path returns the record file for a phone number. The phone has already been
// normalized to "+<digits>" by the caller; only the digits name the file.
func (s *Store) path(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	return filepath.Join(s.dir, "session_"+digits+".json")
}

// Get loads the record for a phone. Returns ErrNotFound when absent.
func (s *Store) Get(phone string) (*Record, error) {
	raw, err := os.ReadFile(s.path(phone))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, phone)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	if rec.Sealed {
		if s.sealer == nil {
			return nil, fmt.Errorf("session for %s is encrypted but no key is configured", phone)
		}
		opened, err := s.sealer.open(rec.State)
		if err != nil {
			return nil, fmt.Errorf("unseal session: %w", err)
		}
		rec.State = opened
		rec.Sealed = false
	}
	return &rec, nil
}

// Exists reports whether a record is present for a phone.
func (s *Store) Exists(phone string) (bool, error) {
	if _, err := os.Stat(s.path(phone)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put atomically replaces the record for a phone. The previous record stays
// fully readable until the new one is durable on disk.
func (s *Store) Put(phone string, state []byte) error {
	now := time.Now().UTC()
	rec := Record{
		Phone:      phone,
		State:      state,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	// Preserve the original creation time across replacements.
	if prev, err := s.Get(phone); err == nil {
		rec.CreatedAt = prev.CreatedAt
	}

	if s.sealer != nil {
		rec.State = s.sealer.seal(state)
		rec.Sealed = true
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := writeFileAtomic(s.path(phone), raw); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.cacheSet(Meta{Phone: rec.Phone, CreatedAt: rec.CreatedAt, LastUsedAt: rec.LastUsedAt})
	s.logger.Info("session saved", "phone", phone)
	return nil
}

// Touch updates the last-used timestamp of an existing record.
func (s *Store) Touch(phone string) error {
	rec, err := s.Get(phone)
	if err != nil {
		return err
	}
	rec.LastUsedAt = time.Now().UTC()

	out := *rec
	if s.sealer != nil {
		out.State = s.sealer.seal(rec.State)
		out.Sealed = true
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := writeFileAtomic(s.path(phone), raw); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.cacheSet(Meta{Phone: rec.Phone, CreatedAt: rec.CreatedAt, LastUsedAt: rec.LastUsedAt})
	return nil
}

// Delete removes the record for a phone. Reports whether a record existed.
func (s *Store) Delete(phone string) (bool, error) {
	err := os.Remove(s.path(phone))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete session: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, phone)
	s.mu.Unlock()

	s.logger.Info("session deleted", "phone", phone)
	return true, nil
}

// List enumerates stored sessions without loading blobs, sorted by phone.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	if s.cache != nil {
		metas := make([]Meta, 0, len(s.cache))
		for _, m := range s.cache {
			metas = append(metas, m)
		}
		s.mu.RUnlock()
		sort.Slice(metas, func(i, j int) bool { return metas[i].Phone < metas[j].Phone })
		return metas, nil
	}
	s.mu.RUnlock()

	metas, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = make(map[string]Meta, len(metas))
	for _, m := range metas {
		s.cache[m.Phone] = m
	}
	s.mu.Unlock()

	return metas, nil
}

// scan reads metadata for every record file in the directory.
func (s *Store) scan() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable session file", "file", name, "error", err)
			continue
		}
		var m Meta
		if err := json.Unmarshal(raw, &m); err != nil || m.Phone == "" {
			s.logger.Warn("skipping malformed session file", "file", name)
			continue
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Phone < metas[j].Phone })
	return metas, nil
}

func (s *Store) cacheSet(m Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return // not built yet; next List scans
	}
	s.cache[m.Phone] = m
}

// invalidate drops the metadata cache, forcing a rescan on the next List.
func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// writeFileAtomic writes data to a temp file in the same directory, fsyncs it
// and renames it over the destination.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

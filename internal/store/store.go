// Package store implements the append-only chronicle record store: one JSON
// line per record, files organized by category and domain, writes serialized
// per file by an advisory lock and made visible atomically.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emberwell/vault/internal/config"
	"github.com/emberwell/vault/internal/record"
)

// Store appends records under <root>/chronicle/<category>/<domain>/.
type Store struct {
	cfg       *config.Config
	onAppend  func()
	lockWait  time.Duration
	lockRetry time.Duration
}

// New creates a Store for the configured vault root.
func New(cfg *config.Config) *Store {
	return &Store{
		cfg:       cfg,
		lockWait:  time.Duration(cfg.Lock.TimeoutMS) * time.Millisecond,
		lockRetry: time.Duration(cfg.Lock.RetryMS) * time.Millisecond,
	}
}

// OnAppend registers a callback invoked after every successful append.
// The cache uses it to flip stale without waiting on mtime granularity.
func (s *Store) OnAppend(fn func()) {
	s.onAppend = fn
}

// Root returns the chronicle directory the store writes under.
func (s *Store) Root() string {
	return s.cfg.ChronicleDir()
}

// Append validates rec, assigns an id and timestamp if absent, and writes it
// as one line to <chronicle>/<category>/<domain>/<session>.jsonl.
//
// Validation failures leave storage untouched. Write errors propagate; they
// are never silently dropped. Returns the record id.
func (s *Store) Append(ctx context.Context, category, domain string, rec record.Record) (string, error) {
	cat, err := s.cfg.ResolveCategory(category)
	if err != nil {
		return "", fmt.Errorf("%w: %v", record.ErrInvalidDomain, err)
	}
	if !record.ValidDomain(domain) {
		return "", fmt.Errorf("%w: %q", record.ErrInvalidDomain, domain)
	}

	// The directory path is authoritative for the record's classification;
	// a record carrying a different domain is rejected before any write.
	if rec.Domain == "" {
		rec.Domain = domain
	} else if rec.Domain != domain {
		return "", fmt.Errorf("%w: record domain %q does not match path domain %q",
			record.ErrInvalidDomain, rec.Domain, domain)
	}

	if rec.ID == "" {
		rec.ID = record.NewID()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if err := rec.Validate(); err != nil {
		return "", err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Join(s.Root(), cat, domain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create domain dir: %w", err)
	}

	path := filepath.Join(dir, rec.SessionID+".jsonl")

	err = WithLock(ctx, path, s.lockWait, s.lockRetry, func() error {
		return appendLine(path, line)
	})
	if err != nil {
		return "", err
	}

	if s.onAppend != nil {
		s.onAppend()
	}
	return rec.ID, nil
}

// appendLine adds one line to path using copy-to-temp-then-rename so readers
// never observe a partial write. The caller holds the file lock.
func appendLine(path string, line []byte) error {
	dir := filepath.Dir(path)

	// Temp files must not match the *.jsonl scan pattern.
	tmp, err := os.CreateTemp(dir, ".append-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	prior, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fail(fmt.Errorf("read existing file: %w", err))
	}
	if len(prior) > 0 {
		if _, err := tmp.Write(prior); err != nil {
			return fail(fmt.Errorf("copy existing records: %w", err))
		}
		if prior[len(prior)-1] != '\n' {
			if _, err := tmp.Write([]byte{'\n'}); err != nil {
				return fail(fmt.Errorf("copy existing records: %w", err))
			}
		}
	}

	if _, err := tmp.Write(append(line, '\n')); err != nil {
		return fail(fmt.Errorf("write record: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync record: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

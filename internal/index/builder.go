package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emberwell/vault/internal/scan"
)

// Cache artifact file names. All of them are reconstructible and may be
// deleted by an operator at any time.
const (
	invertedIndexFile = "inverted_index.json"
	domainMapFile     = "domain_map.json"
	sessionMapFile    = "session_map.json"
	manifestFile      = "manifest.json"
)

// Stats summarizes one rebuild.
type Stats struct {
	FilesScanned   int      `json:"files_scanned"`
	RecordsIndexed int      `json:"records_indexed"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Builder derives Index structures from the chronicle and persists them.
type Builder struct {
	scanner  *scan.Scanner
	cacheDir string
}

// NewBuilder creates a Builder that scans with sc and persists artifacts
// under cacheDir.
func NewBuilder(sc *scan.Scanner, cacheDir string) *Builder {
	return &Builder{scanner: sc, cacheDir: cacheDir}
}

// Build scans the corpus once and returns a fresh in-memory Index.
//
// File modification times are captured before reading, so a write that lands
// mid-build makes the resulting index stale rather than silently current.
func (b *Builder) Build(ctx context.Context) (*Index, []scan.Warning, error) {
	files, err := b.scanner.ListFiles()
	if err != nil {
		return nil, nil, fmt.Errorf("list record files: %w", err)
	}

	ix := newIndex()
	ix.BuiltAt = time.Now().UTC()

	paths := make([]string, 0, len(files))
	for _, f := range files {
		ix.Files[f.Path] = f.ModTime
		paths = append(paths, f.Path)
	}

	warnings, missing, err := b.scanner.ScanFiles(ctx, paths, func(pr scan.ParsedRecord) error {
		ix.add(pr.Path, pr.Record.Domain, pr.Record.SessionID, pr.Record.Content)
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("scan corpus: %w", err)
	}
	for _, rel := range missing {
		// Deleted between listing and reading; drop it from the manifest.
		delete(ix.Files, rel)
	}
	return ix, warnings, nil
}

// Rebuild builds a fresh index and persists it. Rebuilding twice over an
// unchanged corpus produces byte-for-byte identical artifacts.
func (b *Builder) Rebuild(ctx context.Context) (*Index, Stats, error) {
	ix, warnings, err := b.Build(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	if err := b.save(ix); err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		FilesScanned:   len(ix.Files),
		RecordsIndexed: ix.Records,
	}
	for _, w := range warnings {
		stats.Warnings = append(stats.Warnings, w.String())
	}
	return ix, stats, nil
}

// Stale reports whether ix no longer reflects the chronicle on disk: any
// file newer than recorded, unseen, or gone invalidates the whole index.
func (b *Builder) Stale(ix *Index) bool {
	if ix == nil {
		return true
	}
	files, err := b.scanner.ListFiles()
	if err != nil {
		return true
	}
	if len(files) != len(ix.Files) {
		return true
	}
	for _, f := range files {
		recorded, ok := ix.Files[f.Path]
		if !ok || f.ModTime.After(recorded) {
			return true
		}
	}
	return false
}

// persisted artifact shapes

type termEntryJSON struct {
	Files     []string `json:"files"`
	Frequency int      `json:"frequency"`
}

type manifestJSON struct {
	BuiltAt time.Time         `json:"built_at"`
	Records int               `json:"records"`
	Files   map[string]string `json:"files"` // path -> mtime, RFC3339Nano
}

func (b *Builder) save(ix *Index) error {
	if err := os.MkdirAll(b.cacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	terms := make(map[string]termEntryJSON, len(ix.Terms))
	for t, e := range ix.Terms {
		terms[t] = termEntryJSON{Files: sorted(e.Files), Frequency: e.Frequency}
	}
	domains := make(map[string][]string, len(ix.Domains))
	for d, set := range ix.Domains {
		domains[d] = sorted(set)
	}
	sessions := make(map[string][]string, len(ix.Sessions))
	for s, set := range ix.Sessions {
		sessions[s] = sorted(set)
	}
	manifest := manifestJSON{
		BuiltAt: ix.BuiltAt,
		Records: ix.Records,
		Files:   make(map[string]string, len(ix.Files)),
	}
	for p, mt := range ix.Files {
		manifest.Files[p] = mt.UTC().Format(time.RFC3339Nano)
	}

	artifacts := []struct {
		name string
		v    any
	}{
		{invertedIndexFile, terms},
		{domainMapFile, domains},
		{sessionMapFile, sessions},
		{manifestFile, manifest},
	}
	for _, a := range artifacts {
		if err := writeJSONAtomic(filepath.Join(b.cacheDir, a.name), a.v); err != nil {
			return fmt.Errorf("write %s: %w", a.name, err)
		}
	}
	return nil
}

// Load reads previously persisted artifacts. Any missing or unreadable
// artifact means no cache; callers fall back to a scan.
func (b *Builder) Load() (*Index, error) {
	var terms map[string]termEntryJSON
	var domains, sessions map[string][]string
	var manifest manifestJSON

	for _, a := range []struct {
		name string
		v    any
	}{
		{invertedIndexFile, &terms},
		{domainMapFile, &domains},
		{sessionMapFile, &sessions},
		{manifestFile, &manifest},
	} {
		data, err := os.ReadFile(filepath.Join(b.cacheDir, a.name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", a.name, err)
		}
		if err := json.Unmarshal(data, a.v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", a.name, err)
		}
	}

	ix := newIndex()
	ix.BuiltAt = manifest.BuiltAt
	ix.Records = manifest.Records
	for t, e := range terms {
		entry := &TermEntry{Files: make(map[string]struct{}, len(e.Files)), Frequency: e.Frequency}
		for _, f := range e.Files {
			entry.Files[f] = struct{}{}
		}
		ix.Terms[t] = entry
	}
	for d, files := range domains {
		for _, f := range files {
			addTo(ix.Domains, d, f)
		}
	}
	for s, files := range sessions {
		for _, f := range files {
			addTo(ix.Sessions, s, f)
		}
	}
	for p, raw := range manifest.Files {
		mt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse manifest mtime for %s: %w", p, err)
		}
		ix.Files[p] = mt
	}
	return ix, nil
}

// writeJSONAtomic marshals v with stable key order and publishes the file by
// rename, so a concurrent reader sees the old artifact or the new one, never
// a truncated one.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

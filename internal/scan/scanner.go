// Package scan walks the chronicle tree and parses JSONL record files.
//
// Scanning is lazy and restartable: records stream through a visitor callback
// in file-path order, then line order. Malformed lines become warnings, never
// fatal errors, so a single corrupt line cannot abort indexing of the rest of
// the corpus.
package scan

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/emberwell/vault/internal/record"
)

// ParsedRecord is one record together with its source position.
type ParsedRecord struct {
	Record record.Record
	Path   string // relative to the chronicle root, forward slashes
	Line   int    // 1-based
}

// Warning describes a non-fatal problem found while scanning.
type Warning struct {
	Path string
	Line int
	Msg  string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.Path, w.Line, w.Msg)
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Msg)
}

// FileInfo describes one record file found under the chronicle root.
type FileInfo struct {
	Path    string // relative, forward slashes
	ModTime time.Time
}

// Visitor receives parsed records. Returning an error stops the scan and
// propagates the error to the caller.
type Visitor func(ParsedRecord) error

// Scanner walks a chronicle root matching one glob pattern per category.
type Scanner struct {
	root     string
	patterns []glob.Glob
}

// New creates a Scanner over root for the given categories. Record files
// live at <category>/<domain>/<name>.jsonl.
func New(root string, categories []string) *Scanner {
	patterns := make([]glob.Glob, 0, len(categories))
	for _, cat := range categories {
		patterns = append(patterns, glob.MustCompile(cat+"/*/*.jsonl", '/'))
	}
	return &Scanner{root: root, patterns: patterns}
}

// Root returns the chronicle root this scanner walks.
func (s *Scanner) Root() string {
	return s.root
}

// ListFiles returns every record file under the root, sorted by path.
func (s *Scanner) ListFiles() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if !s.matches(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files = append(files, FileInfo{Path: rel, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("walk chronicle: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) matches(rel string) bool {
	for _, p := range s.patterns {
		if p.Match(rel) {
			return true
		}
	}
	return false
}

// Scan walks the whole corpus and streams every record to visit.
func (s *Scanner) Scan(ctx context.Context, visit Visitor) ([]Warning, error) {
	return s.ScanDir(ctx, "", "", visit)
}

// ScanDir scans a subtree narrowed by category and/or domain; empty strings
// widen to all. Narrowing bounds a filtered query's work to the paths that
// can match, without materializing the corpus.
func (s *Scanner) ScanDir(ctx context.Context, category, domain string, visit Visitor) ([]Warning, error) {
	files, err := s.ListFiles()
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	for _, f := range files {
		parts := strings.Split(f.Path, "/")
		if category != "" && parts[0] != category {
			continue
		}
		if domain != "" && (len(parts) < 2 || parts[1] != domain) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return warnings, err
		}
		w, err := s.scanFile(f.Path, visit)
		warnings = append(warnings, w...)
		if err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

// ScanFiles streams records from an explicit set of relative paths, in the
// given order. A missing file is reported through missing rather than as a
// warning; the cache layer treats it as an inconsistency signal.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string, visit Visitor) (warnings []Warning, missing []string, err error) {
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return warnings, missing, err
		}
		if _, statErr := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel))); statErr != nil {
			if os.IsNotExist(statErr) {
				missing = append(missing, rel)
				continue
			}
			return warnings, missing, fmt.Errorf("stat %s: %w", rel, statErr)
		}
		w, scanErr := s.scanFile(rel, visit)
		warnings = append(warnings, w...)
		if scanErr != nil {
			return warnings, missing, scanErr
		}
	}
	return warnings, missing, nil
}

// scanFile reads one JSONL file line by line.
func (s *Scanner) scanFile(rel string, visit Visitor) ([]Warning, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			// Racing with a concurrent rename; the file will show up in the
			// next scan.
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	var warnings []Warning
	pathDomain := ""
	if parts := strings.Split(rel, "/"); len(parts) >= 2 {
		pathDomain = parts[1]
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var rec record.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			warnings = append(warnings, Warning{Path: rel, Line: lineNo, Msg: "malformed line: " + err.Error()})
			continue
		}
		if !record.ValidKinds[rec.Type] {
			warnings = append(warnings, Warning{Path: rel, Line: lineNo, Msg: fmt.Sprintf("unknown record kind %q", rec.Type)})
			continue
		}

		// Path is authoritative for classification. Disagreement is a
		// data-integrity warning; the record still flows through.
		if rec.Domain != "" && pathDomain != "" && rec.Domain != pathDomain {
			warnings = append(warnings, Warning{
				Path: rel, Line: lineNo,
				Msg: fmt.Sprintf("record domain %q disagrees with path domain %q", rec.Domain, pathDomain),
			})
		}

		if err := visit(ParsedRecord{Record: rec, Path: rel, Line: lineNo}); err != nil {
			return warnings, err
		}
	}
	if err := sc.Err(); err != nil {
		return warnings, fmt.Errorf("scan %s: %w", rel, err)
	}
	return warnings, nil
}

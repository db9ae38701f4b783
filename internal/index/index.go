// Package index builds and serves the derived cache: an inverted term index,
// a domain map, and a session map over the chronicle's record files.
//
// The cache is never authoritative. It is re-derivable from the record store
// at any time, and deleting its artifacts changes latency, not results.
package index

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// minTokenLen is the shortest content token the term index records. Keyword
// matching uses the same tokenizer on both the cache path and the scan path,
// so the cutoff cannot make the two disagree.
const minTokenLen = 3

// TermEntry is the inverted-index posting for one term.
type TermEntry struct {
	Files     map[string]struct{}
	Frequency int // number of records containing the term
}

// Index is one complete, immutable build of the cache. Readers share it; a
// rebuild produces a fresh Index and swaps it in, never mutates in place.
type Index struct {
	Terms    map[string]*TermEntry
	Domains  map[string]map[string]struct{}
	Sessions map[string]map[string]struct{}

	// Files records each source file's modification time at build. Any
	// newer or unseen file invalidates the whole index.
	Files   map[string]time.Time
	BuiltAt time.Time
	Records int
}

func newIndex() *Index {
	return &Index{
		Terms:    make(map[string]*TermEntry),
		Domains:  make(map[string]map[string]struct{}),
		Sessions: make(map[string]map[string]struct{}),
		Files:    make(map[string]time.Time),
	}
}

func (ix *Index) add(path, domain, session, content string) {
	ix.Records++
	if session != "" {
		addTo(ix.Sessions, session, path)
	}
	if domain != "" {
		addTo(ix.Domains, domain, path)
	}
	for _, term := range Tokenize(content) {
		entry := ix.Terms[term]
		if entry == nil {
			entry = &TermEntry{Files: make(map[string]struct{})}
			ix.Terms[term] = entry
		}
		entry.Files[path] = struct{}{}
		entry.Frequency++
	}
}

func addTo(m map[string]map[string]struct{}, key, path string) {
	set := m[key]
	if set == nil {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[path] = struct{}{}
}

// DomainFiles returns the sorted file paths holding records for domain.
func (ix *Index) DomainFiles(domain string) []string {
	return sorted(ix.Domains[domain])
}

// SessionFiles returns the sorted file paths holding records for session.
func (ix *Index) SessionFiles(session string) []string {
	return sorted(ix.Sessions[session])
}

// TermFiles returns the sorted file paths whose records contain term.
func (ix *Index) TermFiles(term string) []string {
	entry := ix.Terms[term]
	if entry == nil {
		return nil
	}
	return sorted(entry.Files)
}

// AllFiles returns every indexed file path, sorted.
func (ix *Index) AllFiles() []string {
	paths := make([]string, 0, len(ix.Files))
	for p := range ix.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func sorted(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Tokenize splits content into the case-normalized terms the index records:
// runs of letters and digits, lowercased, at least minTokenLen runes. Glyph
// and punctuation annotations fall out as separators.
func Tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < minTokenLen || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

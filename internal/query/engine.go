// Package query resolves filtered queries against the chronicle, using the
// derived cache when it is fresh and falling back to a live scan when it is
// not. Both paths return identical result sets; the cache only buys latency.
package query

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emberwell/vault/internal/index"
	"github.com/emberwell/vault/internal/record"
	"github.com/emberwell/vault/internal/scan"
)

// Filter selects records. Zero values mean "don't filter on this".
// Category and Domain are canonical names; alias resolution happens at the
// boundary, before a Filter is built.
type Filter struct {
	Category     string
	Domain       string
	Session      string
	Keyword      string
	MinIntensity float64
	Kinds        []record.Kind
	Since        time.Time
	Until        time.Time
	Ascending    bool // default ordering is timestamp descending
	Limit        int  // 0 = unlimited
}

// Engine answers queries and lineage lookups.
type Engine struct {
	scanner    *scan.Scanner
	builder    *index.Builder
	cache      *index.Cache
	rebuilding atomic.Bool
}

// New creates an Engine. The cache handle is explicit: no process-wide
// current-cache global, and tests can hand in an empty one.
func New(sc *scan.Scanner, b *index.Builder, cache *index.Cache) *Engine {
	return &Engine{scanner: sc, builder: b, cache: cache}
}

// Scanner exposes the engine's corpus scanner for collaborators that need a
// raw scan, like snapshot materialization.
func (e *Engine) Scanner() *scan.Scanner {
	return e.scanner
}

// WarmStart loads persisted cache artifacts if they verify as current
// against the chronicle's file mtimes, and otherwise kicks off a rebuild.
// The process never trusts an unverified cache from a previous run.
func (e *Engine) WarmStart(ctx context.Context) {
	ix, err := e.builder.Load()
	if err == nil && !e.builder.Stale(ix) {
		e.cache.Swap(ix)
		return
	}
	e.triggerRebuild()
}

// Query returns the records matching f. A well-formed filter never fails
// outright; an unreadable corpus does.
func (e *Engine) Query(ctx context.Context, f Filter) ([]record.Record, error) {
	if ix := e.freshIndex(); ix != nil {
		matches, ok, err := e.queryIndexed(ctx, ix, f)
		if err != nil {
			return nil, err
		}
		if ok {
			return finish(matches, f), nil
		}
		// The cache claimed a path that no longer exists. Rebuild instead
		// of surfacing the inconsistency.
		e.cache.MarkStale()
	}

	matches, err := e.queryScan(ctx, f)
	if err != nil {
		return nil, err
	}
	e.triggerRebuild()
	return finish(matches, f), nil
}

// RebuildCache rebuilds the index synchronously and installs it.
func (e *Engine) RebuildCache(ctx context.Context) (index.Stats, error) {
	ix, stats, err := e.builder.Rebuild(ctx)
	if err != nil {
		return index.Stats{}, err
	}
	e.cache.Swap(ix)
	return stats, nil
}

// freshIndex returns the current index only if it can be trusted.
func (e *Engine) freshIndex() *index.Index {
	ix := e.cache.Current()
	if ix == nil || e.cache.Dirty() || e.builder.Stale(ix) {
		return nil
	}
	return ix
}

// queryIndexed narrows the file set through the cache maps, then reads only
// those files. ok=false signals a cache inconsistency; the caller falls back
// to a scan.
func (e *Engine) queryIndexed(ctx context.Context, ix *index.Index, f Filter) ([]scan.ParsedRecord, bool, error) {
	var sets [][]string
	if f.Domain != "" {
		sets = append(sets, ix.DomainFiles(f.Domain))
	}
	if f.Session != "" {
		sets = append(sets, ix.SessionFiles(f.Session))
	}
	if f.Keyword != "" {
		// Only whole-term keywords can narrow through the inverted index;
		// anything else stays a residual predicate.
		for _, term := range index.Tokenize(f.Keyword) {
			sets = append(sets, ix.TermFiles(term))
		}
	}

	var paths []string
	if len(sets) == 0 {
		paths = ix.AllFiles()
	} else {
		paths = intersect(sets)
	}
	if f.Category != "" {
		paths = filterPrefix(paths, f.Category+"/")
	}
	if len(paths) == 0 {
		return nil, true, nil
	}

	var matches []scan.ParsedRecord
	_, missing, err := e.scanner.ScanFiles(ctx, paths, func(pr scan.ParsedRecord) error {
		if f.matches(pr) {
			matches = append(matches, pr)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(missing) > 0 {
		log.Printf("query: cache lists %d missing file(s), falling back to scan", len(missing))
		return nil, false, nil
	}
	return matches, true, nil
}

// queryScan walks the chronicle directly, narrowed to the category/domain
// subtree when the filter allows, so a narrow query never materializes the
// whole corpus.
func (e *Engine) queryScan(ctx context.Context, f Filter) ([]scan.ParsedRecord, error) {
	var matches []scan.ParsedRecord
	_, err := e.scanner.ScanDir(ctx, f.Category, f.Domain, func(pr scan.ParsedRecord) error {
		if f.matches(pr) {
			matches = append(matches, pr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// triggerRebuild starts one asynchronous rebuild at a time. Concurrent
// requests collapse into the in-flight one; rebuilds are idempotent so a
// wasted rebuild in another process is safe, just work.
func (e *Engine) triggerRebuild() {
	if !e.rebuilding.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.rebuilding.Store(false)
		ix, _, err := e.builder.Rebuild(context.Background())
		if err != nil {
			log.Printf("async cache rebuild: %v", err)
			return
		}
		e.cache.Swap(ix)
	}()
}

// matches applies every predicate to one parsed record. The domain predicate
// requires path and field to agree, which keeps the cache path and the
// narrowed scan path equivalent even for misfiled records.
func (f *Filter) matches(pr scan.ParsedRecord) bool {
	rec := &pr.Record
	if f.Domain != "" {
		if rec.Domain != f.Domain || pathDomain(pr.Path) != f.Domain {
			return false
		}
	}
	if f.Session != "" && rec.SessionID != f.Session {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if rec.Type == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinIntensity > 0 {
		if rec.Intensity == nil || *rec.Intensity < f.MinIntensity {
			return false
		}
	}
	if f.Keyword != "" && !matchKeyword(f.Keyword, rec.Content) {
		return false
	}
	if !f.Since.IsZero() && rec.Time().Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Time().After(f.Until) {
		return false
	}
	return true
}

// matchKeyword is a term match: every term of the keyword must appear as a
// term of the content. Keywords that tokenize to nothing (too short, pure
// punctuation) degrade to a case-insensitive substring check.
func matchKeyword(keyword, content string) bool {
	terms := index.Tokenize(keyword)
	if len(terms) == 0 {
		return strings.Contains(strings.ToLower(content), strings.ToLower(strings.TrimSpace(keyword)))
	}
	have := make(map[string]bool)
	for _, t := range index.Tokenize(content) {
		have[t] = true
	}
	for _, t := range terms {
		if !have[t] {
			return false
		}
	}
	return true
}

func pathDomain(rel string) string {
	parts := strings.SplitN(rel, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// finish orders matches by timestamp (descending unless asked otherwise),
// breaking ties by scan position, then applies the limit.
func finish(matches []scan.ParsedRecord, f Filter) []record.Record {
	sort.SliceStable(matches, func(i, j int) bool {
		ti, tj := matches[i].Record.Time(), matches[j].Record.Time()
		if f.Ascending {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	out := make([]record.Record, len(matches))
	for i, m := range matches {
		out[i] = m.Record
	}
	return out
}

func intersect(sets [][]string) []string {
	counts := make(map[string]int)
	for _, set := range sets {
		for _, p := range set {
			counts[p]++
		}
	}
	var out []string
	for p, n := range counts {
		if n == len(sets) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func filterPrefix(paths []string, prefix string) []string {
	out := paths[:0]
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emberwell/vault/internal/record"
)

var testCategories = []string{"insights", "learnings", "values", "transformations", "events"}

func writeFile(t *testing.T, root, rel string, lines ...string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func insightLine(t *testing.T, id, session, domain, content string, intensity float64) string {
	t.Helper()
	rec := record.Record{
		Type: record.KindInsight, ID: id, SessionID: session, Domain: domain,
		Content: content, Intensity: &intensity,
		Timestamp: "2026-01-16T14:47:00Z",
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func collect(t *testing.T, s *Scanner) ([]ParsedRecord, []Warning) {
	t.Helper()
	var recs []ParsedRecord
	warnings, err := s.Scan(context.Background(), func(pr ParsedRecord) error {
		recs = append(recs, pr)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return recs, warnings
}

func TestScanYieldsPathThenLineOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "insights/demos/sess_002.jsonl",
		insightLine(t, "id3", "sess_002", "demos", "third", 0.5))
	writeFile(t, root, "insights/demos/sess_001.jsonl",
		insightLine(t, "id1", "sess_001", "demos", "first", 0.5),
		insightLine(t, "id2", "sess_001", "demos", "second", 0.5))

	recs, warnings := collect(t, New(root, testCategories))
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}

	var ids []string
	for _, r := range recs {
		ids = append(ids, r.Record.ID)
	}
	want := []string{"id1", "id2", "id3"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	if recs[0].Line != 1 || recs[1].Line != 2 {
		t.Errorf("line numbers = %d,%d, want 1,2", recs[0].Line, recs[1].Line)
	}
}

func TestScanSkipsNonMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "insights/demos/sess_001.jsonl",
		insightLine(t, "id1", "sess_001", "demos", "kept", 0.5))
	writeFile(t, root, "insights/demos/notes.txt", "not a record")
	writeFile(t, root, "scratch/demos/sess_001.jsonl", "{}")
	writeFile(t, root, "insights/top-level.jsonl", "{}")

	recs, _ := collect(t, New(root, testCategories))
	if len(recs) != 1 || recs[0].Record.ID != "id1" {
		t.Fatalf("recs = %v, want only id1", recs)
	}
}

func TestScanToleratesCorruptLines(t *testing.T) {
	root := t.TempDir()

	lines := make([]string, 0, 101)
	for i := 0; i < 50; i++ {
		lines = append(lines, insightLine(t, fmt.Sprintf("a%03d", i), "sess_001", "demos", "valid", 0.5))
	}
	lines = append(lines, `{"type":"insight","id":"trunc`)
	for i := 0; i < 50; i++ {
		lines = append(lines, insightLine(t, fmt.Sprintf("b%03d", i), "sess_001", "demos", "valid", 0.5))
	}
	writeFile(t, root, "insights/demos/sess_001.jsonl", lines...)

	recs, warnings := collect(t, New(root, testCategories))
	if len(recs) != 100 {
		t.Errorf("records = %d, want 100", len(recs))
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %d, want 1: %v", len(warnings), warnings)
	}
	if warnings[0].Line != 51 {
		t.Errorf("warning line = %d, want 51", warnings[0].Line)
	}
	if !strings.Contains(warnings[0].String(), "malformed") {
		t.Errorf("warning = %q, want malformed marker", warnings[0])
	}
}

func TestScanWarnsOnUnknownKind(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "events/ops/sess_001.jsonl",
		`{"type":"feeling","session_id":"sess_001","content":"x"}`)

	recs, warnings := collect(t, New(root, testCategories))
	if len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Msg, "unknown record kind") {
		t.Fatalf("warnings = %v, want unknown kind warning", warnings)
	}
}

func TestScanWarnsOnDomainPathDisagreement(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "insights/demos/sess_001.jsonl",
		insightLine(t, "id1", "sess_001", "hardware", "misfiled", 0.5))

	recs, warnings := collect(t, New(root, testCategories))
	// Integrity warning, not fatal: the record still comes through.
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Msg, "disagrees") {
		t.Fatalf("warnings = %v, want disagreement warning", warnings)
	}
}

func TestScanDirNarrowing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "insights/demos/sess_001.jsonl",
		insightLine(t, "id1", "sess_001", "demos", "a", 0.5))
	writeFile(t, root, "insights/hardware/sess_001.jsonl",
		insightLine(t, "id2", "sess_001", "hardware", "b", 0.5))
	writeFile(t, root, "events/ops/sess_001.jsonl",
		`{"type":"event","id":"id3","session_id":"sess_001","content":"c","timestamp":"2026-01-16T00:00:00Z"}`)

	s := New(root, testCategories)

	var got []string
	_, err := s.ScanDir(context.Background(), "insights", "hardware", func(pr ParsedRecord) error {
		got = append(got, pr.Record.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(got) != 1 || got[0] != "id2" {
		t.Fatalf("narrowed scan = %v, want [id2]", got)
	}
}

func TestScanFilesReportsMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "insights/demos/sess_001.jsonl",
		insightLine(t, "id1", "sess_001", "demos", "a", 0.5))

	s := New(root, testCategories)
	var got []string
	_, missing, err := s.ScanFiles(context.Background(),
		[]string{"insights/demos/sess_001.jsonl", "insights/demos/gone.jsonl"},
		func(pr ParsedRecord) error {
			got = append(got, pr.Record.ID)
			return nil
		})
	if err != nil {
		t.Fatalf("ScanFiles: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("records = %v, want [id1]", got)
	}
	if len(missing) != 1 || missing[0] != "insights/demos/gone.jsonl" {
		t.Fatalf("missing = %v, want the gone file", missing)
	}
}

func TestScanEmptyRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"), testCategories)
	recs, warnings := []ParsedRecord{}, []Warning{}
	warnings, err := s.Scan(context.Background(), func(pr ParsedRecord) error {
		recs = append(recs, pr)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan on missing root: %v", err)
	}
	if len(recs) != 0 || len(warnings) != 0 {
		t.Fatalf("recs=%d warnings=%d, want 0,0", len(recs), len(warnings))
	}
}

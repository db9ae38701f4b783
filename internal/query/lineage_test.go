package query

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/emberwell/vault/internal/record"
)

func withLineage(fx *fixture, t *testing.T) {
	t.Helper()
	fx.write(t, "insights/governance/sess_004.jsonl",
		insight("root1", "sess_004", "governance", "pause before deriving", "2026-01-13T23:00:00Z", 0.9))
	fx.write(t, "insights/governance/sess_008.jsonl", record.Record{
		Type: record.KindInsight, ID: "mid1", SessionID: "sess_008", Domain: "governance",
		Content: "approval gates enable flow", Intensity: floatp(0.8),
		BuildsOn: []string{"root1"}, Timestamp: "2026-01-14T10:00:00Z",
	})
	fx.write(t, "insights/governance/sess_022.jsonl", record.Record{
		Type: record.KindInsight, ID: "leaf1", SessionID: "sess_022", Domain: "governance",
		Content: "governance is coherence", Intensity: floatp(0.95),
		BuildsOn: []string{"mid1", "root1"}, Timestamp: "2026-01-16T10:00:00Z",
	})
}

func floatp(v float64) *float64 { return &v }

func TestAncestorsChain(t *testing.T) {
	fx := newFixture(t)
	withLineage(fx, t)

	got, err := fx.engine.Ancestors(context.Background(), "leaf1")
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	// Depth-first in reference order, each ancestor once.
	if !reflect.DeepEqual(ids(got), []string{"mid1", "root1"}) {
		t.Fatalf("Ancestors = %v, want [mid1 root1]", ids(got))
	}
}

func TestAncestorsEmptyForRoot(t *testing.T) {
	fx := newFixture(t)
	withLineage(fx, t)

	got, err := fx.engine.Ancestors(context.Background(), "root1")
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Ancestors = %v, want empty", ids(got))
	}
}

func TestAncestorsNotFound(t *testing.T) {
	fx := newFixture(t)
	withLineage(fx, t)

	_, err := fx.engine.Ancestors(context.Background(), "no_such_id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Ancestors = %v, want ErrNotFound", err)
	}
}

func TestAncestorsDetectsCycle(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "insights/demos/sess_001.jsonl",
		record.Record{
			Type: record.KindInsight, ID: "a", SessionID: "sess_001", Domain: "demos",
			Content: "a builds on b", Intensity: floatp(0.5),
			BuildsOn: []string{"b"}, Timestamp: "2026-01-10T00:00:00Z",
		},
		record.Record{
			Type: record.KindInsight, ID: "b", SessionID: "sess_001", Domain: "demos",
			Content: "b builds on a", Intensity: floatp(0.5),
			BuildsOn: []string{"a"}, Timestamp: "2026-01-11T00:00:00Z",
		})

	_, err := fx.engine.Ancestors(context.Background(), "a")
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("Ancestors = %v, want CycleError", err)
	}
	if len(cycle.IDs) == 0 || cycle.IDs[len(cycle.IDs)-1] != "a" {
		t.Fatalf("cycle ids = %v, want chain closing on a", cycle.IDs)
	}
}

func TestAncestorsToleratesDanglingReference(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "insights/demos/sess_001.jsonl",
		record.Record{
			Type: record.KindInsight, ID: "kid", SessionID: "sess_001", Domain: "demos",
			Content: "references a lost parent", Intensity: floatp(0.5),
			BuildsOn: []string{"vanished", "present"}, Timestamp: "2026-01-10T00:00:00Z",
		},
		insight("present", "sess_001", "demos", "still here", "2026-01-09T00:00:00Z", 0.5))

	got, err := fx.engine.Ancestors(context.Background(), "kid")
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"present"}) {
		t.Fatalf("Ancestors = %v, want [present]", ids(got))
	}
}

func TestAncestorsDiamondReportedOnce(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "insights/demos/sess_001.jsonl",
		insight("base", "sess_001", "demos", "shared base", "2026-01-01T00:00:00Z", 0.5),
		record.Record{
			Type: record.KindInsight, ID: "left", SessionID: "sess_001", Domain: "demos",
			Content: "left branch", Intensity: floatp(0.5),
			BuildsOn: []string{"base"}, Timestamp: "2026-01-02T00:00:00Z",
		},
		record.Record{
			Type: record.KindInsight, ID: "right", SessionID: "sess_001", Domain: "demos",
			Content: "right branch", Intensity: floatp(0.5),
			BuildsOn: []string{"base"}, Timestamp: "2026-01-03T00:00:00Z",
		},
		record.Record{
			Type: record.KindInsight, ID: "top", SessionID: "sess_001", Domain: "demos",
			Content: "joins both branches", Intensity: floatp(0.5),
			BuildsOn: []string{"left", "right"}, Timestamp: "2026-01-04T00:00:00Z",
		})

	got, err := fx.engine.Ancestors(context.Background(), "top")
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if !reflect.DeepEqual(ids(got), []string{"left", "base", "right"}) {
		t.Fatalf("Ancestors = %v, want [left base right]", ids(got))
	}
}

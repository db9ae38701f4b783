package record

import (
	"errors"
	"testing"
	"time"
)

func floatp(v float64) *float64 { return &v }

func TestValidateKinds(t *testing.T) {
	cases := []struct {
		name    string
		rec     Record
		wantErr error
	}{
		{
			name: "valid insight",
			rec: Record{
				Type: KindInsight, SessionID: "sess_001", Domain: "architecture",
				Content: "caches are never authoritative", Intensity: floatp(0.8),
			},
		},
		{
			name: "valid event without domain",
			rec:  Record{Type: KindEvent, SessionID: "sess_001", Content: "file created"},
		},
		{
			name: "valid learning",
			rec: Record{
				Type: KindLearning, SessionID: "sess_002", Domain: "hardware",
				Content: "nvidia-smi is not available on jetson",
			},
		},
		{
			name: "valid transformation",
			rec: Record{
				Type: KindTransformation, SessionID: "sess_003",
				Content: "governance is coherence, not friction", Intensity: floatp(1.0),
			},
		},
		{
			name:    "unknown kind",
			rec:     Record{Type: "feeling", SessionID: "s", Content: "x"},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "insight missing domain",
			rec:     Record{Type: KindInsight, SessionID: "s", Content: "x", Intensity: floatp(0.5)},
			wantErr: ErrInvalidDomain,
		},
		{
			name:    "insight missing intensity",
			rec:     Record{Type: KindInsight, SessionID: "s", Domain: "demos", Content: "x"},
			wantErr: ErrInvalidIntensity,
		},
		{
			name: "intensity above range",
			rec: Record{
				Type: KindInsight, SessionID: "s", Domain: "demos",
				Content: "x", Intensity: floatp(1.5),
			},
			wantErr: ErrInvalidIntensity,
		},
		{
			name: "negative intensity",
			rec: Record{
				Type: KindTransformation, SessionID: "s",
				Content: "x", Intensity: floatp(-0.1),
			},
			wantErr: ErrInvalidIntensity,
		},
		{
			name: "domain with path separator",
			rec: Record{
				Type: KindValue, SessionID: "s", Domain: "a/b", Content: "x",
			},
			wantErr: ErrInvalidDomain,
		},
		{
			name: "domain dotdot",
			rec: Record{
				Type: KindValue, SessionID: "s", Domain: "..", Content: "x",
			},
			wantErr: ErrInvalidDomain,
		},
		{
			name:    "missing content",
			rec:     Record{Type: KindEvent, SessionID: "s"},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing session",
			rec:     Record{Type: KindEvent, Content: "x"},
			wantErr: ErrMissingField,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rec.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidDomain(t *testing.T) {
	good := []string{"architecture", "demos", "multi-word", "snake_case", "v2"}
	bad := []string{"", ".", "..", "Upper", "with space", "a/b", `a\b`, "dé"}

	for _, d := range good {
		if !ValidDomain(d) {
			t.Errorf("ValidDomain(%q) = false, want true", d)
		}
	}
	for _, d := range bad {
		if ValidDomain(d) {
			t.Errorf("ValidDomain(%q) = true, want false", d)
		}
	}
}

func TestTime(t *testing.T) {
	r := Record{Timestamp: "2026-01-16T14:47:00Z"}
	want := time.Date(2026, 1, 16, 14, 47, 0, 0, time.UTC)
	if !r.Time().Equal(want) {
		t.Errorf("Time = %v, want %v", r.Time(), want)
	}

	r = Record{Timestamp: "not-a-time"}
	if !r.Time().IsZero() {
		t.Errorf("Time on malformed timestamp = %v, want zero", r.Time())
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if len(id) != 26 {
			t.Fatalf("id length = %d, want 26", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

// Package record defines the chronicle record types and their validation.
//
// Records are immutable and append-only: a correction is expressed as a new
// record that references the old one via builds_on, never as a rewrite.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies the record variant.
type Kind string

const (
	KindEvent          Kind = "event"
	KindInsight        Kind = "insight"
	KindLearning       Kind = "learning"
	KindValue          Kind = "value"
	KindTransformation Kind = "transformation"
)

// ValidKinds are the recognized record kinds.
var ValidKinds = map[Kind]bool{
	KindEvent:          true,
	KindInsight:        true,
	KindLearning:       true,
	KindValue:          true,
	KindTransformation: true,
}

// Validation errors. All are rejected before any durable effect occurs.
var (
	ErrInvalidKind      = errors.New("invalid record kind")
	ErrInvalidDomain    = errors.New("invalid domain")
	ErrInvalidIntensity = errors.New("invalid intensity")
	ErrMissingField     = errors.New("missing required field")
)

// Record is a single chronicle entry, stored as one JSON line.
//
// Content may carry symbolic annotations; the engine treats it as opaque
// bytes and never parses it beyond tokenization for the term index.
type Record struct {
	Type      Kind     `json:"type"`
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Timestamp string   `json:"timestamp"`
	Domain    string   `json:"domain,omitempty"`
	Content   string   `json:"content"`
	Intensity *float64 `json:"intensity,omitempty"`
	BuildsOn  []string `json:"builds_on,omitempty"`
	Context   string   `json:"context,omitempty"`
}

// NewID returns a fresh record id, sortable and unique across processes.
func NewID() string {
	return ulid.Make().String()
}

// Time parses the record timestamp. The zero time is returned for
// unparseable timestamps so malformed records sort last, not crash.
func (r *Record) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// domainKinds are the kinds that require a domain classification.
var domainKinds = map[Kind]bool{
	KindInsight:  true,
	KindLearning: true,
	KindValue:    true,
}

// intensityKinds are the kinds that require an intensity weight.
var intensityKinds = map[Kind]bool{
	KindInsight:        true,
	KindTransformation: true,
}

// Validate checks the record against its kind's required fields.
// It never mutates the record.
func (r *Record) Validate() error {
	if !ValidKinds[r.Type] {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Type)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: %s record requires content", ErrMissingField, r.Type)
	}
	if r.SessionID == "" {
		return fmt.Errorf("%w: %s record requires session_id", ErrMissingField, r.Type)
	}
	if domainKinds[r.Type] {
		if r.Domain == "" {
			return fmt.Errorf("%w: %s record requires a domain", ErrInvalidDomain, r.Type)
		}
	}
	if r.Domain != "" && !ValidDomain(r.Domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, r.Domain)
	}
	if intensityKinds[r.Type] && r.Intensity == nil {
		return fmt.Errorf("%w: %s record requires intensity", ErrInvalidIntensity, r.Type)
	}
	if r.Intensity != nil {
		v := *r.Intensity
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%w: %v not in [0.0, 1.0]", ErrInvalidIntensity, v)
		}
	}
	return nil
}

// ValidDomain reports whether s is usable as a single directory segment:
// lowercase alphanumeric plus hyphen and underscore, no separators.
func ValidDomain(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, "/\\") {
		return false
	}
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if !ok {
			return false
		}
	}
	return true
}

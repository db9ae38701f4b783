package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/emberwell/vault/internal/record"
	"github.com/emberwell/vault/internal/scan"
)

// ErrNotFound is returned when a lineage lookup names an unknown record id.
var ErrNotFound = errors.New("record not found")

// CycleError reports a builds_on chain that reaches back into itself.
// Normal operation never writes one, so a cycle is corrupt data; traversal
// stops and names the ids instead of looping.
type CycleError struct {
	IDs []string
}

func (e *CycleError) Error() string {
	return "lineage cycle detected: " + strings.Join(e.IDs, " -> ")
}

// Ancestors follows builds_on references transitively from the record with
// the given id, nearest first, depth-first in reference order. A record
// appearing through two branches is reported once.
func (e *Engine) Ancestors(ctx context.Context, id string) ([]record.Record, error) {
	byID := make(map[string]record.Record)
	_, err := e.scanner.Scan(ctx, func(pr scan.ParsedRecord) error {
		byID[pr.Record.ID] = pr.Record
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan for lineage: %w", err)
	}

	start, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var ancestors []record.Record
	visited := map[string]bool{id: true}
	onPath := map[string]bool{id: true}

	var walk func(rec record.Record, path []string) error
	walk = func(rec record.Record, path []string) error {
		for _, pid := range rec.BuildsOn {
			if onPath[pid] {
				cycle := append(append([]string(nil), path...), pid)
				return &CycleError{IDs: cycle}
			}
			if visited[pid] {
				continue
			}
			parent, ok := byID[pid]
			if !ok {
				// Dangling reference: the ancestor was never appended here.
				// Warn and keep going; one bad link must not hide the rest.
				log.Printf("lineage: %s references unknown ancestor %s", rec.ID, pid)
				continue
			}
			visited[pid] = true
			ancestors = append(ancestors, parent)
			onPath[pid] = true
			if err := walk(parent, append(path, pid)); err != nil {
				return err
			}
			delete(onPath, pid)
		}
		return nil
	}

	if err := walk(start, []string{id}); err != nil {
		return nil, err
	}
	return ancestors, nil
}

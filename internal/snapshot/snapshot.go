// Package snapshot materializes an on-demand summary of the chronicle into
// a small SQLite database for fast session resume. The snapshot is derived
// state: queries never consult it, and deleting the file loses nothing.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberwell/vault/internal/record"
	"github.com/emberwell/vault/internal/scan"
)

// topInsightLimit bounds how many high-intensity insights a snapshot keeps.
const topInsightLimit = 20

// Summary is what a resuming session gets back.
type Summary struct {
	BuiltAt     time.Time       `json:"built_at"`
	Records     int             `json:"records"`
	Domains     map[string]int  `json:"domains"`
	Sessions    map[string]int  `json:"sessions"`
	TopInsights []record.Record `json:"top_insights"`
}

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS domain_counts (
	domain  TEXT PRIMARY KEY,
	records INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_counts (
	session_id TEXT PRIMARY KEY,
	records    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS top_insights (
	id        TEXT PRIMARY KEY,
	domain    TEXT NOT NULL,
	content   TEXT NOT NULL,
	intensity REAL NOT NULL,
	timestamp TEXT NOT NULL
);
`

func open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure snapshot db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}
	return db, nil
}

// Materialize scans the corpus and writes a fresh snapshot at path,
// replacing any previous one wholesale.
func Materialize(ctx context.Context, sc *scan.Scanner, path string) (*Summary, error) {
	sum := &Summary{
		BuiltAt:  time.Now().UTC(),
		Domains:  make(map[string]int),
		Sessions: make(map[string]int),
	}

	var insights []record.Record
	_, err := sc.Scan(ctx, func(pr scan.ParsedRecord) error {
		rec := pr.Record
		sum.Records++
		if rec.Domain != "" {
			sum.Domains[rec.Domain]++
		}
		if rec.SessionID != "" {
			sum.Sessions[rec.SessionID]++
		}
		if rec.Type == record.KindInsight && rec.Intensity != nil {
			insights = append(insights, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan for snapshot: %w", err)
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return *insights[i].Intensity > *insights[j].Intensity
	})
	if len(insights) > topInsightLimit {
		insights = insights[:topInsightLimit]
	}
	sum.TopInsights = insights

	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"meta", "domain_counts", "session_counts", "top_insights"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return nil, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('built_at', ?), ('records', ?)`,
		sum.BuiltAt.Format(time.RFC3339Nano), fmt.Sprint(sum.Records)); err != nil {
		return nil, fmt.Errorf("write meta: %w", err)
	}
	for domain, n := range sum.Domains {
		if _, err := tx.Exec(`INSERT INTO domain_counts (domain, records) VALUES (?, ?)`, domain, n); err != nil {
			return nil, fmt.Errorf("write domain counts: %w", err)
		}
	}
	for session, n := range sum.Sessions {
		if _, err := tx.Exec(`INSERT INTO session_counts (session_id, records) VALUES (?, ?)`, session, n); err != nil {
			return nil, fmt.Errorf("write session counts: %w", err)
		}
	}
	for _, ins := range sum.TopInsights {
		if _, err := tx.Exec(
			`INSERT INTO top_insights (id, domain, content, intensity, timestamp) VALUES (?, ?, ?, ?, ?)`,
			ins.ID, ins.Domain, ins.Content, *ins.Intensity, ins.Timestamp); err != nil {
			return nil, fmt.Errorf("write top insights: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return sum, nil
}

// Load reads a previously materialized snapshot.
func Load(path string) (*Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no snapshot at %s: %w", path, err)
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sum := &Summary{
		Domains:  make(map[string]int),
		Sessions: make(map[string]int),
	}

	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		switch key {
		case "built_at":
			if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
				sum.BuiltAt = t
			}
		case "records":
			fmt.Sscanf(value, "%d", &sum.Records)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := readCounts(db, `SELECT domain, records FROM domain_counts`, sum.Domains); err != nil {
		return nil, fmt.Errorf("read domain counts: %w", err)
	}
	if err := readCounts(db, `SELECT session_id, records FROM session_counts`, sum.Sessions); err != nil {
		return nil, fmt.Errorf("read session counts: %w", err)
	}

	rows, err = db.Query(`SELECT id, domain, content, intensity, timestamp FROM top_insights ORDER BY intensity DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("read top insights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec record.Record
		var intensity float64
		rec.Type = record.KindInsight
		if err := rows.Scan(&rec.ID, &rec.Domain, &rec.Content, &intensity, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Intensity = &intensity
		sum.TopInsights = append(sum.TopInsights, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sum, nil
}

func readCounts(db *sql.DB, query string, into map[string]int) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

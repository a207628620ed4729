// Package catalog keeps a sqlite index of the segments saved to a folder, so
// that recordings can later be joined in playback order.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultName is the catalog file created inside the recording folder.
const DefaultName = "hlsdump.db"

// Segment sources.
const (
	SourcePrimary = "primary"
	SourceRetry   = "retry"
)

// ErrEmpty is returned when a listing matches no segments.
var ErrEmpty = errors.New("no catalogued segments")

// Entry is one saved segment.
type Entry struct {
	Path     string
	Prefix   string
	Epoch    uint64
	Sequence uint64
	URL      string
	Source   string
	Bytes    int64
	RunID    string
	SavedAt  time.Time
}

// Catalog is safe for concurrent use; both workers record into it.
type Catalog struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the catalog at dbPath. Entries recorded through this
// handle are tagged with a fresh run ID.
func Open(dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	c := &Catalog{db: db, runID: uuid.NewString()}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate catalog: %w", err)
	}
	return c, nil
}

// RunID identifies this recording session.
func (c *Catalog) RunID() string {
	return c.runID
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS segments (
		path      TEXT PRIMARY KEY,
		prefix    TEXT NOT NULL,
		epoch     INTEGER NOT NULL,
		sequence  INTEGER NOT NULL,
		url       TEXT NOT NULL,
		source    TEXT NOT NULL,
		bytes     INTEGER NOT NULL,
		run_id    TEXT NOT NULL,
		saved_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_segments_order ON segments (prefix, epoch, sequence)`,
}

func (c *Catalog) migrate() error {
	for _, stmt := range migrations {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores e. Re-recording a path replaces the earlier entry.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		e.RunID = c.runID
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
INSERT INTO segments (path, prefix, epoch, sequence, url, source, bytes, run_id, saved_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	url = excluded.url,
	source = excluded.source,
	bytes = excluded.bytes,
	run_id = excluded.run_id,
	saved_at = excluded.saved_at`,
		e.Path, e.Prefix, int64(e.Epoch), int64(e.Sequence), e.URL, e.Source, e.Bytes, e.RunID, e.SavedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record segment %s: %w", e.Path, err)
	}
	return nil
}

// List returns the entries for prefix in playback order (epoch, then
// sequence). An empty prefix lists every recording.
func (c *Catalog) List(ctx context.Context, prefix string) ([]Entry, error) {
	query := `SELECT path, prefix, epoch, sequence, url, source, bytes, run_id, saved_at FROM segments`
	var args []any
	if prefix != "" {
		query += ` WHERE prefix = ?`
		args = append(args, prefix)
	}
	query += ` ORDER BY prefix, epoch, sequence`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e               Entry
			epoch, sequence int64
			savedAt         int64
		)
		if err := rows.Scan(&e.Path, &e.Prefix, &epoch, &sequence, &e.URL, &e.Source, &e.Bytes, &e.RunID, &savedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		e.Epoch = uint64(epoch)
		e.Sequence = uint64(sequence)
		e.SavedAt = time.UnixMilli(savedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	return entries, nil
}

// Prefixes returns the distinct recording prefixes in the catalog.
func (c *Catalog) Prefixes(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT prefix FROM segments ORDER BY prefix`)
	if err != nil {
		return nil, fmt.Errorf("list prefixes: %w", err)
	}
	defer rows.Close()

	var prefixes []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, rows.Err()
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

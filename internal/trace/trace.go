// Package trace records the commit trace of a feedback-loop run in SQLite
// for offline inspection. A trace is a debugging artifact, not state
// persistence: systems never restore state from it.
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	session_id TEXT    NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	at_ns      INTEGER NOT NULL,
	event      TEXT    NOT NULL,
	state      TEXT    NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Store is a SQLite-backed trace sink.
// Single writer; reads may run concurrently thanks to WAL mode.
type Store struct {
	db *sql.DB
}

// Session identifies one recorded run.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Record is one commit: its sequence number, the virtual (or wall) time in
// nanoseconds, and canonical-JSON payloads for event and state.
type Record struct {
	Seq   int64
	AtNS  int64
	Event string
	State string
}

// Open creates or opens a trace database at path. ":memory:" gives an
// ephemeral store for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect trace db: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession registers a new run and returns its session ID.
func (s *Store) BeginSession(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("begin session %q: %w", name, err)
	}
	return id, nil
}

// Append writes one commit record. Records must arrive in seq order; the
// primary key rejects duplicates, surfacing double-commit bugs loudly.
func (s *Store) Append(ctx context.Context, sessionID string, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (session_id, seq, at_ns, event, state) VALUES (?, ?, ?, ?, ?)`,
		sessionID, r.Seq, r.AtNS, r.Event, r.State,
	)
	if err != nil {
		return fmt.Errorf("append record seq %d: %w", r.Seq, err)
	}
	return nil
}

// Records returns a session's trace in strict seq order.
func (s *Store) Records(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, at_ns, event, state FROM records WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Seq, &r.AtNS, &r.Event, &r.State); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Sessions lists recorded runs, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM sessions ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess      Session
			createdAt string
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse session timestamp: %w", err)
		}
		sess.CreatedAt = t
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

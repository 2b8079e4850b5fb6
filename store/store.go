// Package store keeps the local history of completed and failed check-ins.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"insulink/questionnaire"
)

const schema = `
	CREATE TABLE IF NOT EXISTS checkins (
		id TEXT PRIMARY KEY,
		started_at REAL NOT NULL,
		completed_at REAL,
		strategy TEXT NOT NULL,
		answers_json TEXT NOT NULL,
		result_json TEXT,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS checkins_started ON checkins(started_at);
`

// CheckIn is one stored check-in. Result is nil when scoring never
// succeeded; Err then holds the reason.
type CheckIn struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Strategy    string
	Answers     questionnaire.AnswerSet
	Result      *questionnaire.Result
	Err         string
}

type Store struct {
	db *sql.DB
}

const FileName = "history.sqlite"

// DefaultPath returns the history database inside dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, FileName)
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces c.
func (s *Store) Save(ctx context.Context, c CheckIn) error {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	var result sql.NullString
	if c.Result != nil {
		b, err := json.Marshal(c.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	var completed sql.NullFloat64
	if c.CompletedAt != nil {
		completed = sql.NullFloat64{Float64: unixFromTime(*c.CompletedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkins (id, started_at, completed_at, strategy, answers_json, result_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, unixFromTime(c.StartedAt), completed, c.Strategy, string(answers), result, c.Err)
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

// Recent returns up to limit check-ins, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]CheckIn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, strategy, answers_json, result_json, error
		FROM checkins
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query checkins: %w", err)
	}
	defer rows.Close()

	var out []CheckIn
	for rows.Next() {
		var c CheckIn
		var startedAt float64
		var completedAt sql.NullFloat64
		var answers string
		var result sql.NullString
		if err := rows.Scan(&c.ID, &startedAt, &completedAt, &c.Strategy, &answers, &result, &c.Err); err != nil {
			return nil, fmt.Errorf("scan checkin: %w", err)
		}
		c.StartedAt = timeFromUnix(startedAt)
		if completedAt.Valid {
			t := timeFromUnix(completedAt.Float64)
			c.CompletedAt = &t
		}
		if err := json.Unmarshal([]byte(answers), &c.Answers); err != nil {
			return nil, fmt.Errorf("decode answers for %s: %w", c.ID, err)
		}
		if result.Valid {
			var r questionnaire.Result
			if err := json.Unmarshal([]byte(result.String), &r); err != nil {
				return nil, fmt.Errorf("decode result for %s: %w", c.ID, err)
			}
			c.Result = &r
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

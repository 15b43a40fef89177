package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS puzzles (
    solution_hash TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS unsolved_puzzles (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    solution_hash TEXT NOT NULL UNIQUE
);
`

// SQLiteStore persists registry state in a SQLite database.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLiteStore opens the database at path and applies the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps writers serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) View(ctx context.Context, fn func(StateReader) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqliteState{ctx: ctx, tx: tx})
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(State) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqliteState{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close is nil-safe so callers can defer it on every startup path.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type sqliteState struct {
	ctx context.Context
	tx  *sql.Tx
}

func (q *sqliteState) Puzzle(hash string) (Puzzle, bool, error) {
	var record string
	err := q.tx.QueryRowContext(q.ctx,
		`SELECT record FROM puzzles WHERE solution_hash = ?`, hash).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return Puzzle{}, false, nil
	}
	if err != nil {
		return Puzzle{}, false, fmt.Errorf("get puzzle %s: %w", hash, err)
	}

	var p Puzzle
	if err := json.Unmarshal([]byte(record), &p); err != nil {
		return Puzzle{}, false, fmt.Errorf("decode puzzle %s: %w", hash, err)
	}
	return p, true, nil
}

func (q *sqliteState) UnsolvedHashes() ([]string, error) {
	rows, err := q.tx.QueryContext(q.ctx, `SELECT solution_hash FROM unsolved_puzzles ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list unsolved: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan unsolved: %w", err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read unsolved: %w", err)
	}
	return hashes, nil
}

func (q *sqliteState) PutPuzzle(hash string, p Puzzle) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode puzzle %s: %w", hash, err)
	}
	status := "unsolved"
	if !IsUnsolved(p.Status) {
		status = "solved"
	}
	_, err = q.tx.ExecContext(q.ctx, `
INSERT INTO puzzles (solution_hash, status, record) VALUES (?, ?, ?)
ON CONFLICT(solution_hash) DO UPDATE SET status = excluded.status, record = excluded.record`,
		hash, status, string(record))
	if err != nil {
		return fmt.Errorf("put puzzle %s: %w", hash, err)
	}
	return nil
}

func (q *sqliteState) AddUnsolved(hash string) error {
	if _, err := q.tx.ExecContext(q.ctx,
		`INSERT OR IGNORE INTO unsolved_puzzles (solution_hash) VALUES (?)`, hash); err != nil {
		return fmt.Errorf("index unsolved %s: %w", hash, err)
	}
	return nil
}

func (q *sqliteState) RemoveUnsolved(hash string) error {
	if _, err := q.tx.ExecContext(q.ctx,
		`DELETE FROM unsolved_puzzles WHERE solution_hash = ?`, hash); err != nil {
		return fmt.Errorf("unindex %s: %w", hash, err)
	}
	return nil
}

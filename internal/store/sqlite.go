package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/laminarci/laminar/internal/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	next_build INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS builds (
	name TEXT NOT NULL,
	build INTEGER NOT NULL,
	node TEXT NOT NULL DEFAULT '',
	queued_at INTEGER NOT NULL,
	started_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL,
	result TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	params TEXT NOT NULL DEFAULT '{}',
	log_blob BLOB,
	PRIMARY KEY (name, build)
);
`

// SQLite is a Store implementation backed by modernc.org/sqlite, a pure
// Go driver so the engine never needs cgo. Sequence-number allocation
// uses a dedicated counters table rather than MAX(build)+1 on every call
// so that a build number is durably consumed the instant it's issued,
// even if the build never completes (spec §7 StorePersistenceError).
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and ensures its
// schema exists.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", path, err)
	}
	// The engine loop is single-threaded; serialize store access to
	// avoid SQLITE_BUSY from concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) NextBuildNumber(ctx context.Context, name string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next build number: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.QueryRowContext(ctx, `SELECT next_build FROM counters WHERE name = ?`, name).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No counter yet: derive the starting point from any build
		// records that already exist (e.g. a store migrated from an
		// older format), defaulting to 1.
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(build), 0) + 1 FROM builds WHERE name = ?`, name,
		).Scan(&next); err != nil {
			return 0, fmt.Errorf("derive initial build number for %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (name, next_build) VALUES (?, ?)`, name, next+1,
		); err != nil {
			return 0, fmt.Errorf("seed counter for %s: %w", name, err)
		}
	case err != nil:
		return 0, fmt.Errorf("read counter for %s: %w", name, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE counters SET next_build = ? WHERE name = ?`, next+1, name,
		); err != nil {
			return 0, fmt.Errorf("advance counter for %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit counter allocation for %s: %w", name, err)
	}
	return next, nil
}

func (s *SQLite) RecordBuild(ctx context.Context, rec BuildRecord, log []byte) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal params for %s#%d: %w", rec.Name, rec.Build, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO builds (name, build, node, queued_at, started_at, completed_at, result, reason, params, log_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, build) DO NOTHING
	`,
		rec.Name, rec.Build, rec.Node,
		rec.QueuedAt.Unix(), rec.StartedAt.Unix(), rec.CompletedAt.Unix(),
		rec.Result.String(), rec.Reason, string(params), log,
	)
	if err != nil {
		return fmt.Errorf("record build %s#%d: %w", rec.Name, rec.Build, err)
	}
	return nil
}

func (s *SQLite) LastResult(ctx context.Context, name string) (model.RunState, error) {
	var result string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM builds WHERE name = ? ORDER BY build DESC LIMIT 1`, name,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Unknown, nil
	}
	if err != nil {
		return model.Unknown, fmt.Errorf("last result for %s: %w", name, err)
	}
	return model.ParseRunState(result), nil
}

func (s *SQLite) History(ctx context.Context, name string, limit int) ([]BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, build, node, queued_at, started_at, completed_at, result, reason, params
		FROM builds WHERE name = ? ORDER BY build DESC LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", name, err)
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var queuedAt, startedAt, completedAt int64
		var result, params string
		if err := rows.Scan(&rec.Name, &rec.Build, &rec.Node, &queuedAt, &startedAt, &completedAt, &result, &rec.Reason, &params); err != nil {
			return nil, fmt.Errorf("scan history row for %s: %w", name, err)
		}
		rec.QueuedAt = time.Unix(queuedAt, 0).UTC()
		rec.StartedAt = time.Unix(startedAt, 0).UTC()
		rec.CompletedAt = time.Unix(completedAt, 0).UTC()
		rec.Result = model.ParseRunState(result)
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params for %s#%d: %w", rec.Name, rec.Build, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) GetLog(ctx context.Context, name string, build int) ([]byte, error) {
	var log []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT log_blob FROM builds WHERE name = ? AND build = ?`, name, build,
	).Scan(&log)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no such build %s#%d", name, build)
	}
	if err != nil {
		return nil, fmt.Errorf("get log for %s#%d: %w", name, build, err)
	}
	return log, nil
}

func (s *SQLite) ListJobs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM builds ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan job name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

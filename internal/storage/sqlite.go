package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "threadq/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT    NOT NULL,
	account     TEXT    NOT NULL,
	publisher   TEXT    NOT NULL,
	tunnel      TEXT,
	egress      TEXT,
	ok          INTEGER NOT NULL,
	reason      TEXT,
	message     TEXT,
	post_id     TEXT,
	enqueued_at INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	queue_ms    INTEGER NOT NULL,
	took_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_started_at ON outcomes(started_at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendOutcome(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes(task_id, account, publisher, tunnel, egress, ok, reason, message, post_id, enqueued_at, started_at, queue_ms, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.TaskID, r.Account, r.Publisher, nullStr(r.Tunnel), nullStr(r.Egress), boolInt(r.OK),
		nullStr(r.Reason), nullStr(r.Message), nullStr(r.PostID),
		r.EnqueuedAt.UnixMilli(), r.StartedAt.UnixMilli(), r.QueueMS, r.TookMS,
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, account, publisher, tunnel, egress, ok, reason, message, post_id, enqueued_at, started_at, queue_ms, took_ms
		 FROM outcomes ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                                       Record
			tunnel, egress, reason, message, postID sql.NullString
			ok                                      int
			enqueued, started                       int64
		)
		if err := rows.Scan(&r.TaskID, &r.Account, &r.Publisher, &tunnel, &egress, &ok, &reason, &message, &postID, &enqueued, &started, &r.QueueMS, &r.TookMS); err != nil {
			return nil, err
		}
		r.Tunnel, r.Egress, r.Reason, r.Message, r.PostID = tunnel.String, egress.String, reason.String, message.String, postID.String
		r.OK = ok != 0
		r.EnqueuedAt = time.UnixMilli(enqueued)
		r.StartedAt = time.UnixMilli(started)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

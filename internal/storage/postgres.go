package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "threadq/pkg/logx"
)

const (
	pgSchema = `
		CREATE TABLE IF NOT EXISTS outcomes (
			id          BIGSERIAL PRIMARY KEY,
			task_id     TEXT        NOT NULL,
			account     TEXT        NOT NULL,
			publisher   TEXT        NOT NULL,
			tunnel      TEXT,
			egress      TEXT,
			ok          BOOLEAN     NOT NULL,
			reason      TEXT,
			message     TEXT,
			post_id     TEXT,
			enqueued_at TIMESTAMPTZ NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			queue_ms    BIGINT      NOT NULL,
			took_ms     BIGINT      NOT NULL
		);
		CREATE INDEX IF NOT EXISTS outcomes_started_at ON outcomes (started_at);
	`
	pgInsert = `
		INSERT INTO outcomes (task_id, account, publisher, tunnel, egress, ok, reason, message, post_id, enqueued_at, started_at, queue_ms, took_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	pgRecent = `
		SELECT task_id, account, publisher, tunnel, egress, ok, reason, message, post_id, enqueued_at, started_at, queue_ms, took_ms
		FROM outcomes
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`
	pgPrune = `DELETE FROM outcomes WHERE started_at < $1`
)

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pgxConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgxConfig.MaxConns = cfg.MaxConns
	}
	pgxConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &pgStore{pool: pool, log: log}, nil
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) AppendOutcome(ctx context.Context, r Record) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	_, err := s.pool.Exec(ctx, pgInsert,
		r.TaskID, r.Account, r.Publisher, nullStr(r.Tunnel), nullStr(r.Egress), r.OK,
		nullStr(r.Reason), nullStr(r.Message), nullStr(r.PostID),
		r.EnqueuedAt, r.StartedAt, r.QueueMS, r.TookMS,
	)
	return err
}

func (s *pgStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, pgRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			r                                       Record
			tunnel, egress, reason, message, postID *string
		)
		err := row.Scan(&r.TaskID, &r.Account, &r.Publisher, &tunnel, &egress, &r.OK, &reason, &message, &postID, &r.EnqueuedAt, &r.StartedAt, &r.QueueMS, &r.TookMS)
		r.Tunnel, r.Egress, r.Reason, r.Message, r.PostID = deref(tunnel), deref(egress), deref(reason), deref(message), deref(postID)
		return r, err
	})
}

func (s *pgStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrDisabled
	}
	tag, err := s.pool.Exec(ctx, pgPrune, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

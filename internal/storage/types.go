package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

const (
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultPruneSchedule = "@hourly"
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file, no external dependencies
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only

	// Retention drops records older than this. 0 takes the default, < 0 keeps everything.
	Retention     time.Duration
	PruneSchedule string
}

// Record is one finished publish attempt. Keep it compact and schema-stable.
type Record struct {
	TaskID     string    `json:"task_id"`
	Account    string    `json:"account"`
	Publisher  string    `json:"publisher"`
	Tunnel     string    `json:"tunnel,omitempty"`
	Egress     string    `json:"egress,omitempty"`
	OK         bool      `json:"ok"`
	Reason     string    `json:"reason,omitempty"`
	Message    string    `json:"message,omitempty"`
	PostID     string    `json:"post_id,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at"`
	QueueMS    int64     `json:"queue_ms"`
	TookMS     int64     `json:"took_ms"`
}

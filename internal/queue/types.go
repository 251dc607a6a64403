package queue

import (
	"context"
	"time"

	"threadq/internal/publisher"
	"threadq/internal/tunnel"
)

const (
	DefaultCooldown    = 25 * time.Second
	DefaultHistorySize = 100
)

// Config controls the worker loop. The app layer maps config.worker and the
// publisher defaults into this struct.
type Config struct {
	// Cooldown is the pause between two publish attempts while work remains.
	// Zero takes DefaultCooldown; a negative value disables the pause.
	Cooldown time.Duration

	HistorySize int

	// DefaultProxy is used for tasks that carry no proxy descriptor.
	DefaultProxy string

	// LogEgress resolves and logs the tunnel exit address before each attempt.
	LogEgress bool
}

func (c Config) withDefaults() Config {
	switch {
	case c.Cooldown == 0:
		c.Cooldown = DefaultCooldown
	case c.Cooldown < 0:
		c.Cooldown = 0
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	return c
}

// Egress describes where a tunnel exits. Errors are logged and ignored.
type Egress interface {
	Describe(ctx context.Context, tun *tunnel.Tunnel) (string, error)
}

type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Bus event types.
const (
	EventStarted   = "publish.started"
	EventSucceeded = "publish.succeeded"
	EventFailed    = "publish.failed"
	EventIdle      = "queue.idle"
)

// Attempt is the record of one publish attempt. It is the payload of the
// publish.* bus events and the unit the outcome log stores.
type Attempt struct {
	TaskID          string            `json:"taskId"`
	AccountIdentity string            `json:"accountIdentity"`
	Publisher       string            `json:"publisher"`
	Tunnel          string            `json:"tunnel"`
	Egress          string            `json:"egress,omitempty"`
	EnqueuedAt      time.Time         `json:"enqueuedAt"`
	Started         time.Time         `json:"started"`
	QueueDelay      time.Duration     `json:"queueDelay"`
	Duration        time.Duration     `json:"duration"`
	Outcome         publisher.Outcome `json:"outcome"`
}

// IdleEvent is the payload of queue.idle.
type IdleEvent struct {
	Processed uint64 `json:"processed"`
}

type Counters struct {
	Enqueued  uint64 `json:"enqueued"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Loops     uint64 `json:"loops"`
}

// Snapshot is a point-in-time view for the status endpoint.
type Snapshot struct {
	State     State         `json:"state"`
	Pending   int           `json:"pending"`
	Current   string        `json:"current,omitempty"`
	Cooldown  time.Duration `json:"cooldown"`
	Publisher string        `json:"publisher"`
	Counters  Counters      `json:"counters"`
	History   []Attempt     `json:"history"`
}

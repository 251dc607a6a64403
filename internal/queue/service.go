// Package queue owns the in-memory publish queue and its single worker loop.
//
// At most one loop runs at a time. The state flag and the pending slice share
// one mutex, and the loop flips back to Idle under the same lock that observed
// the queue empty, so a concurrent Enqueue either lands in the running loop or
// starts the next one.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"threadq/internal/eventbus"
	"threadq/internal/publisher"
	rtsup "threadq/internal/runtime/supervisor"
	"threadq/internal/task"
	logx "threadq/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	pending []task.Task
	state   State
	current string

	sup     *rtsup.Supervisor
	stopped bool

	log    logx.Logger
	bus    eventbus.Bus
	pub    publisher.Publisher
	egress Egress

	hmu     sync.Mutex
	history []Attempt

	enqueued  atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	loops     atomic.Uint64
}

// New builds an unstarted queue. Tasks enqueued before Start wait for it.
func New(cfg Config, pub publisher.Publisher, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg: cfg.withDefaults(),
		pub: pub,
		log: log,
		bus: bus,
	}
}

// WithEgress installs the tunnel exit lookup used when Config.LogEgress is set.
func (s *Service) WithEgress(e Egress) *Service {
	s.mu.Lock()
	s.egress = e
	s.mu.Unlock()
	return s
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "queue"))),
		// a loop failure must not take the process down
		rtsup.WithCancelOnError(false),
	)
	cfg := s.cfg
	s.mu.Unlock()

	s.log.Info("publish queue started",
		logx.String("publisher", s.pub.Name()),
		logx.Duration("cooldown", cfg.Cooldown),
	)
	s.tryStart()
}

// Stop cancels the loop. The in-flight attempt and every pending task are
// abandoned.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	sup := s.sup
	abandoned := len(s.pending)
	s.pending = nil
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
		if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
			s.log.Warn("publish queue stop timed out", logx.Err(ctx.Err()))
			return
		}
	}
	s.log.Info("publish queue stopped", logx.Int("abandoned", abandoned))
}

// Enqueue appends t to the tail and returns its 1-based position. It never
// waits on the loop.
func (s *Service) Enqueue(t task.Task) (int, error) {
	if err := t.Validate(false); err != nil {
		return 0, errors.Join(ErrInvalid, err)
	}
	if t.ID == "" || t.EnqueuedAt.IsZero() {
		t = task.Admit(t, time.Now())
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrStopped
	}
	s.pending = append(s.pending, t)
	pos := len(s.pending)
	s.mu.Unlock()

	s.enqueued.Add(1)
	s.log.Info("task queued",
		logx.String("account", t.AccountIdentity),
		logx.String("id", t.ID),
		logx.Int("pending", pos),
	)
	s.tryStart()
	return pos, nil
}

// tryStart spawns the loop when the queue is started, idle and non-empty.
func (s *Service) tryStart() {
	s.mu.Lock()
	if s.sup == nil || s.stopped || s.state == Running || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.state = Running
	sup := s.sup
	s.mu.Unlock()

	s.loops.Add(1)
	sup.Go("queue.loop", s.loop)
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Running
}

// Len reports the number of pending tasks, excluding the one in flight.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SetCooldown changes the pause for the next wait; a wait already in
// progress keeps its original duration.
func (s *Service) SetCooldown(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	prev := s.cfg.Cooldown
	s.cfg.Cooldown = d
	s.mu.Unlock()
	if prev != d {
		s.log.Info("cooldown updated", logx.Duration("from", prev), logx.Duration("to", d))
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		State:     s.state,
		Pending:   len(s.pending),
		Current:   s.current,
		Cooldown:  s.cfg.Cooldown,
		Publisher: s.pub.Name(),
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = make([]Attempt, len(s.history))
	copy(snap.History, s.history)
	s.hmu.Unlock()

	snap.Counters = Counters{
		Enqueued:  s.enqueued.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Loops:     s.loops.Load(),
	}
	return snap
}

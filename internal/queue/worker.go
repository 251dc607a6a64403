package queue

import (
	"context"
	"time"

	"threadq/internal/credentials"
	"threadq/internal/eventbus"
	"threadq/internal/publisher"
	"threadq/internal/task"
	"threadq/internal/tunnel"
	logx "threadq/pkg/logx"
)

const egressTimeout = 15 * time.Second

func (s *Service) loop(ctx context.Context) error {
	idle := false
	defer func() {
		// next already handed the flag over; resetting it here could clobber
		// a loop started by a later Enqueue.
		if !idle {
			s.release()
		}
	}()

	var processed uint64
	for {
		t, ok := s.next()
		if !ok {
			idle = true
			s.log.Info("all queued tasks done", logx.Uint64("processed", processed))
			s.publish(EventIdle, IdleEvent{Processed: processed})
			return nil
		}
		s.run(ctx, t)
		processed++

		if ctx.Err() != nil {
			return nil
		}
		if !s.cooldown(ctx) {
			return nil
		}
	}
}

// next pops the head. On an empty queue it flips the state to Idle under the
// same lock, which ends this loop.
func (s *Service) next() (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.pending) == 0 {
		s.state = Idle
		s.current = ""
		return task.Task{}, false
	}
	t := s.pending[0]
	s.pending[0] = task.Task{}
	s.pending = s.pending[1:]
	s.current = t.ID
	return t, true
}

func (s *Service) release() {
	s.mu.Lock()
	s.state = Idle
	s.current = ""
	s.mu.Unlock()
}

// cooldown waits while work remains. It reports false when the loop should
// exit because of shutdown.
func (s *Service) cooldown(ctx context.Context) bool {
	s.mu.Lock()
	remaining := len(s.pending)
	d := s.cfg.Cooldown
	s.mu.Unlock()

	if remaining == 0 || d <= 0 {
		return true
	}
	s.log.Info("cooling down before next task", logx.Duration("wait", d), logx.Int("pending", remaining))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Service) run(ctx context.Context, t task.Task) {
	s.mu.Lock()
	cfg := s.cfg
	eg := s.egress
	s.mu.Unlock()

	start := time.Now()
	log := s.log.With(logx.String("account", t.AccountIdentity), logx.String("id", t.ID))

	descriptor := t.ProxyDescriptor
	if descriptor == "" {
		descriptor = cfg.DefaultProxy
	}
	tun := tunnel.Resolve(descriptor)
	if tun == nil && descriptor != "" {
		log.Warn("malformed proxy descriptor, publishing direct")
	}

	a := Attempt{
		TaskID:          t.ID,
		AccountIdentity: t.AccountIdentity,
		Publisher:       s.pub.Name(),
		Tunnel:          tun.String(),
		EnqueuedAt:      t.EnqueuedAt,
		Started:         start,
	}
	if !t.EnqueuedAt.IsZero() {
		a.QueueDelay = start.Sub(t.EnqueuedAt)
	}

	if cfg.LogEgress && eg != nil {
		ectx, cancel := context.WithTimeout(ctx, egressTimeout)
		desc, err := eg.Describe(ectx, tun)
		cancel()
		if err != nil {
			log.Warn("egress lookup failed", logx.Err(err))
		} else {
			a.Egress = desc
			log.Info("egress resolved", logx.String("egress", desc))
		}
	}

	log.Info("publish started", logx.String("tunnel", a.Tunnel), logx.Duration("queue_delay", a.QueueDelay))
	s.publish(EventStarted, a)

	creds := credentials.ForTask(t)
	if err := creds.Require(credentials.FieldSessionToken, credentials.FieldAccountUserID); err != nil {
		a.Outcome = publisher.Fail(err)
	} else {
		a.Outcome = publisher.Safe(ctx, s.pub, t, creds, tun)
	}
	a.Duration = time.Since(start)
	s.record(log, a, cfg.HistorySize)
}

func (s *Service) record(log logx.Logger, a Attempt, historySize int) {
	if a.Outcome.OK {
		s.succeeded.Add(1)
		log.Info("publish succeeded", logx.String("post", a.Outcome.PostID), logx.Duration("took", a.Duration))
		s.publish(EventSucceeded, a)
	} else {
		s.failed.Add(1)
		log.Warn("publish failed",
			logx.String("reason", string(a.Outcome.Reason)),
			logx.String("error", a.Outcome.Message),
			logx.Duration("took", a.Duration),
		)
		s.publish(EventFailed, a)
	}

	s.hmu.Lock()
	s.history = append(s.history, a)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

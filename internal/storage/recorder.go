package storage

import (
	"context"
	"time"

	"threadq/internal/eventbus"
	"threadq/internal/queue"
	logx "threadq/pkg/logx"
)

const appendTimeout = 5 * time.Second

// FromAttempt converts a queue attempt into a stored record.
func FromAttempt(a queue.Attempt) Record {
	return Record{
		TaskID:     a.TaskID,
		Account:    a.AccountIdentity,
		Publisher:  a.Publisher,
		Tunnel:     a.Tunnel,
		Egress:     a.Egress,
		OK:         a.Outcome.OK,
		Reason:     string(a.Outcome.Reason),
		Message:    a.Outcome.Message,
		PostID:     a.Outcome.PostID,
		EnqueuedAt: a.EnqueuedAt,
		StartedAt:  a.Started,
		QueueMS:    a.QueueDelay.Milliseconds(),
		TookMS:     a.Duration.Milliseconds(),
	}
}

// RecordOutcomes drains finished attempts from bus into store until ctx ends.
func RecordOutcomes(ctx context.Context, bus eventbus.Bus, store Store, log logx.Logger) error {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != queue.EventSucceeded && e.Type != queue.EventFailed {
				continue
			}
			a, ok := e.Data.(queue.Attempt)
			if !ok {
				continue
			}
			actx, cancel := context.WithTimeout(ctx, appendTimeout)
			err := store.AppendOutcome(actx, FromAttempt(a))
			cancel()
			if err != nil {
				log.Warn("outcome append failed", logx.String("id", a.TaskID), logx.Err(err))
			}
		}
	}
}

package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"threadq/internal/eventbus"
	"threadq/internal/queue"
	rtsup "threadq/internal/runtime/supervisor"
	kit "threadq/internal/transport"
	logx "threadq/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

const historySize = 100

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	target kit.ChatTarget
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	queue chan Notification
	sup   *rtsup.Supervisor

	// key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, target kit.ChatTarget, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		target: target,
		log:    log,
		bus:    bus,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps rate limit, retry and dedup settings. QueueSize takes effect on
// the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 1000
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start runs the delivery worker and the bus watcher. It is a no-op when
// disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled || s.sender == nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// notifications are best-effort; never take the app down
		rtsup.WithCancelOnError(false),
	)
	sup, q := s.sup, s.queue
	s.mu.Unlock()

	sup.GoRestart("notifier.worker", func(c context.Context) error {
		s.workerLoop(c, q)
		return c.Err()
	}, rtsup.WithPublishFirstError(true))

	if s.bus != nil {
		events, unsub := s.bus.Subscribe(64)
		sup.Go0("notifier.watch", func(c context.Context) {
			defer unsub()
			s.watch(c, events)
		})
	}
}

// Stop halts intake and abandons undelivered messages once ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.queue = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
}

func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	q := s.queue
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.mu.Unlock()
	if q == nil {
		return ErrStopped
	}
	if n.Target.ChatID == 0 {
		n.Target = s.target
	}

	if window > 0 && n.Key != "" && !s.dedupAllow(n.Key, window, maxEntries) {
		s.emit(EventDeduped, n, nil)
		return nil
	}

	select {
	case q <- n:
		return nil
	default:
		s.emit(EventDropped, n, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) watch(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a, ok := e.Data.(queue.Attempt)
			if !ok {
				continue
			}
			s.mu.Lock()
			onSuccess := s.cfg.OnSuccess
			s.mu.Unlock()
			switch {
			case e.Type == queue.EventFailed:
			case e.Type == queue.EventSucceeded && onSuccess:
			default:
				continue
			}
			if err := s.Notify(ctx, FromAttempt(a)); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Debug("attempt notification not queued", logx.String("id", a.TaskID), logx.Err(err))
			}
		}
	}
}

// FromAttempt renders a finished attempt. Failures share a key per account
// and reason so repeats are deduplicated; successes are never deduplicated.
func FromAttempt(a queue.Attempt) Notification {
	var b strings.Builder
	if a.Outcome.OK {
		fmt.Fprintf(&b, "published for %s", a.AccountIdentity)
		if a.Outcome.PostID != "" {
			fmt.Fprintf(&b, " (post %s)", a.Outcome.PostID)
		}
	} else {
		fmt.Fprintf(&b, "publish failed for %s\nreason: %s", a.AccountIdentity, a.Outcome.Reason)
		if a.Outcome.Message != "" {
			fmt.Fprintf(&b, "\ndetail: %s", a.Outcome.Message)
		}
	}
	fmt.Fprintf(&b, "\nvia: %s", a.Tunnel)
	if a.Egress != "" {
		fmt.Fprintf(&b, " (%s)", a.Egress)
	}
	fmt.Fprintf(&b, "\ntook: %s, waited: %s", a.Duration.Round(time.Millisecond), a.QueueDelay.Round(time.Second))

	n := Notification{Text: b.String(), Options: &kit.SendOptions{DisablePreview: true}}
	if !a.Outcome.OK {
		n.Key = "fail|" + a.AccountIdentity + "|" + string(a.Outcome.Reason)
	}
	return n
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q:
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := s.sender.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.appendHistory(n.Text)
			s.emit(EventSent, n, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if errors.Is(err, kit.ErrNoTarget) || attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.log.Warn("notification undelivered", logx.Err(lastErr))
	s.emit(EventFailed, n, lastErr)
}

func (s *Service) emit(typ string, n Notification, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Key: n.Key, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict the earliest expiries until within cap.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	return min(max(d, 0), cfg.RetryMaxDelay)
}

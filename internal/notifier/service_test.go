package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"threadq/internal/eventbus"
	"threadq/internal/publisher"
	"threadq/internal/queue"
	kit "threadq/internal/transport"
	logx "threadq/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	fails int
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return kit.MessageRef{}, errors.New("flaky")
	}
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func failedAttempt(account string) queue.Attempt {
	return queue.Attempt{
		TaskID:          "t-" + account,
		AccountIdentity: account,
		Tunnel:          "direct",
		Outcome:         publisher.Failure(publisher.ReasonUnauthenticated, "login_required"),
	}
}

func TestFromAttempt(t *testing.T) {
	t.Parallel()
	n := FromAttempt(failedAttempt("alice"))
	if !strings.Contains(n.Text, "publish failed for alice") || !strings.Contains(n.Text, "reason: unauthenticated") {
		t.Fatalf("text = %q", n.Text)
	}
	if n.Key != "fail|alice|unauthenticated" {
		t.Fatalf("key = %q", n.Key)
	}

	ok := FromAttempt(queue.Attempt{AccountIdentity: "bob", Tunnel: "direct", Outcome: publisher.Success("99")})
	if ok.Key != "" || !strings.Contains(ok.Text, "post 99") {
		t.Fatalf("success notification = %+v", ok)
	}
}

func TestWatchReportsFailuresAndDedups(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sender := &fakeSender{}
	svc := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}, sender, kit.ChatTarget{ChatID: 7}, logx.Nop(), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	bus.Publish(eventbus.Event{Type: queue.EventFailed, Data: failedAttempt("alice")})
	waitFor(t, func() bool { return len(sender.sent()) == 1 })

	// same account and reason inside the window is suppressed
	bus.Publish(eventbus.Event{Type: queue.EventFailed, Data: failedAttempt("alice")})
	bus.Publish(eventbus.Event{Type: queue.EventSucceeded, Data: queue.Attempt{AccountIdentity: "alice", Outcome: publisher.Success("1")}})
	bus.Publish(eventbus.Event{Type: queue.EventFailed, Data: failedAttempt("bob")})
	waitFor(t, func() bool { return len(sender.sent()) == 2 })

	time.Sleep(50 * time.Millisecond)
	got := sender.sent()
	if len(got) != 2 || !strings.Contains(got[1], "bob") {
		t.Fatalf("sent = %q", got)
	}
}

func TestSendRetries(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{fails: 2}
	svc := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, sender, kit.ChatTarget{ChatID: 7}, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := svc.Notify(ctx, Notification{Text: "hello"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(svc.Snapshot()) == 1 })
	if got := sender.sent(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %q", got)
	}
}

func TestNotifyWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()
	off := New(Config{}, &fakeSender{}, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	if err := off.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Notify = %v", err)
	}

	on := New(Config{Enabled: true}, &fakeSender{}, kit.ChatTarget{ChatID: 1}, logx.Nop(), nil)
	if err := on.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("unstarted Notify = %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d delay %v out of bounds", attempt, d)
		}
	}
}

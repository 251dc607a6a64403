package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"threadq/internal/eventbus"
	"threadq/internal/publisher"
	"threadq/internal/queue"
	logx "threadq/pkg/logx"
)

func openTestFile(t *testing.T) Store {
	t.Helper()
	return openTestStore(t, "file")
}

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: driver, Path: filepath.Join(t.TempDir(), "threadq.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("Open(none) = %v, %v", st, err)
	}
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestStoreAppendRecentPrune(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTestStore(t, driver)
			ctx := context.Background()
			now := time.Now()

			for i, age := range []time.Duration{72 * time.Hour, 2 * time.Hour, time.Minute} {
				r := Record{TaskID: string(rune('a' + i)), Account: "acct", Publisher: "web", OK: i%2 == 0, StartedAt: now.Add(-age)}
				if err := st.AppendOutcome(ctx, r); err != nil {
					t.Fatal(err)
				}
			}

			got, err := st.Recent(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].TaskID != "c" || got[1].TaskID != "b" {
				t.Fatalf("Recent() = %+v", got)
			}
			if !got[0].OK || got[1].OK || got[0].Account != "acct" {
				t.Fatalf("fields not preserved: %+v", got)
			}

			n, err := st.Prune(ctx, now.Add(-24*time.Hour))
			if err != nil || n != 1 {
				t.Fatalf("Prune() = %d, %v", n, err)
			}
			if err := st.AppendOutcome(ctx, Record{TaskID: "d", Account: "acct", Publisher: "web", StartedAt: now}); err != nil {
				t.Fatalf("append after prune: %v", err)
			}
			all, _ := st.Recent(ctx, 0)
			if len(all) != 3 {
				t.Fatalf("after prune = %+v", all)
			}
		})
	}
}

func TestRecordOutcomesFromBus(t *testing.T) {
	t.Parallel()
	st := openTestFile(t)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = RecordOutcomes(ctx, bus, st, logx.Nop())
	}()

	a := queue.Attempt{TaskID: "t1", AccountIdentity: "acct", Publisher: "native", Started: time.Now(), Outcome: publisher.Failure(publisher.ReasonUnauthenticated, "login_required")}
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: queue.EventFailed, Data: a})
		recs, _ := st.Recent(context.Background(), 10)
		if len(recs) > 0 {
			if recs[0].Reason != "unauthenticated" || recs[0].Account != "acct" {
				t.Fatalf("record = %+v", recs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("attempt never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestNewPrunerValidatesSchedule(t *testing.T) {
	t.Parallel()
	st := openTestFile(t)
	if _, err := NewPruner(st, Config{PruneSchedule: "every tuesday"}, logx.Nop()); err == nil {
		t.Fatal("expected schedule error")
	}
	p, err := NewPruner(st, Config{Retention: -1}, logx.Nop())
	if p != nil || err != nil {
		t.Fatalf("disabled retention = %v, %v", p, err)
	}
	p, err = NewPruner(st, Config{PruneSchedule: "*/5 * * * *"}, logx.Nop())
	if err != nil || p == nil {
		t.Fatalf("NewPruner() = %v, %v", p, err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.RunOnce(context.Background())
	p.Stop(context.Background())
}

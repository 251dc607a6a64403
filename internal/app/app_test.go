package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"threadq/internal/config"
	"threadq/internal/publisher/threads/threadstest"
	"threadq/internal/storage"
	logx "threadq/pkg/logx"
)

func noEnv(string) (string, bool) { return "", false }

func newManager(t *testing.T, body string) *config.ConfigManager {
	t.Helper()
	p := filepath.Join(t.TempDir(), "threadq.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m := config.NewConfigManager(p)
	m.SetEnv(noEnv)
	return m
}

func TestNewPublisherVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		variant string
		want    string
		wantErr bool
	}{
		{variant: "", want: "web"},
		{variant: "web", want: "web"},
		{variant: "Native", want: "native"},
		{variant: "browser", wantErr: true},
	}
	for _, tt := range tests {
		cfg := config.Default()
		cfg.Publisher.Variant = tt.variant
		pub, prober, err := newPublisher(cfg)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("variant %q: expected error", tt.variant)
			}
			continue
		}
		if err != nil {
			t.Fatalf("variant %q: %v", tt.variant, err)
		}
		if pub.Name() != tt.want || prober == nil {
			t.Fatalf("variant %q: got %s", tt.variant, pub.Name())
		}
	}
}

func TestMapQueueCooldown(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if got := mapQueue(cfg).Cooldown; got != config.DefaultCooldown {
		t.Fatalf("default cooldown = %v", got)
	}
	cfg.Worker.Cooldown = "0s"
	if got := mapQueue(cfg).Cooldown; got >= 0 {
		t.Fatalf("explicit 0s must disable the pause, got %v", got)
	}
}

func TestMapNotifier(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	nc := mapNotifier(cfg)
	if nc.Enabled || nc.DedupWindow != 10*time.Minute || nc.RetryMax != 3 {
		t.Fatalf("default notifier config = %+v", nc)
	}
	cfg.Notify = config.NotifyConfig{Enabled: true, OnSuccess: true, DedupWindow: "30s"}
	nc = mapNotifier(cfg)
	if !nc.Enabled || !nc.OnSuccess || nc.DedupWindow != 30*time.Second {
		t.Fatalf("notifier config = %+v", nc)
	}
}

func TestMapStorage(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if _, enabled, err := mapStorage(cfg); err != nil || enabled {
		t.Fatalf("default storage enabled=%v err=%v", enabled, err)
	}
	cfg.Storage = config.StorageConfig{Driver: "sqlite3", Path: "x.db", Retention: "-1"}
	sc, enabled, err := mapStorage(cfg)
	if err != nil || !enabled {
		t.Fatalf("enabled=%v err=%v", enabled, err)
	}
	if sc.Driver != "sqlite" || sc.Retention >= 0 || sc.BusyTimeout != time.Second {
		t.Fatalf("storage config = %+v", sc)
	}
}

func TestAppPublishesEndToEnd(t *testing.T) {
	upstream := threadstest.NewServer()
	defer upstream.Close()

	dir := t.TempDir()
	cfgm := newManager(t, fmt.Sprintf(`{
		"server": {"addr": "127.0.0.1:0"},
		"worker": {"cooldown": "0s"},
		"publisher": {"variant": "web", "base_url": %q},
		"logging": {"level": "error", "console": false},
		"storage": {"driver": "file", "path": %q}
	}`, upstream.URL, filepath.Join(dir, "threadq.db")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, cfgm)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	body := `{"accountIdentity":"alice","sessionBlob":"sessionid=abc; ds_user_id=42; csrftoken=tok","text":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/enqueue", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue code = %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.Queue().Snapshot().Counters.Succeeded < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("publish did not succeed: %+v", a.Queue().Snapshot())
		}
		time.Sleep(20 * time.Millisecond)
	}

	reader, err := storage.Open(ctx, storage.Config{Driver: "file", Path: filepath.Join(dir, "threadq.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer reader.Close()
	var recs []storage.Record
	for time.Now().Before(deadline) {
		recs, err = reader.Recent(ctx, 10)
		if err == nil && len(recs) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(recs) != 1 || !recs[0].OK || recs[0].Account != "alice" || recs[0].PostID == "" {
		t.Fatalf("records = %+v (err %v)", recs, err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplyUpdatesLiveSections(t *testing.T) {
	cfgm := newManager(t, `{"logging": {"level": "error", "console": false}}`)
	a, err := New(context.Background(), cfgm)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background(), StopAppStop)

	prev := cfgm.Get()
	next := *prev
	next.Worker.Cooldown = "3s"
	a.apply(prev, &next)

	if got := a.Queue().Snapshot().Cooldown; got != 3*time.Second {
		t.Fatalf("cooldown = %v, want 3s", got)
	}
}

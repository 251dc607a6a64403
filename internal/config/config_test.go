package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.json"))
	m.SetEnv(noEnv)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Fatalf("addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if got := cfg.CooldownDuration(); got != DefaultCooldown {
		t.Fatalf("cooldown = %v, want %v", got, DefaultCooldown)
	}
	if cfg.Publisher.Variant != "web" {
		t.Fatalf("variant = %q", cfg.Publisher.Variant)
	}
}

func TestDurationFields(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Worker.Cooldown = "0s"
	if got := cfg.CooldownDuration(); got != 0 {
		t.Fatalf("explicit 0s cooldown = %v, want 0", got)
	}
	if got := Duration("server.read_timeout", "soon", 5*time.Second); got != 5*time.Second {
		t.Fatalf("malformed duration = %v, want fallback", got)
	}

	tests := []struct {
		retention string
		want      time.Duration
		wantErr   bool
	}{
		{retention: "", want: 0},
		{retention: KeepForever, want: -1},
		{retention: "72h", want: 72 * time.Hour},
		{retention: "-5m", wantErr: true},
	}
	for _, tt := range tests {
		got, err := StorageConfig{Retention: tt.retention}.RetentionDuration()
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("RetentionDuration(%q) = %v, %v", tt.retention, got, err)
		}
	}
	if d, err := (StorageConfig{}).BusyTimeoutDuration(); err != nil || d != time.Second {
		t.Fatalf("BusyTimeoutDuration() = %v, %v", d, err)
	}
}

func TestParseJSONWithComments(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "threadq.json", `{
		// deploy-time choice
		"publisher": {"variant": "native"},
		"worker": {"cooldown": "2s",},
	}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Publisher.Variant != "native" {
		t.Fatalf("variant = %q", cfg.Publisher.Variant)
	}
	if got := cfg.CooldownDuration(); got != 2*time.Second {
		t.Fatalf("cooldown = %v", got)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Fatalf("untouched section lost its default: %q", cfg.Server.Addr)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "threadq.yaml", "server:\n  addr: \":8080\"\ncheck:\n  rate_per_sec: 5\n  burst: 10\n")
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Check.RatePerSec != 5 || cfg.Check.Burst != 10 {
		t.Fatalf("unexpected config %+v %+v", cfg.Server, cfg.Check)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown field", body: `{"sever": {}}`, want: "unknown field"},
		{name: "trailing data", body: `{} {}`, want: "trailing data"},
		{name: "bad cooldown", body: `{"worker": {"cooldown": "soon"}}`, want: "worker.cooldown"},
		{name: "bad variant", body: `{"publisher": {"variant": "mobile"}}`, want: "publisher.variant"},
		{name: "bad proxy", body: `{"publisher": {"default_proxy": "nonsense"}}`, want: "publisher.default_proxy"},
		{name: "notify without telegram", body: `{"notify": {"enabled": true}}`, want: "notify:"},
		{name: "negative retention", body: `{"storage": {"driver": "file", "path": "x", "retention": "-2h"}}`, want: "storage.retention"},
		{name: "sqlite without path", body: `{"storage": {"driver": "sqlite"}}`, want: "storage.path"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, "c.json", tt.body))
			m.SetEnv(noEnv)
			_, err := m.Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse() err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg := Default()
	ApplyEnv(cfg, envMap(map[string]string{
		EnvPort:          "8081",
		EnvTelegramToken: "tok",
		EnvTelegramChat:  "-100123",
		EnvStorageDSN:    "postgres://u@h/db",
		EnvLogLevel:      " ",
	}))
	if cfg.Server.Addr != ":8081" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Telegram.Token != "tok" || cfg.Telegram.ChatID != -100123 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("blank env overrode level: %q", cfg.Logging.Level)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Worker.Cooldown = "5s"
	b.Logging.Level = "debug"

	changed, attrs, restart := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "logging,worker" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if restart {
		t.Fatal("worker and logging apply live")
	}

	b.Telegram.Token = "secret"
	if _, _, restart := SummarizeConfigChange(a, b); !restart {
		t.Fatal("telegram change needs restart")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	p := writeFile(t, "c.json", `{"worker": {"cooldown": "1s"}}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"worker": {"cooldown": "3s"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-ch:
		if got := cfg.CooldownDuration(); got != 3*time.Second {
			t.Fatalf("cooldown = %v", got)
		}
		if m.Get() != cfg {
			t.Fatal("published config not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}

package app

import (
	"fmt"
	"strings"
	"time"

	"threadq/internal/config"
	"threadq/internal/egress"
	"threadq/internal/eventbus/natsbridge"
	"threadq/internal/httpapi"
	"threadq/internal/notifier"
	"threadq/internal/publisher"
	"threadq/internal/publisher/native"
	"threadq/internal/publisher/web"
	"threadq/internal/queue"
	"threadq/internal/storage"
	"threadq/internal/transport/telegram"
	logx "threadq/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapQueue(cfg *config.Config) queue.Config {
	cooldown := cfg.CooldownDuration()
	if cooldown == 0 {
		// queue treats 0 as "use the default"; an explicit "0s" disables the pause
		cooldown = -1
	}
	return queue.Config{
		Cooldown:     cooldown,
		HistorySize:  cfg.Worker.HistorySize,
		DefaultProxy: strings.TrimSpace(cfg.Publisher.DefaultProxy),
		LogEgress:    cfg.Egress.Enabled && cfg.Egress.LogBeforePublish,
	}
}

func mapServer(cfg *config.Config) httpapi.Config {
	return httpapi.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.Duration("server.write_timeout", cfg.Server.WriteTimeout, 90*time.Second),
		IdleTimeout:  config.Duration("server.idle_timeout", cfg.Server.IdleTimeout, 60*time.Second),
		RequireProxy: cfg.Server.RequireProxy,
		CheckRate:    cfg.Check.RatePerSec,
		CheckBurst:   cfg.Check.Burst,
		Pprof:        cfg.Server.Pprof,
		PprofToken:   cfg.Server.PprofToken,
	}
}

func mapEgress(cfg *config.Config) egress.Config {
	return egress.Config{
		Timeout:   config.Duration("egress.timeout", cfg.Egress.Timeout, egress.DefaultTimeout),
		UserAgent: cfg.Publisher.UserAgent,
	}
}

func mapTelegram(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:    strings.TrimSpace(cfg.Telegram.Token),
		ChatID:   cfg.Telegram.ChatID,
		ThreadID: cfg.Telegram.ThreadID,
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Enabled:     cfg.Notify.Enabled,
		OnSuccess:   cfg.Notify.OnSuccess,
		RatePerSec:  cfg.Notify.RatePerSec,
		RetryMax:    cfg.Notify.RetryMax,
		DedupWindow: config.Duration("notify.dedup_window", cfg.Notify.DedupWindow, 10*time.Minute),
	}
}

func mapEvents(cfg *config.Config) (natsbridge.Config, bool) {
	url := strings.TrimSpace(cfg.Events.NATSURL)
	if url == "" {
		return natsbridge.Config{}, false
	}
	return natsbridge.Config{
		URL:       url,
		Subject:   cfg.Events.Subject,
		JetStream: cfg.Events.JetStream,
		Types:     cfg.Events.Types,
	}, true
}

func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	busy, err := sc.BusyTimeoutDuration()
	if err != nil {
		return storage.Config{}, false, err
	}
	retention, err := sc.RetentionDuration()
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:        driver,
		Path:          strings.TrimSpace(sc.Path),
		DSN:           strings.TrimSpace(sc.DSN),
		BusyTimeout:   busy,
		MaxConns:      sc.MaxConns,
		Retention:     retention,
		PruneSchedule: strings.TrimSpace(sc.PruneSchedule),
	}, true, nil
}

// newPublisher builds the deploy-time publishing variant. Both variants also
// implement the read-only probe used by /api/check.
func newPublisher(cfg *config.Config) (publisher.Publisher, publisher.Prober, error) {
	timeout := config.Duration("publisher.timeout", cfg.Publisher.Timeout, 60*time.Second)
	switch v := strings.ToLower(strings.TrimSpace(cfg.Publisher.Variant)); v {
	case "", "web":
		p := web.New(web.Config{
			BaseURL:   cfg.Publisher.BaseURL,
			AppID:     cfg.Publisher.AppID,
			UserAgent: cfg.Publisher.UserAgent,
			Timeout:   timeout,
		})
		return p, p, nil
	case "native":
		p := native.New(native.Config{
			BaseURL:   cfg.Publisher.BaseURL,
			AppID:     cfg.Publisher.AppID,
			UserAgent: cfg.Publisher.UserAgent,
			Timeout:   timeout,
		})
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher.variant %q", cfg.Publisher.Variant)
	}
}

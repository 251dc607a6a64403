package config

import (
	"reflect"
	"sort"
	"strings"

	"threadq/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed sections and safe
// attrs for logging (never secrets), plus whether any changed section needs a
// restart to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)
	restart := false

	if oldCfg.Server.Addr != newCfg.Server.Addr ||
		oldCfg.Server.ReadTimeout != newCfg.Server.ReadTimeout ||
		oldCfg.Server.WriteTimeout != newCfg.Server.WriteTimeout ||
		oldCfg.Server.IdleTimeout != newCfg.Server.IdleTimeout ||
		oldCfg.Server.RequireProxy != newCfg.Server.RequireProxy ||
		oldCfg.Server.Pprof != newCfg.Server.Pprof ||
		(oldCfg.Server.PprofToken != "") != (newCfg.Server.PprofToken != "") {
		changed = append(changed, "server")
		restart = true
		attrs = append(attrs,
			logx.String("server.addr", newCfg.Server.Addr),
			logx.Bool("server.require_proxy", newCfg.Server.RequireProxy),
			logx.Bool("server.pprof", newCfg.Server.Pprof),
			logx.Bool("server.pprof_token_set", newCfg.Server.PprofToken != ""),
		)
	}

	if oldCfg.Worker != newCfg.Worker {
		changed = append(changed, "worker")
		attrs = append(attrs,
			logx.String("worker.cooldown", strings.TrimSpace(newCfg.Worker.Cooldown)),
			logx.Int("worker.history_size", newCfg.Worker.HistorySize),
		)
	}

	if oldCfg.Publisher != newCfg.Publisher {
		changed = append(changed, "publisher")
		restart = true
		attrs = append(attrs,
			logx.String("publisher.variant", newCfg.Publisher.Variant),
			logx.Bool("publisher.default_proxy_set", strings.TrimSpace(newCfg.Publisher.DefaultProxy) != ""),
		)
	}

	if oldCfg.Check != newCfg.Check {
		changed = append(changed, "check")
		attrs = append(attrs,
			logx.Any("check.rate_per_sec", newCfg.Check.RatePerSec),
			logx.Int("check.burst", newCfg.Check.Burst),
		)
	}

	if oldCfg.Egress != newCfg.Egress {
		changed = append(changed, "egress")
		restart = true
		attrs = append(attrs,
			logx.Bool("egress.enabled", newCfg.Egress.Enabled),
			logx.Bool("egress.log_before_publish", newCfg.Egress.LogBeforePublish),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Telegram (never log token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		restart = true
		attrs = append(attrs,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.enabled", newCfg.Notify.Enabled),
			logx.Bool("notify.on_success", newCfg.Notify.OnSuccess),
			logx.String("notify.dedup_window", newCfg.Notify.DedupWindow),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = true
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
			logx.String("storage.retention", strings.TrimSpace(newCfg.Storage.Retention)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Events, newCfg.Events) {
		changed = append(changed, "events")
		restart = true
		attrs = append(attrs,
			logx.Bool("events.nats_set", newCfg.Events.NATSURL != ""),
			logx.String("events.subject", newCfg.Events.Subject),
			logx.Bool("events.jetstream", newCfg.Events.JetStream),
		)
	}

	sort.Strings(changed)
	return changed, attrs, restart
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"threadq/internal/tunnel"
	"threadq/pkg/logx"
)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := parseDuration(path, raw)
		add(err)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		add(errors.New("server.addr: required"))
	}
	dur("server.read_timeout", c.Server.ReadTimeout)
	dur("server.write_timeout", c.Server.WriteTimeout)
	dur("server.idle_timeout", c.Server.IdleTimeout)

	dur("worker.cooldown", c.Worker.Cooldown)
	if c.Worker.HistorySize < 0 {
		add(errors.New("worker.history_size: must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Publisher.Variant)) {
	case "", "web", "native":
	default:
		add(fmt.Errorf("publisher.variant: unknown %q (want web or native)", c.Publisher.Variant))
	}
	dur("publisher.timeout", c.Publisher.Timeout)
	if p := strings.TrimSpace(c.Publisher.DefaultProxy); p != "" {
		if tunnel.Resolve(p) == nil {
			add(errors.New("publisher.default_proxy: malformed proxy descriptor"))
		}
	}

	if c.Check.RatePerSec < 0 {
		add(errors.New("check.rate_per_sec: must be >= 0"))
	}
	if c.Check.Burst < 0 {
		add(errors.New("check.burst: must be >= 0"))
	}
	dur("egress.timeout", c.Egress.Timeout)

	if lvl := c.Logging.Level; lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			add(fmt.Errorf("logging.level: unknown %q", lvl))
		}
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}
	if c.Logging.Telegram.Enabled {
		if lvl := c.Logging.Telegram.MinLevel; lvl != "" {
			if _, ok := logx.ParseLevel(lvl); !ok {
				add(fmt.Errorf("logging.telegram.min_level: unknown %q", lvl))
			}
		}
		if strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0 {
			add(errors.New("logging.telegram: telegram.token and telegram.chat_id are required"))
		}
	}

	if c.Notify.Enabled && (strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0) {
		add(errors.New("notify: telegram.token and telegram.chat_id are required"))
	}
	if c.Notify.RatePerSec < 0 || c.Notify.RetryMax < 0 {
		add(errors.New("notify: rate_per_sec and retry_max must be >= 0"))
	}
	dur("notify.dedup_window", c.Notify.DedupWindow)

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add(fmt.Errorf("storage.path: required for driver %q", c.Storage.Driver))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for driver postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown %q", c.Storage.Driver))
	}
	_, err := c.Storage.BusyTimeoutDuration()
	add(err)
	_, err = c.Storage.RetentionDuration()
	add(err)

	return errors.Join(errs...)
}

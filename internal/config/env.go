package config

import (
	"strconv"
	"strings"
)

// Environment variables that override the file. Secrets usually arrive this
// way (a .env file is loaded by the command before parsing).
const (
	EnvPort          = "PORT"
	EnvTelegramToken = "THREADQ_TELEGRAM_TOKEN"
	EnvTelegramChat  = "THREADQ_TELEGRAM_CHAT_ID"
	EnvDefaultProxy  = "THREADQ_DEFAULT_PROXY"
	EnvVariant       = "THREADQ_PUBLISHER"
	EnvStorageDSN    = "THREADQ_STORAGE_DSN"
	EnvNATSURL       = "THREADQ_NATS_URL"
	EnvPprofToken    = "THREADQ_PPROF_TOKEN"
	EnvLogLevel      = "THREADQ_LOG_LEVEL"
)

// ApplyEnv overlays environment values onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPort); ok {
		cfg.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChat); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v, ok := get(EnvDefaultProxy); ok {
		cfg.Publisher.DefaultProxy = v
	}
	if v, ok := get(EnvVariant); ok {
		cfg.Publisher.Variant = v
	}
	if v, ok := get(EnvStorageDSN); ok {
		cfg.Storage.DSN = v
		if cfg.Storage.Driver == "" || cfg.Storage.Driver == "none" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v, ok := get(EnvNATSURL); ok {
		cfg.Events.NATSURL = v
	}
	if v, ok := get(EnvPprofToken); ok {
		cfg.Server.PprofToken = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
}

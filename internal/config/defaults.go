package config

import "time"

const (
	DefaultAddr       = ":3000"
	DefaultCooldown   = 25 * time.Second
	DefaultCheckRate  = 1.0
	DefaultCheckBurst = 3
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultAddr,
			ReadTimeout:  "15s",
			WriteTimeout: "90s",
			IdleTimeout:  "60s",
		},
		Worker: WorkerConfig{
			Cooldown:    DefaultCooldown.String(),
			HistorySize: 100,
		},
		Publisher: PublisherConfig{
			Variant: "web",
			Timeout: "60s",
		},
		Check: CheckConfig{
			RatePerSec: DefaultCheckRate,
			Burst:      DefaultCheckBurst,
		},
		Egress: EgressConfig{Timeout: "15s"},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Telegram: LoggingTelegram{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
		Notify: NotifyConfig{
			RatePerSec:  1,
			RetryMax:    3,
			DedupWindow: "10m",
		},
		Storage: StorageConfig{Driver: "none"},
	}
}

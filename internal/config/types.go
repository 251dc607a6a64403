package config

// Config is the on-disk configuration (JSON with comments, or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "25s", "1m").
// Every section may be omitted; Default() documents the fallbacks.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Worker    WorkerConfig    `json:"worker"`
	Publisher PublisherConfig `json:"publisher"`
	Check     CheckConfig     `json:"check"`
	Egress    EgressConfig    `json:"egress"`
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram"`
	Notify    NotifyConfig    `json:"notify"`
	Storage   StorageConfig   `json:"storage"`
	Events    EventsConfig    `json:"events"`
}

// ServerConfig controls the admission HTTP surface.
//
// The PORT environment variable, when set, overrides Addr with ":PORT".
type ServerConfig struct {
	Addr         string `json:"addr"` // default ":3000"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// RequireProxy makes proxyDescriptor a required admission field.
	RequireProxy bool `json:"require_proxy,omitempty"`

	// Pprof mounts /debug/pprof on the same listener.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"` // optional bearer token (do not log)
}

type WorkerConfig struct {
	// Cooldown between consecutive publish attempts while tasks remain.
	// Default "25s"; "0s" disables the pause.
	Cooldown    string `json:"cooldown"`
	HistorySize int    `json:"history_size,omitempty"`
}

// PublisherConfig selects the publishing variant at deploy time.
type PublisherConfig struct {
	Variant   string `json:"variant"` // "web" (default) or "native"
	BaseURL   string `json:"base_url,omitempty"`
	AppID     string `json:"app_id,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`

	// DefaultProxy is used for tasks that carry no proxy descriptor.
	DefaultProxy string `json:"default_proxy,omitempty"` // do not log
}

// CheckConfig rate-limits POST /api/check.
type CheckConfig struct {
	RatePerSec float64 `json:"rate_per_sec"`
	Burst      int     `json:"burst"`
}

type EgressConfig struct {
	Enabled bool `json:"enabled"`
	// LogBeforePublish resolves the tunnel exit before every attempt.
	LogBeforePublish bool   `json:"log_before_publish,omitempty"`
	Timeout          string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warn+ log lines to the operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// NotifyConfig reports publish outcomes to the telegram chat.
type NotifyConfig struct {
	Enabled     bool   `json:"enabled"`
	OnSuccess   bool   `json:"on_success,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"` // default "10m"
}

// StorageConfig controls the outcome log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/threadq.db", "retention": "720h" }
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path,omitempty"`
	DSN           string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	MaxConns      int32  `json:"max_conns,omitempty"`
	Retention     string `json:"retention,omitempty"`
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// EventsConfig forwards bus events to NATS when NATSURL is set.
type EventsConfig struct {
	NATSURL   string   `json:"nats_url,omitempty"`
	Subject   string   `json:"subject,omitempty"`
	JetStream bool     `json:"jetstream,omitempty"`
	Types     []string `json:"types,omitempty"`
}

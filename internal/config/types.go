package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Secrets can be left empty here and supplied through the environment,
// see ApplyEnv.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	VK        VKConfig        `json:"vk"`
	Storage   StorageConfig   `json:"storage"`
	Events    EventsConfig    `json:"events"`
	Notify    NotifyConfig    `json:"notify"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Lease     LeaseConfig     `json:"lease"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// AdminChatID is the default administrator chat. Notifications fall
	// back to it when notify.chat_id is unset.
	AdminChatID int64  `json:"admin_chat_id,omitempty"`
	GroupLog    string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
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

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// VKConfig controls the wall.get fetcher.
//
// Defaults (when fields are omitted/zero):
//   - api_version: "5.131"
//   - base_url: "https://api.vk.com/method"
//   - count: 10
//   - request_timeout: "15s"
//   - retry: 3 attempts, base "1s", max_delay "10s"
type VKConfig struct {
	AccessToken    string      `json:"access_token"`
	GroupID        int64       `json:"group_id"`
	APIVersion     string      `json:"api_version,omitempty"`
	BaseURL        string      `json:"base_url,omitempty"`
	Count          int         `json:"count,omitempty"`
	RequestTimeout string      `json:"request_timeout,omitempty"`
	Retry          RetryConfig `json:"retry"`
}

type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Base        string `json:"base,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
}

// StorageConfig selects the events table backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./wrestfed.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://u:p@host/db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// EventsConfig holds the classification tags assigned to new rows and the
// value sets accepted by the administrative updates.
type EventsConfig struct {
	DefaultStatus   string   `json:"default_status,omitempty"`
	DefaultCategory string   `json:"default_category,omitempty"`
	Statuses        []string `json:"statuses,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	TitleMax        int      `json:"title_max,omitempty"`
}

type NotifyConfig struct {
	ChatID      int64  `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	// Template uses {title} and {id} placeholders.
	Template string `json:"template,omitempty"`
}

// SchedulerConfig controls the ingestion trigger.
//
// Schedule accepts a cron expression (5 or 6 fields, or @descriptor),
// a Go duration ("30m") or an "HH:MM" interval ("01:00" is one hour).
//
// Enabled defaults to true when omitted.
type SchedulerConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	Schedule     string `json:"schedule,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`
}

// LeaseConfig enables a redis lease so only one process runs a cycle at a time.
type LeaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Key      string `json:"key,omitempty"`
	TTL      string `json:"ttl,omitempty"`
}

// MetricsConfig controls the HTTP server exposing /metrics.
//
// Prefer binding to localhost; a non-loopback Addr requires Token.
// pprof handlers are mounted only when Pprof is set.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
	Token   string `json:"token,omitempty"`
}

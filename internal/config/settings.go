package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultVKBaseURL    = "https://api.vk.com/method"
	DefaultVKAPIVersion = "5.131"
	DefaultSchedule     = "0 * * * *"
	DefaultTemplate     = "Новое событие: {title}\nID: {id}"
)

var (
	DefaultStatuses   = []string{"active", "inactive", "pending"}
	DefaultCategories = []string{"competition", "event", "sponsor"}
)

// Settings is the parsed, defaulted and validated form of Config.
// It is built once at startup and passed by value; nothing mutates it.
type Settings struct {
	Telegram  TelegramSettings
	VK        VKSettings
	Storage   StorageSettings
	Events    EventSettings
	Notify    NotifySettings
	Scheduler SchedulerSettings
	Lease     LeaseSettings
	Metrics   MetricsSettings
}

type TelegramSettings struct {
	Token        string
	OwnerUserIDs []int64
	AdminChatID  int64
	GroupLog     int64
	PollTimeout  time.Duration
}

type VKSettings struct {
	AccessToken    string
	GroupID        int64
	APIVersion     string
	BaseURL        string
	Count          int
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryBase      time.Duration
	RetryMaxDelay  time.Duration
}

type StorageSettings struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
}

type EventSettings struct {
	DefaultStatus   string
	DefaultCategory string
	Statuses        []string
	Categories      []string
	TitleMax        int
}

type NotifySettings struct {
	ChatID         int64
	ThreadID       int
	FallbackChatID int64
	SendTimeout    time.Duration
	RatePerSec     int
	Template       string
}

type SchedulerSettings struct {
	Enabled      bool
	Schedule     string
	Timezone     *time.Location
	CycleTimeout time.Duration
}

type LeaseSettings struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

type MetricsSettings struct {
	Enabled bool
	Addr    string
	Pprof   bool
	Token   string
}

// Derive applies defaults and validates cfg. All problems are reported
// together so an operator can fix the file in one pass.
func Derive(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}
	var (
		s    Settings
		errs []error
	)
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		check(err)
		return d
	}

	// telegram
	s.Telegram = TelegramSettings{
		Token:        strings.TrimSpace(cfg.Telegram.Token),
		OwnerUserIDs: slices.Clone(cfg.Telegram.OwnerUserIDs),
		AdminChatID:  cfg.Telegram.AdminChatID,
		PollTimeout:  dur("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second),
	}
	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		id, err := strconv.ParseInt(gl, 10, 64)
		if err != nil {
			check(fmt.Errorf("telegram.group_log: invalid chat id %q", gl))
		}
		s.Telegram.GroupLog = id
	}
	if s.Telegram.Token == "" {
		check(errors.New("telegram.token is required (or TELEGRAM_TOKEN)"))
	}

	// vk
	v := cfg.VK
	s.VK = VKSettings{
		AccessToken:    strings.TrimSpace(v.AccessToken),
		GroupID:        v.GroupID,
		APIVersion:     orDefault(v.APIVersion, DefaultVKAPIVersion),
		BaseURL:        strings.TrimRight(orDefault(v.BaseURL, DefaultVKBaseURL), "/"),
		Count:          v.Count,
		RequestTimeout: dur("vk.request_timeout", v.RequestTimeout, 15*time.Second),
		MaxAttempts:    v.Retry.MaxAttempts,
		RetryBase:      dur("vk.retry.base", v.Retry.Base, time.Second),
		RetryMaxDelay:  dur("vk.retry.max_delay", v.Retry.MaxDelay, 10*time.Second),
	}
	if s.VK.Count == 0 {
		s.VK.Count = 10
	}
	if s.VK.MaxAttempts == 0 {
		s.VK.MaxAttempts = 3
	}
	if s.VK.AccessToken == "" {
		check(errors.New("vk.access_token is required (or VK_ACCESS_TOKEN)"))
	}
	if s.VK.GroupID <= 0 {
		check(errors.New("vk.group_id must be a positive group id (or VK_GROUP_ID)"))
	}
	if s.VK.Count < 1 || s.VK.Count > 100 {
		check(fmt.Errorf("vk.count must be within 1..100, got %d", s.VK.Count))
	}
	if s.VK.MaxAttempts < 1 {
		check(fmt.Errorf("vk.retry.max_attempts must be >= 1, got %d", s.VK.MaxAttempts))
	}
	if s.VK.RetryMaxDelay < s.VK.RetryBase {
		check(errors.New("vk.retry.max_delay must be >= vk.retry.base"))
	}

	// storage
	st := cfg.Storage
	s.Storage = StorageSettings{
		Driver:      strings.ToLower(orDefault(st.Driver, "sqlite")),
		Path:        strings.TrimSpace(st.Path),
		DSN:         strings.TrimSpace(st.DSN),
		BusyTimeout: dur("storage.busy_timeout", st.BusyTimeout, time.Second),
	}
	switch s.Storage.Driver {
	case "sqlite", "sqlite3":
		s.Storage.Driver = "sqlite"
		if s.Storage.Path == "" {
			s.Storage.Path = "./wrestfed.db"
		}
	case "postgres", "postgresql", "pgx":
		s.Storage.Driver = "postgres"
		if s.Storage.DSN == "" {
			check(errors.New("storage.dsn is required when storage.driver=postgres (or DATABASE_URL)"))
		}
	default:
		check(fmt.Errorf("unknown storage.driver: %s", st.Driver))
	}

	// events
	ev := cfg.Events
	s.Events = EventSettings{
		DefaultStatus:   orDefault(ev.DefaultStatus, "active"),
		DefaultCategory: orDefault(ev.DefaultCategory, "event"),
		Statuses:        cleanSet(ev.Statuses, DefaultStatuses),
		Categories:      cleanSet(ev.Categories, DefaultCategories),
		TitleMax:        ev.TitleMax,
	}
	if s.Events.TitleMax <= 0 {
		s.Events.TitleMax = 100
	}
	if !slices.Contains(s.Events.Statuses, s.Events.DefaultStatus) {
		check(fmt.Errorf("events.default_status %q is not in events.statuses", s.Events.DefaultStatus))
	}
	if !slices.Contains(s.Events.Categories, s.Events.DefaultCategory) {
		check(fmt.Errorf("events.default_category %q is not in events.categories", s.Events.DefaultCategory))
	}

	// notify
	n := cfg.Notify
	s.Notify = NotifySettings{
		ChatID:         n.ChatID,
		ThreadID:       n.ThreadID,
		FallbackChatID: cfg.Telegram.AdminChatID,
		SendTimeout:    dur("notify.send_timeout", n.SendTimeout, 10*time.Second),
		RatePerSec:     n.RatePerSec,
		Template:       n.Template,
	}
	if s.Notify.RatePerSec <= 0 {
		s.Notify.RatePerSec = 3
	}
	if strings.TrimSpace(s.Notify.Template) == "" {
		s.Notify.Template = DefaultTemplate
	}

	// scheduler
	sc := cfg.Scheduler
	s.Scheduler = SchedulerSettings{
		Enabled:      sc.Enabled == nil || *sc.Enabled,
		Schedule:     orDefault(sc.Schedule, DefaultSchedule),
		Timezone:     time.UTC,
		CycleTimeout: dur("scheduler.cycle_timeout", sc.CycleTimeout, 5*time.Minute),
	}
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			check(fmt.Errorf("scheduler.timezone: %w", err))
		} else {
			s.Scheduler.Timezone = loc
		}
	}

	// lease
	l := cfg.Lease
	s.Lease = LeaseSettings{
		Enabled:  l.Enabled,
		Addr:     orDefault(l.Addr, "127.0.0.1:6379"),
		Password: l.Password,
		DB:       l.DB,
		Key:      orDefault(l.Key, "wrestfed:ingest:lease"),
		TTL:      dur("lease.ttl", l.TTL, s.Scheduler.CycleTimeout),
	}

	// metrics
	s.Metrics = MetricsSettings{
		Enabled: cfg.Metrics.Enabled,
		Addr:    orDefault(cfg.Metrics.Addr, "127.0.0.1:9090"),
		Pprof:   cfg.Metrics.Pprof,
		Token:   strings.TrimSpace(cfg.Metrics.Token),
	}

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	return s, nil
}

// ParseDurationOrDefault reads a Go duration string ("90s", "5m"). A bare
// integer is taken as seconds. Empty or zero yields def; negatives are rejected.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, ierr := strconv.Atoi(raw)
		if ierr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
		}
		d = time.Duration(secs) * time.Second
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

func orDefault(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func cleanSet(in, def []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return slices.Clone(def)
	}
	return out
}

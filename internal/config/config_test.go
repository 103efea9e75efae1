package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
telegram:
  token: "tg"
  owner_user_ids: [42]
  admin_chat_id: 1001
vk:
  access_token: "vk"
  group_id: 12345
storage:
  driver: sqlite
  path: ./events.db
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func noEnv(string) (string, bool) { return "", false }

func TestDeriveDefaults(t *testing.T) {
	m := NewConfigManager(writeFile(t, "config.yaml", minimalYAML))
	m.SetEnv(noEnv)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := Derive(cfg)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if s.VK.APIVersion != "5.131" || s.VK.BaseURL != DefaultVKBaseURL {
		t.Fatalf("vk defaults = %q %q", s.VK.APIVersion, s.VK.BaseURL)
	}
	if s.VK.Count != 10 || s.VK.MaxAttempts != 3 {
		t.Fatalf("count/attempts = %d/%d", s.VK.Count, s.VK.MaxAttempts)
	}
	if s.VK.RetryBase != time.Second || s.VK.RetryMaxDelay != 10*time.Second {
		t.Fatalf("retry = %s..%s", s.VK.RetryBase, s.VK.RetryMaxDelay)
	}
	if s.Events.DefaultStatus != "active" || s.Events.DefaultCategory != "event" || s.Events.TitleMax != 100 {
		t.Fatalf("events defaults = %+v", s.Events)
	}
	if s.Notify.ChatID != 0 || s.Notify.FallbackChatID != 1001 {
		t.Fatalf("notify chat = %d fallback = %d", s.Notify.ChatID, s.Notify.FallbackChatID)
	}
	if !s.Scheduler.Enabled {
		t.Fatalf("scheduler should be enabled when omitted")
	}
	if s.Scheduler.Schedule != "0 * * * *" || s.Scheduler.CycleTimeout != 5*time.Minute {
		t.Fatalf("scheduler = %+v", s.Scheduler)
	}
	if s.Lease.TTL != s.Scheduler.CycleTimeout {
		t.Fatalf("lease ttl = %s", s.Lease.TTL)
	}
}

func TestDeriveCollectsErrors(t *testing.T) {
	cfg := &Config{
		VK:      VKConfig{Count: 500},
		Storage: StorageConfig{Driver: "mongo"},
		Events:  EventsConfig{DefaultStatus: "archived"},
	}
	_, err := Derive(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"telegram.token", "vk.access_token", "vk.group_id", "vk.count", "storage.driver", "events.default_status"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	env := map[string]string{
		"TELEGRAM_TOKEN":  "from-env",
		"VK_GROUP_ID":     "777",
		"NOTIFY_CHAT_ID":  "-100500",
		"DATABASE_URL":    "postgres://u@h/db",
		"VK_ACCESS_TOKEN": "  ",
	}
	m := NewConfigManager(writeFile(t, "config.yaml", minimalYAML))
	m.SetEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.VK.GroupID != 777 || cfg.Notify.ChatID != -100500 {
		t.Fatalf("ids = %d %d", cfg.VK.GroupID, cfg.Notify.ChatID)
	}
	if cfg.VK.AccessToken != "vk" {
		t.Fatalf("blank env must not override, got %q", cfg.VK.AccessToken)
	}
	if cfg.Storage.DSN != "postgres://u@h/db" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}

	env["ADMIN_CHAT_ID"] = "abc"
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "ADMIN_CHAT_ID") {
		t.Fatalf("expected ADMIN_CHAT_ID error, got %v", err)
	}
}

func TestDecodeStrict(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
	}{
		{"unknown field", "c.json", `{"telegram":{"token":"x"},"plugins":{}}`},
		{"trailing data", "c.json", `{"telegram":{}} {"vk":{}}`},
		{"bad yaml", "c.yaml", "telegram: [unclosed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.path, []byte(tc.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a, _ := Decode("a.yaml", []byte(minimalYAML))
	b, _ := Decode("b.yaml", []byte(minimalYAML))
	b.Logging.Level = "debug"
	b.VK.Count = 20

	changed, _ := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "logging,vk" {
		t.Fatalf("changed = %v", changed)
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "vk" {
		t.Fatalf("restart required = %v", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	path := writeFile(t, "config.yaml", minimalYAML)
	m := NewConfigManager(path)
	m.SetEnv(noEnv)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	updated := minimalYAML + "logging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	cancel()
	<-done
}

func TestParseDurationOrDefault(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Minute},
		{raw: "0s", want: time.Minute},
		{raw: "90s", want: 90 * time.Second},
		{raw: " 2m ", want: 2 * time.Minute},
		{raw: "15", want: 15 * time.Second},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x", tt.raw, time.Minute)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v", tt.raw, err)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("%q: got %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte("# nothing\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.VK.GroupID != 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestDeriveSchedulerEnabled(t *testing.T) {
	off, on := false, true
	tests := []struct {
		name string
		in   *bool
		want bool
	}{
		{"omitted", nil, true},
		{"explicit false", &off, false},
		{"explicit true", &on, true},
	}
	for _, tt := range tests {
		m := NewConfigManager(writeFile(t, "config.yaml", minimalYAML))
		m.SetEnv(noEnv)
		cfg, err := m.Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		cfg.Scheduler.Enabled = tt.in
		s, err := Derive(cfg)
		if err != nil {
			t.Fatalf("%s: derive: %v", tt.name, err)
		}
		if s.Scheduler.Enabled != tt.want {
			t.Fatalf("%s: enabled = %v, want %v", tt.name, s.Scheduler.Enabled, tt.want)
		}
	}
}

func TestDecodeSchedulerDisabled(t *testing.T) {
	cfg, err := Decode("c.yaml", []byte("scheduler:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Scheduler.Enabled == nil || *cfg.Scheduler.Enabled {
		t.Fatalf("enabled = %v", cfg.Scheduler.Enabled)
	}
}

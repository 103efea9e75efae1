package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides secrets and deployment-specific values from the
// environment. Set variables win over the file.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	parseID := func(k string, dst *int64) error {
		v, ok := get(k)
		if !ok {
			return nil
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", k, v)
		}
		*dst = id
		return nil
	}

	if v, ok := get("TELEGRAM_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get("VK_ACCESS_TOKEN"); ok {
		cfg.VK.AccessToken = v
	}
	if v, ok := get("DATABASE_URL"); ok {
		cfg.Storage.DSN = v
		if strings.TrimSpace(cfg.Storage.Driver) == "" {
			cfg.Storage.Driver = "postgres"
		}
	}
	if v, ok := get("REDIS_ADDR"); ok {
		cfg.Lease.Addr = v
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		cfg.Lease.Password = v
	}
	if v, ok := get("METRICS_TOKEN"); ok {
		cfg.Metrics.Token = v
	}
	for _, p := range []struct {
		key string
		dst *int64
	}{
		{"VK_GROUP_ID", &cfg.VK.GroupID},
		{"NOTIFY_CHAT_ID", &cfg.Notify.ChatID},
		{"ADMIN_CHAT_ID", &cfg.Telegram.AdminChatID},
	} {
		if err := parseID(p.key, p.dst); err != nil {
			return err
		}
	}
	return nil
}

package app

import (
	"wrestfed/internal/config"
	"wrestfed/internal/ingest"
	"wrestfed/internal/notifier"
	"wrestfed/internal/observability/metrics"
	"wrestfed/internal/pipeline"
	"wrestfed/internal/storage"
	"wrestfed/internal/task/scheduler"
	telegram "wrestfed/internal/transport/telegram/adapter"
	"wrestfed/internal/vk"
	logx "wrestfed/pkg/logx"
)

// mapLogConfig needs both views: levels and sinks come from the raw
// section, the parsed log chat id from Settings.
func mapLogConfig(cfg *config.Config, s config.Settings) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     s.Telegram.GroupLog,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapTelegramConfig(s config.Settings) telegram.Config {
	return telegram.Config{Token: s.Telegram.Token, PollTimeout: s.Telegram.PollTimeout}
}

func mapVKConfig(s config.Settings) vk.Config {
	return vk.Config{
		AccessToken:    s.VK.AccessToken,
		GroupID:        s.VK.GroupID,
		APIVersion:     s.VK.APIVersion,
		BaseURL:        s.VK.BaseURL,
		Count:          s.VK.Count,
		RequestTimeout: s.VK.RequestTimeout,
		MaxAttempts:    s.VK.MaxAttempts,
		RetryBase:      s.VK.RetryBase,
		RetryMaxDelay:  s.VK.RetryMaxDelay,
	}
}

func mapStorageConfig(s config.Settings) storage.Config {
	return storage.Config{
		Driver:      s.Storage.Driver,
		Path:        s.Storage.Path,
		DSN:         s.Storage.DSN,
		BusyTimeout: s.Storage.BusyTimeout,
		Statuses:    s.Events.Statuses,
		Categories:  s.Events.Categories,
	}
}

func mapIngestDefaults(s config.Settings) ingest.Defaults {
	return ingest.Defaults{
		Status:   s.Events.DefaultStatus,
		Category: s.Events.DefaultCategory,
		TitleMax: s.Events.TitleMax,
	}
}

func mapNotifierConfig(s config.Settings) notifier.Config {
	return notifier.Config{
		ChatID:         s.Notify.ChatID,
		ThreadID:       s.Notify.ThreadID,
		FallbackChatID: s.Notify.FallbackChatID,
		SendTimeout:    s.Notify.SendTimeout,
		RatePerSec:     s.Notify.RatePerSec,
		Template:       s.Notify.Template,
	}
}

func mapPipelineConfig(s config.Settings) pipeline.Config {
	return pipeline.Config{Count: s.VK.Count, LeaseTTL: s.Lease.TTL}
}

func mapLeaseConfig(s config.Settings) pipeline.RedisLeaseConfig {
	return pipeline.RedisLeaseConfig{
		Addr:     s.Lease.Addr,
		Password: s.Lease.Password,
		DB:       s.Lease.DB,
		Key:      s.Lease.Key,
	}
}

func mapSchedulerConfig(s config.Settings) scheduler.Config {
	return scheduler.Config{Enabled: s.Scheduler.Enabled, Location: s.Scheduler.Timezone}
}

func mapMetricsConfig(s config.Settings) metrics.Config {
	return metrics.Config{
		Enabled: s.Metrics.Enabled,
		Addr:    s.Metrics.Addr,
		Pprof:   s.Metrics.Pprof,
		Token:   s.Metrics.Token,
	}
}

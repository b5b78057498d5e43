package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SchoolAPIURL string `env:"SCHOOL_API_URL,required=true"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	ListenerConcurrency int `env:"LISTENER_CONCURRENCY,default=8"`
	SagaStartPerSec     int `env:"SAGA_START_PER_SEC,default=50"`

	ExtractCron       string `env:"EXTRACT_CRON,default=*/30 * * * * *"`
	ProcessLoadedCron string `env:"PROCESS_LOADED_CRON,default=*/30 * * * * *"`
	StaleSagaCron     string `env:"STALE_SAGA_CRON,default=0 */2 * * * *"`
	ArchiveCron       string `env:"ARCHIVE_CRON,default=0 */10 * * * *"`
	PurgeCron         string `env:"PURGE_CRON,default=0 0 3 * * *"`

	LockMinHoldSeconds int `env:"LOCK_MIN_HOLD_SECONDS,default=10"`
	LockMaxHoldSeconds int `env:"LOCK_MAX_HOLD_SECONDS,default=120"`
	DedupTTLSeconds    int `env:"INGEST_DEDUP_TTL_SECONDS,default=300"`

	HoldThreshold          int `env:"HOLD_SIZE_THRESHOLD,default=1000"`
	DuplicateWindowHours   int `env:"DUPLICATE_FILE_WINDOW_HOURS,default=48"`
	RepeatWindowK12Hours   int `env:"REPEAT_WINDOW_K12_HOURS,default=48"`
	RepeatWindowPSIHours   int `env:"REPEAT_WINDOW_PSI_HOURS,default=720"`
	SagaStaleAfterMinutes  int `env:"SAGA_STALE_AFTER_MINUTES,default=5"`
	SagaMaxRetries         int `env:"SAGA_MAX_RETRIES,default=5"`
	PurgeRetentionDays     int `env:"PURGE_RETENTION_DAYS,default=90"`
	PublishConfirmTimeout  int `env:"PUBLISH_CONFIRM_TIMEOUT_SECONDS,default=5"`
	ExtractBatchLimit      int `env:"EXTRACT_BATCH_LIMIT,default=20"`
	ProcessLoadedScanLimit int `env:"PROCESS_LOADED_SCAN_LIMIT,default=200"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) LockMinHold() time.Duration {
	return time.Duration(c.LockMinHoldSeconds) * time.Second
}

func (c *Config) LockMaxHold() time.Duration {
	return time.Duration(c.LockMaxHoldSeconds) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowHours) * time.Hour
}

// RepeatWindow returns the school-group-specific repeat window.
func (c *Config) RepeatWindow(psi bool) time.Duration {
	if psi {
		return time.Duration(c.RepeatWindowPSIHours) * time.Hour
	}
	return time.Duration(c.RepeatWindowK12Hours) * time.Hour
}

func (c *Config) SagaStaleAfter() time.Duration {
	return time.Duration(c.SagaStaleAfterMinutes) * time.Minute
}

func (c *Config) PurgeRetention() time.Duration {
	return time.Duration(c.PurgeRetentionDays) * 24 * time.Hour
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.PublishConfirmTimeout) * time.Second
}

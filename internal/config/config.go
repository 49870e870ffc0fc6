package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	LateArrivalGrace time.Duration
	SweepInterval    time.Duration

	QueuePageSize int

	EventPollInterval time.Duration
	EventBatchSize    int

	RateLimitPerMinute       int
	RateLimitBurst           int
	MobileRateLimitPerMinute int
	MobileRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		LateArrivalGrace:         readDurationSeconds("LATE_ARRIVAL_GRACE_SECONDS", 300),
		SweepInterval:            readDurationSeconds("SWEEP_INTERVAL_SECONDS", 30),
		QueuePageSize:            readInt("QUEUE_PAGE_SIZE", 50),
		EventPollInterval:        readDurationSeconds("EVENT_POLL_INTERVAL_SECONDS", 2),
		EventBatchSize:           readInt("EVENT_BATCH_SIZE", 100),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		MobileRateLimitPerMinute: readInt("MOBILE_RATE_LIMIT_PER_MIN", 30),
		MobileRateLimitBurst:     readInt("MOBILE_RATE_LIMIT_BURST", 10),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

package env

import (
	"os"
	"strconv"
	"time"
)

// Configuration keys. Everything has a default so the broker runs with
// no environment at all; EVENTS_REDIS_URL left empty disables the
// bridge.
const (
	BrokerPort          = "BROKER_PORT"
	BrokerStatsEnabled  = "BROKER_STATS_ENABLED"
	BrokerCleanupGrace  = "BROKER_CLEANUP_GRACE_MS"
	BrokerHeartbeat     = "BROKER_HEARTBEAT_MS"
	BrokerWebOrigin     = "BROKER_WEB_ORIGIN"
	BrokerQueueSize     = "BROKER_QUEUE_SIZE"
	BrokerQueueWorkers  = "BROKER_QUEUE_WORKERS"
	EventsRedisURL      = "EVENTS_REDIS_URL"
	EventsRedisPassword = "EVENTS_REDIS_PASS"
)

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func GetBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func GetInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// GetMillis reads a duration expressed as integer milliseconds.
func GetMillis(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

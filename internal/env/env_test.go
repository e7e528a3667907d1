package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetOrDefault(t *testing.T) {
	assert.Equal(t, "8000", GetOrDefault(BrokerPort, "8000"))

	t.Setenv(BrokerPort, "9090")
	assert.Equal(t, "9090", GetOrDefault(BrokerPort, "8000"))
}

func TestGetInt(t *testing.T) {
	assert.Equal(t, 10, GetInt(BrokerQueueSize, 10))

	t.Setenv(BrokerQueueSize, "64")
	assert.Equal(t, 64, GetInt(BrokerQueueSize, 10))

	t.Setenv(BrokerQueueSize, "not a number")
	assert.Equal(t, 10, GetInt(BrokerQueueSize, 10))
}

func TestGetBool(t *testing.T) {
	assert.False(t, GetBool(BrokerStatsEnabled, false))

	t.Setenv(BrokerStatsEnabled, "true")
	assert.True(t, GetBool(BrokerStatsEnabled, false))

	t.Setenv(BrokerStatsEnabled, "yes")
	assert.False(t, GetBool(BrokerStatsEnabled, false))
}

func TestGetMillis(t *testing.T) {
	assert.Equal(t, 10*time.Second, GetMillis(BrokerCleanupGrace, 10*time.Second))

	t.Setenv(BrokerCleanupGrace, "2500")
	assert.Equal(t, 2500*time.Millisecond, GetMillis(BrokerCleanupGrace, 10*time.Second))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 50, cfg.BotsPerWorker)
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, 10*time.Second, cfg.QueueTimeout)
	assert.Equal(t, 30*time.Second, cfg.BotCooldownTime)
	assert.Equal(t, 10*time.Minute, cfg.MaxReconnectDelay)
	assert.False(t, cfg.AllowRefresh)
	assert.False(t, cfg.FeedEnabled())
	assert.False(t, cfg.AdminEnabled())
	assert.True(t, cfg.IsDev())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$x")
	t.Setenv("ALLOW_REFRESH", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.FeedEnabled())
	assert.True(t, cfg.AdminEnabled())
	assert.True(t, cfg.AllowRefresh)
}

func TestLoad_MillisecondIntegerDurations(t *testing.T) {
	t.Setenv("QUEUE_TIMEOUT", "2500")
	t.Setenv("BOT_COOLDOWN_TIME", "45000")
	t.Setenv("MAX_RECONNECT_DELAY", "600000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.QueueTimeout)
	assert.Equal(t, 45*time.Second, cfg.BotCooldownTime)
	assert.Equal(t, 10*time.Minute, cfg.MaxReconnectDelay)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"PORT":                   "0",
		"BOTS_PER_WORKER":        "0",
		"MAX_QUEUE_SIZE":         "-1",
		"QUEUE_TIMEOUT":          "0s",
		"MAX_RECONNECT_DELAY":    "1s", // below BASE_RECONNECT_DELAY default
		"MAX_RECONNECT_ATTEMPTS": "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

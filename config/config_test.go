package config

import (
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

const secret = "0123456789abcdef0123"

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{"JWT_SECRET": secret}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "rueda", cfg.MongoDB)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, secret, cfg.TicketSecret, "ticket secret falls back to the jwt secret")
	assert.Equal(t, log.INFO, cfg.LogLevel)
	assert.Equal(t, 5, cfg.AllocMaxAttempts)
	assert.Equal(t, 3, cfg.StoreRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.StoreRetryBase)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.WatchChangeStreams)

	p := cfg.RetryPolicy()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 50*time.Millisecond, p.Base)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"JWT_SECRET":           secret,
		"TICKET_SECRET":        "other",
		"PORT":                 "9090",
		"STORE_DRIVER":         "Memory",
		"REDIS_ADDR":           "localhost:6379",
		"REDIS_DB":             "2",
		"LOG_LEVEL":            "debug",
		"ALLOC_MAX_ATTEMPTS":   "8",
		"STORE_RETRY_BASE":     "10ms",
		"RATE_LIMIT_RPS":       "2.5",
		"CORS_ORIGINS":         "https://a.example, https://b.example,",
		"WATCH_CHANGE_STREAMS": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "other", cfg.TicketSecret)
	assert.Equal(t, log.DEBUG, cfg.LogLevel)
	assert.Equal(t, 8, cfg.AllocMaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.StoreRetryBase)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.WatchChangeStreams)
}

func TestUnparsableValuesFallBack(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"JWT_SECRET":         secret,
		"ALLOC_MAX_ATTEMPTS": "many",
		"STORE_RETRY_BASE":   "soon",
		"RATE_LIMIT_BURST":   "",
	}))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.AllocMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.StoreRetryBase)
	assert.Equal(t, 10, cfg.RateLimitBurst)
}

func TestInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"JWT_SECRET": "short"},
		"unknown driver": {"JWT_SECRET": secret, "STORE_DRIVER": "sqlite"},
		"bad redis addr": {"JWT_SECRET": secret, "REDIS_ADDR": "nohost"},
		"zero attempts":  {"JWT_SECRET": secret, "ALLOC_MAX_ATTEMPTS": "0"},
		"zero rps":       {"JWT_SECRET": secret, "RATE_LIMIT_RPS": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookup(vars))
			assert.Error(t, err)
		})
	}
}

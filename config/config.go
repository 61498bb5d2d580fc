// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"rueda/store"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Server struct {
	Port               string        `validate:"required,startswith=:"`
	StoreDriver        string        `validate:"oneof=mongo memory"`
	MongoURI           string        `validate:"required_if=StoreDriver mongo"`
	MongoDB            string        `validate:"required_if=StoreDriver mongo"`
	RedisAddr          string        `validate:"omitempty,hostname_port"`
	RedisPassword      string        `validate:"-"`
	RedisDB            int           `validate:"min=0,max=15"`
	JWTSecret          string        `validate:"required,min=16"`
	TicketSecret       string        `validate:"required"`
	LogLevel           log.Lvl       `validate:"min=1,max=5"`
	AllocMaxAttempts   int           `validate:"min=1,max=50"`
	StoreRetries       int           `validate:"min=0,max=20"`
	StoreRetryBase     time.Duration
	RateLimitRPS       float64       `validate:"gt=0"`
	RateLimitBurst     int           `validate:"min=1"`
	CORSOrigins        []string      `validate:"min=1,dive,required"`
	WatchChangeStreams bool
}

// Load reads .env when present and then the process environment.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("[Config] no .env file found; using system environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Server from getenv.
func FromEnv(getenv func(string) string) (Server, error) {
	e := env(getenv)
	jwtSecret := e.str("JWT_SECRET", "")
	cfg := Server{
		Port:               port(e.str("PORT", ":8080")),
		StoreDriver:        strings.ToLower(e.str("STORE_DRIVER", DriverMongo)),
		MongoURI:           e.str("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:            e.str("MONGO_DB", "rueda"),
		RedisAddr:          e.str("REDIS_ADDR", ""),
		RedisPassword:      e.str("REDIS_PASSWORD", ""),
		RedisDB:            e.integer("REDIS_DB", 0),
		JWTSecret:          jwtSecret,
		TicketSecret:       e.str("TICKET_SECRET", jwtSecret),
		LogLevel:           logLevel(e.str("LOG_LEVEL", "info")),
		AllocMaxAttempts:   e.integer("ALLOC_MAX_ATTEMPTS", 5),
		StoreRetries:       e.integer("STORE_RETRIES", 3),
		StoreRetryBase:     e.duration("STORE_RETRY_BASE", 50*time.Millisecond),
		RateLimitRPS:       e.number("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     e.integer("RATE_LIMIT_BURST", 10),
		CORSOrigins:        e.list("CORS_ORIGINS", []string{"*"}),
		WatchChangeStreams: e.boolean("WATCH_CHANGE_STREAMS", false),
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RetryPolicy is the store retry policy the settings describe.
func (s Server) RetryPolicy() store.RetryPolicy {
	return store.RetryPolicy{Attempts: s.StoreRetries, Base: s.StoreRetryBase}
}

func port(p string) string {
	if p != "" && p[0] != ':' {
		return ":" + p
	}
	return p
}

func logLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}

// env wraps a lookup with typed defaults. Unparsable values fall back to the
// default.
type env func(string) string

func (e env) str(k, def string) string {
	if v := strings.TrimSpace(e(k)); v != "" {
		return v
	}
	return def
}

func (e env) integer(k string, def int) int {
	i, err := strconv.Atoi(e.str(k, ""))
	if err != nil {
		return def
	}
	return i
}

func (e env) number(k string, def float64) float64 {
	f, err := strconv.ParseFloat(e.str(k, ""), 64)
	if err != nil {
		return def
	}
	return f
}

func (e env) boolean(k string, def bool) bool {
	b, err := strconv.ParseBool(e.str(k, ""))
	if err != nil {
		return def
	}
	return b
}

func (e env) duration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(e.str(k, ""))
	if err != nil {
		return def
	}
	return d
}

func (e env) list(k string, def []string) []string {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

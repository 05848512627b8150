package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// RedisConfig configures the optional shared cache.
type RedisConfig struct {
	URL          string
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Enabled reports whether a Redis URL was configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig configures the optional change feed.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker was configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// FanoutConfig sizes change delivery.
type FanoutConfig struct {
	Workers      int
	QueueDepth   int
	SessionQueue int
}

// Config is the whole process configuration.
type Config struct {
	Server         Server
	Store          string
	DatabaseURL    string
	Redis          RedisConfig
	Kafka          KafkaConfig
	Fanout         FanoutConfig
	RecentMessages int
	LogLevel       slog.Level
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Malformed values are reported rather than silently defaulted.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Server: Server{
			Addr:            r.str("FACESTORE_ADDR", ":8080"),
			WriteTimeout:    r.duration("FACESTORE_WRITE_TIMEOUT", 10*time.Second),
			MaxMessageBytes: int64(r.integer("FACESTORE_MAX_MESSAGE_BYTES", 5*1024*1024)),
		},
		Store:       strings.ToLower(r.str("FACESTORE_STORE", StoreMemory)),
		DatabaseURL: r.str("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			TTL:          r.duration("FACESTORE_CACHE_TTL", 0),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(r.str("KAFKA_BROKERS", "")),
			Topic:   r.str("KAFKA_CHANGE_TOPIC", "facestore.changes"),
		},
		Fanout: FanoutConfig{
			Workers:      r.integer("FACESTORE_FANOUT_WORKERS", 4),
			QueueDepth:   r.integer("FACESTORE_FANOUT_QUEUE", 1024),
			SessionQueue: r.integer("FACESTORE_SESSION_QUEUE", 256),
		},
		RecentMessages: r.integer("FACESTORE_RECENT_MESSAGES", 20),
		LogLevel:       r.level("LOG_LEVEL", slog.LevelInfo),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when FACESTORE_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("config: FACESTORE_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("config: FACESTORE_MAX_MESSAGE_BYTES must be positive")
	}
	if c.Fanout.Workers <= 0 || c.Fanout.QueueDepth <= 0 || c.Fanout.SessionQueue <= 0 {
		return fmt.Errorf("config: fan-out sizes must be positive")
	}
	if c.RecentMessages <= 0 {
		return fmt.Errorf("config: FACESTORE_RECENT_MESSAGES must be positive")
	}
	return nil
}

// reader keeps the first parse error so FromEnv can read every variable in
// one pass.
type reader struct {
	lookup func(string) (string, bool)
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("config: %s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		r.fail(fmt.Errorf("config: %s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.fail(fmt.Errorf("config: %s: invalid level %q", key, v))
		return def
	}
	return lvl
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

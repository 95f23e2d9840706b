// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the roomchat service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst turns limiting off.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// RedisConfig points the presence mirror at a Redis server. An empty Addr
// disables the mirror.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PresenceTTL time.Duration
}

// NATSConfig points the lifecycle publisher at a NATS server. An empty URL
// disables the publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port               string
	AllowedOrigins     []string
	MaxMessageSize     int64
	SendBufferSize     int
	RateLimit          RateLimitConfig
	LogLevel           string
	LogFormat          string
	Redis              RedisConfig
	NATS               NATSConfig
	LifecycleQueueSize int
	ShutdownTimeout    time.Duration
}

const (
	defaultPort               = ":8080"
	defaultMaxMessageSize     = 1 << 20
	defaultSendBufferSize     = 256
	defaultBurst              = 0
	defaultRefillInterval     = time.Second
	defaultPresenceTTL        = time.Hour
	defaultSubjectPrefix      = "roomchat"
	defaultLifecycleQueueSize = 1024
	defaultShutdownTimeout    = 30 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		SendBufferSize: defaultSendBufferSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		LogLevel:  "info",
		LogFormat: "console",
		Redis: RedisConfig{
			PresenceTTL: defaultPresenceTTL,
		},
		NATS: NATSConfig{
			SubjectPrefix: defaultSubjectPrefix,
		},
		LifecycleQueueSize: defaultLifecycleQueueSize,
		ShutdownTimeout:    defaultShutdownTimeout,
	}
}

// sanitizeConfig fills zero or invalid values with defaults and returns a copy.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.Redis.PresenceTTL <= 0 {
		cfg.Redis.PresenceTTL = defaultPresenceTTL
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = defaultSubjectPrefix
	}

	if cfg.LifecycleQueueSize <= 0 {
		cfg.LifecycleQueueSize = defaultLifecycleQueueSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseNonNegative(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		if parsed, err := strconv.Atoi(db); err == nil && parsed >= 0 {
			cfg.Redis.DB = parsed
		}
	}
	if ttl := os.Getenv("PRESENCE_TTL"); ttl != "" {
		cfg.Redis.PresenceTTL = parseSeconds(ttl, cfg.Redis.PresenceTTL)
	}

	cfg.NATS.URL = os.Getenv("NATS_URL")
	if prefix := os.Getenv("NATS_SUBJECT_PREFIX"); prefix != "" {
		cfg.NATS.SubjectPrefix = prefix
	}

	if size := os.Getenv("LIFECYCLE_QUEUE_SIZE"); size != "" {
		cfg.LifecycleQueueSize = parseIntValue(size, cfg.LifecycleQueueSize)
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseNonNegative(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

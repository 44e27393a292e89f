// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/Sternrassler/go-term-sync/pkg/logging"
	"github.com/Sternrassler/go-term-sync/pkg/queue"
	"github.com/Sternrassler/go-term-sync/pkg/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Config holds every runtime setting.
type Config struct {
	MaxConcurrency int
	MaxRetries     int
	RetryBaseDelay time.Duration

	RedisURL  string
	QueueName string

	// QueueReferenceTTL is how long an enqueued reference blocks duplicates.
	QueueReferenceTTL time.Duration

	LogLevel  string
	LogPretty bool

	// MetricsAddr enables the metrics listener when non-empty.
	MetricsAddr string

	HTTPTimeout   time.Duration
	HTTPRateLimit float64

	DBDriver string

	// JobCatalog is an optional YAML catalog path; empty uses the built-in jobs.
	JobCatalog string

	TreeFetchLenient bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		MaxConcurrency:    5,
		MaxRetries:        3,
		RetryBaseDelay:    1 * time.Second,
		RedisURL:          "localhost:6379",
		QueueName:         "go-term-sync",
		QueueReferenceTTL: queue.DefaultReferenceTTL,
		LogLevel:          "info",
		HTTPTimeout:       60 * time.Second,
		HTTPRateLimit:     10,
		DBDriver:          store.DriverSQLServer,
	}
}

// Load reads envFile (when given) or a .env in the working directory if one
// exists, then applies the environment on top of Default.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load(".env")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a validated Config from a variable lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.MaxConcurrency = p.getInt("MAX_CONCURRENCY", cfg.MaxConcurrency)
	cfg.MaxRetries = p.getInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBaseDelay = p.getSeconds("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RedisURL = p.getString("REDIS_URL", cfg.RedisURL)
	cfg.QueueName = p.getString("QUEUE_NAME", cfg.QueueName)
	cfg.QueueReferenceTTL = p.getSeconds("QUEUE_REFERENCE_TTL", cfg.QueueReferenceTTL)
	cfg.LogLevel = p.getString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = p.getBool("LOG_PRETTY", cfg.LogPretty)
	cfg.MetricsAddr = p.getString("METRICS_ADDR", cfg.MetricsAddr)
	cfg.HTTPTimeout = p.getSeconds("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.HTTPRateLimit = p.getFloat("HTTP_RATE_LIMIT", cfg.HTTPRateLimit)
	cfg.DBDriver = p.getString("DB_DRIVER", cfg.DBDriver)
	cfg.JobCatalog = p.getString("JOB_CATALOG", cfg.JobCatalog)
	cfg.TreeFetchLenient = p.getBool("TREE_FETCH_LENIENT", cfg.TreeFetchLenient)

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be > 0, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be > 0, got %s", c.RetryBaseDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0, got %s", c.HTTPTimeout)
	}
	if c.HTTPRateLimit < 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must be >= 0, got %g", c.HTTPRateLimit)
	}
	if c.DBDriver != store.DriverSQLServer && c.DBDriver != store.DriverPostgres {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", store.DriverSQLServer, store.DriverPostgres, c.DBDriver)
	}
	if c.QueueReferenceTTL <= 0 {
		return fmt.Errorf("QUEUE_REFERENCE_TTL must be > 0, got %s", c.QueueReferenceTTL)
	}
	if strings.TrimSpace(c.QueueName) == "" {
		return fmt.Errorf("QUEUE_NAME must not be empty")
	}
	return nil
}

// Dispatch returns the dispatcher settings.
func (c Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		MaxConcurrency: c.MaxConcurrency,
		MaxRetries:     c.MaxRetries,
		BaseDelay:      c.RetryBaseDelay,
	}
}

// Logging returns the logger settings writing to out.
func (c Config) Logging(out io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.LogLevel),
		Pretty: c.LogPretty,
		Output: out,
	}
}

// RedisOptions accepts either a redis:// URL or a bare host:port.
func (c Config) RedisOptions() (*redis.Options, error) {
	if strings.Contains(c.RedisURL, "://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

// parser collects the first conversion error.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) getString(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) getInt(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) getFloat(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) getBool(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

// getSeconds accepts a Go duration ("1.5s") or a plain number of seconds ("1.5").
func (p *parser) getSeconds(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return time.Duration(f * float64(time.Second))
}

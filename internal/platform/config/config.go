package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	s "fishtank/pkg/string"
	"fishtank/pkg/validation"
)

// Defaults applied when the matching env var is unset.
var (
	DefaultAddr                   = ":8080"
	DefaultRelayTimeout           = 10 * time.Second
	DefaultMinDwell               = 3 * time.Second
	DefaultTicketTTL              = 2 * time.Hour
	DefaultSessionTTL             = 2 * time.Hour
	DefaultSessionCleanupInterval = 5 * time.Minute
	DefaultSubmitRateLimit        = 10
	DefaultSubmitRateWindow       = time.Minute
	DefaultMaxBodyBytes     int64 = 64 * 1024
)

const devTicketSigningKey = "dev-ticket-key-change-in-production"

// Server captures process-wide configuration. It is built once at start-up
// and passed by reference.
type Server struct {
	Addr         string `validate:"required"`
	Environment  string `validate:"required,oneof=local dev staging production test"`
	LogLevel     string `validate:"omitempty,oneof=debug info warn error"`
	MaxBodyBytes int64  `validate:"min=1024"`

	Relay     RelayConfig
	Forms     FormsConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Security  SecurityConfig
}

// RelayConfig describes the outbound form relay. URL and APIKey may be empty:
// submissions then report a configuration fault instead of failing start-up.
type RelayConfig struct {
	URL           string        `validate:"omitempty,url"`
	APIKey        string
	SheetApply    string        `validate:"required"`
	SheetFeedback string        `validate:"required"`
	Timeout       time.Duration `validate:"min=1ms"`
}

// Configured reports whether both the endpoint and the key are present.
func (c RelayConfig) Configured() bool {
	return c.URL != "" && c.APIKey != ""
}

type FormsConfig struct {
	MinDwell time.Duration `validate:"min=0"`
}

type SessionConfig struct {
	TicketSigningKey string        `validate:"required,min=16"`
	TicketTTL        time.Duration `validate:"min=1s"`
	TTL              time.Duration `validate:"min=1s"`
	CleanupInterval  time.Duration `validate:"min=1s"`
}

type RateLimitConfig struct {
	SubmitLimit  int           `validate:"min=1"`
	SubmitWindow time.Duration `validate:"min=1s"`
}

// RedisConfig enables the shared rate-limit store when URL is set.
type RedisConfig struct {
	URL          string `validate:"omitempty,url"`
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SecurityConfig struct {
	TrustedProxies []string
}

// IsProduction reports whether the service runs with production defaults.
func (s *Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds and validates a Server config from environment variables so main stays lean.
func FromEnv() (*Server, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an injectable variable source.
func FromLookup(lookup func(string) (string, bool)) (*Server, error) {
	l := loader{lookup: lookup}

	cfg := &Server{
		Addr:         l.str("FISHTANK_ADDR", DefaultAddr),
		Environment:  l.str("FISHTANK_ENV", "local"),
		LogLevel:     l.str("LOG_LEVEL", "info"),
		MaxBodyBytes: l.int64("MAX_BODY_BYTES", DefaultMaxBodyBytes),
		Relay: RelayConfig{
			URL:           l.str("RELAY_URL", ""),
			APIKey:        l.str("RELAY_API_KEY", ""),
			SheetApply:    l.str("RELAY_SHEET_APPLY", "Apply"),
			SheetFeedback: l.str("RELAY_SHEET_FEEDBACK", "Feedback"),
			Timeout:       l.duration("RELAY_TIMEOUT", DefaultRelayTimeout),
		},
		Forms: FormsConfig{
			MinDwell: l.duration("FORM_MIN_DWELL", DefaultMinDwell),
		},
		Session: SessionConfig{
			TicketSigningKey: l.str("TICKET_SIGNING_KEY", ""),
			TicketTTL:        l.duration("TICKET_TTL", DefaultTicketTTL),
			TTL:              l.duration("SESSION_TTL", DefaultSessionTTL),
			CleanupInterval:  l.duration("SESSION_CLEANUP_INTERVAL", DefaultSessionCleanupInterval),
		},
		RateLimit: RateLimitConfig{
			SubmitLimit:  l.int("SUBMIT_RATE_LIMIT", DefaultSubmitRateLimit),
			SubmitWindow: l.duration("SUBMIT_RATE_WINDOW", DefaultSubmitRateWindow),
		},
		Redis: RedisConfig{
			URL:          l.str("REDIS_URL", ""),
			PoolSize:     l.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: l.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  l.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  l.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: l.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Security: SecurityConfig{
			TrustedProxies: s.SplitAndTrim(l.str("TRUSTED_PROXIES", "")),
		},
	}
	if l.err != nil {
		return nil, l.err
	}

	if cfg.Session.TicketSigningKey == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("TICKET_SIGNING_KEY is required in production")
		}
		cfg.Session.TicketSigningKey = devTicketSigningKey
	}

	if err := validation.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loader records the first parse error so FromLookup reads linearly.
type loader struct {
	lookup func(string) (string, bool)
	err    error
}

func (l *loader) str(key, def string) string {
	if v, ok := l.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := l.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return d
}

func (l *loader) int(key string, def int) int {
	v, ok := l.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return n
}

func (l *loader) int64(key string, def int64) int64 {
	v, ok := l.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		l.fail(key, err)
		return def
	}
	return n
}

func (l *loader) fail(key string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

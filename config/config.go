package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	DeepLink DeepLinkConfig `yaml:"deeplink"`
	Events   EventsConfig   `yaml:"events"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Auth     AuthConfig     `yaml:"auth"`
	Admin    AdminConfig    `yaml:"admin"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig configures the primary session backend; an empty URL disables it
type RedisConfig struct {
	URL             string        `yaml:"url"`
	ConnectAttempts uint          `yaml:"connect_attempts"`
	BackoffStep     time.Duration `yaml:"backoff_step"`
	BackoffMax      time.Duration `yaml:"backoff_max"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
}

// SessionConfig configures session lifetime
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// DeepLinkConfig names the URI scheme of the native app
type DeepLinkConfig struct {
	Scheme string `yaml:"scheme"`
}

// EventsConfig selects the event bus
type EventsConfig struct {
	Backend string `yaml:"backend"` // gochannel or redisstream
	Topic   string `yaml:"topic"`
}

// RealtimeConfig tunes the websocket gateway
type RealtimeConfig struct {
	OriginPatterns []string `yaml:"origin_patterns"`
	SendQueue      int      `yaml:"send_queue"`
}

// AuthConfig configures session token signing
type AuthConfig struct {
	// SigningKeyPEM is a PEM encoded P-256 key; a random key is used when empty
	SigningKeyPEM string `yaml:"signing_key_pem"`
}

// AdminConfig toggles the diagnostics endpoints
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Event bus backends
const (
	EventsGoChannel   = "gochannel"
	EventsRedisStream = "redisstream"
)

// Default returns the built-in configuration
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":3000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestTimeout: 5 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
		},
		Redis: RedisConfig{
			URL:             "redis://localhost:6379/0",
			ConnectAttempts: 4,
			BackoffStep:     100 * time.Millisecond,
			BackoffMax:      2 * time.Second,
			OpTimeout:       time.Second,
		},
		Session: SessionConfig{
			TTL: time.Hour,
		},
		DeepLink: DeepLinkConfig{
			Scheme: "walletauth",
		},
		Events: EventsConfig{
			Backend: EventsGoChannel,
			Topic:   "session.connected",
		},
		Realtime: RealtimeConfig{
			SendQueue: 16,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c Config) Validate() error {
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.DeepLink.Scheme == "" || strings.ContainsAny(c.DeepLink.Scheme, ":/?#") {
		return fmt.Errorf("deeplink.scheme %q is not a bare URI scheme", c.DeepLink.Scheme)
	}
	switch c.Events.Backend {
	case EventsGoChannel, EventsRedisStream:
	default:
		return fmt.Errorf("events.backend must be %q or %q, got %q", EventsGoChannel, EventsRedisStream, c.Events.Backend)
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.HTTP.Addr = ":" + v
	}
	if err := overrideDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := overrideDuration("HTTP_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout); err != nil {
		return err
	}
	overrideList("CORS_ORIGINS", &cfg.HTTP.CORSOrigins)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	} else if host := os.Getenv("REDIS_HOST"); host != "" {
		port := os.Getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		cfg.Redis.URL = "redis://" + net.JoinHostPort(host, port)
	}
	if v := os.Getenv("REDIS_CONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("parse REDIS_CONNECT_ATTEMPTS: %w", err)
		}
		cfg.Redis.ConnectAttempts = uint(n)
	}

	if err := overrideDuration("REDIS_OP_TIMEOUT", &cfg.Redis.OpTimeout); err != nil {
		return err
	}

	if err := overrideDuration("SESSION_TTL", &cfg.Session.TTL); err != nil {
		return err
	}

	if v := os.Getenv("DEEPLINK_SCHEME"); v != "" {
		cfg.DeepLink.Scheme = v
	}

	if v := os.Getenv("EVENTS_BACKEND"); v != "" {
		cfg.Events.Backend = v
	}

	overrideList("REALTIME_ORIGIN_PATTERNS", &cfg.Realtime.OriginPatterns)

	if v := os.Getenv("AUTH_SIGNING_KEY_PEM"); v != "" {
		cfg.Auth.SigningKeyPEM = v
	}

	if v := os.Getenv("ADMIN_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse ADMIN_ENABLED: %w", err)
		}
		cfg.Admin.Enabled = enabled
	}

	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*target = d
	return nil
}

func overrideList(key string, target *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*target = out
}

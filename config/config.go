// Package config loads the cache service configuration from an optional
// YAML file, an optional .env file and the process environment, in that
// order of increasing precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings such as "5m",
// "1d12h" or a bare number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return str2duration.String(time.Duration(d)) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// ParseDuration accepts str2duration syntax or an integer number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

// Retry is the connect retry schedule for the remote cache transport.
type Retry struct {
	InitialDelay Duration `yaml:"initial_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	MaxDelay     Duration `yaml:"max_delay"`
	MaxAttempts  int      `yaml:"max_attempts"`
}

// RateLimit configures the per-client request limiter.
type RateLimit struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

type Config struct {
	// RedisConnectionString selects the remote tier. Empty means local only.
	RedisConnectionString string   `yaml:"redis_connection_string"`
	DefaultTTL            Duration `yaml:"default_ttl"`
	ReconnectDelay        Duration `yaml:"reconnect_delay"`
	ConnectTimeout        Duration `yaml:"connect_timeout"`
	// QueryTimeout bounds each remote call. Zero disables it.
	QueryTimeout Duration  `yaml:"query_timeout"`
	Retry        Retry     `yaml:"retry"`
	KeyPrefix    string    `yaml:"key_prefix"`
	Codec        string    `yaml:"codec"`
	LogLevel     string    `yaml:"log_level"`
	LogFormat    string    `yaml:"log_format"`
	OTLPEndpoint string    `yaml:"otlp_endpoint"`
	OTLPToken    string    `yaml:"otlp_token"`
	ServiceName  string    `yaml:"service_name"`
	RateLimit    RateLimit `yaml:"rate_limit"`
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DefaultTTL:     Duration(300 * time.Second),
		ReconnectDelay: Duration(5 * time.Second),
		ConnectTimeout: Duration(15 * time.Second),
		Retry: Retry{
			InitialDelay: Duration(100 * time.Millisecond),
			Multiplier:   1.5,
			MaxDelay:     Duration(5 * time.Second),
			MaxAttempts:  10,
		},
		Codec:       CodecJSON,
		LogLevel:    "info",
		LogFormat:   "console",
		ServiceName: "higuera-dashboard",
		RateLimit: RateLimit{
			MaxRequests: 60,
			Window:      Duration(time.Minute),
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory if one exists, and
// finally the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return cfg, errors.Wrap(err, "loading .env")
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields with any of the supported environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = Duration(d)
		return nil
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = n
		return nil
	}

	str("REDIS_CONNECTION_STRING", &c.RedisConnectionString)
	str("CACHE_KEY_PREFIX", &c.KeyPrefix)
	str("CACHE_CODEC", &c.Codec)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)
	str("OTEL_EXPORTER_OTLP_TOKEN", &c.OTLPToken)
	str("OTEL_SERVICE_NAME", &c.ServiceName)

	for key, dst := range map[string]*Duration{
		"CACHE_DEFAULT_TTL":     &c.DefaultTTL,
		"CACHE_RECONNECT_DELAY": &c.ReconnectDelay,
		"CACHE_CONNECT_TIMEOUT": &c.ConnectTimeout,
		"CACHE_QUERY_TIMEOUT":   &c.QueryTimeout,
		"RATE_LIMIT_WINDOW":     &c.RateLimit.Window,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	if err := num("RATE_LIMIT_MAX_REQUESTS", &c.RateLimit.MaxRequests); err != nil {
		return err
	}
	return num("CACHE_CONNECT_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
}

// Validate rejects settings the cache cannot run with.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return errors.Newf("default_ttl must be positive, got %s", c.DefaultTTL)
	}
	if c.ReconnectDelay <= 0 {
		return errors.Newf("reconnect_delay must be positive, got %s", c.ReconnectDelay)
	}
	if c.ConnectTimeout <= 0 {
		return errors.Newf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.QueryTimeout < 0 {
		return errors.Newf("query_timeout must not be negative, got %s", c.QueryTimeout)
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return errors.Newf("retry delays must satisfy 0 < initial_delay <= max_delay")
	}
	if c.Retry.Multiplier < 1 {
		return errors.Newf("retry multiplier must be at least 1, got %v", c.Retry.Multiplier)
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.Newf("retry max_attempts must not be negative, got %d", c.Retry.MaxAttempts)
	}
	switch strings.ToLower(c.Codec) {
	case CodecJSON, CodecMsgpack:
	default:
		return errors.Newf("unknown codec %q", c.Codec)
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return errors.Newf("rate_limit requires positive max_requests and window")
	}
	return nil
}

// RemoteEnabled reports whether a remote tier is configured.
func (c Config) RemoteEnabled() bool {
	return strings.TrimSpace(c.RedisConnectionString) != ""
}

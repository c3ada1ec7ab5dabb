package serv

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the service configuration
type Config struct {
	// LogLevel can be debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	// JSONLogs switches the log output to JSON
	JSONLogs bool `mapstructure:"json_logs"`

	// HostPort to listen on
	HostPort string `mapstructure:"host_port"`

	Caching  CachingConfig  `mapstructure:"caching"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
}

// UpstreamConfig points at the GraphQL server queries are forwarded to
type UpstreamConfig struct {
	URL string `mapstructure:"url"`
}

// CachingConfig configures the response cache
type CachingConfig struct {
	// Disable turns response caching off entirely
	Disable bool `mapstructure:"disable"`

	// DefaultMaxAge gives unhinted fields a default max-age in seconds.
	// Zero means unhinted fields make a response uncacheable.
	DefaultMaxAge int `mapstructure:"default_max_age"`

	// MemCacheSize bounds the in-memory cache (number of entries)
	MemCacheSize int `mapstructure:"mem_cache_size"`

	// SessionHeader names the request header carrying the session id
	SessionHeader string `mapstructure:"session_header"`

	// SplitAuthenticated keeps the shared authenticated-public bucket
	// separate from the anonymous one
	SplitAuthenticated bool `mapstructure:"split_authenticated"`

	// CompressionMin is the smallest payload worth compressing, in bytes
	CompressionMin int `mapstructure:"compression_min"`
}

// RedisConfig configures the optional Redis backend
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// ReadInConfig reads the configuration file at path, layering RC_-prefixed
// environment variables on top
func ReadInConfig(path string) (*Config, error) {
	vi := newViper(path)

	if err := vi.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	c := &Config{}
	if err := vi.Unmarshal(c); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return c, nil
}

// NewConfig returns a config populated with defaults only
func NewConfig() *Config {
	c := &Config{}
	_ = newViper("").Unmarshal(c)
	return c
}

func newViper(path string) *viper.Viper {
	vi := viper.New()

	vi.SetEnvPrefix("RC")
	vi.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vi.AutomaticEnv()

	vi.SetDefault("log_level", "info")
	vi.SetDefault("host_port", "0.0.0.0:8080")
	vi.SetDefault("caching.mem_cache_size", defaultMemoryCacheSize)
	vi.SetDefault("caching.session_header", "session-id")
	vi.SetDefault("caching.split_authenticated", true)
	vi.SetDefault("caching.compression_min", compressionThreshold)

	if path != "" {
		vi.SetConfigFile(path)
	}
	return vi
}

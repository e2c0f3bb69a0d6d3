// Package config loads runtime settings for the chat server from the
// environment, an optional .env file and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is loaded when present and no explicit file was requested.
const DefaultEnvFile = ".env"

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SSEConfig controls the event stream endpoint.
type SSEConfig struct {
	// KeepAliveInterval enables comment frames on idle streams when positive.
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"gte=0"`
}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst" validate:"gt=0"`
	RefillInterval time.Duration `mapstructure:"refill_interval" validate:"gt=0"`
}

// WebSocketConfig holds the security controls of the WebSocket endpoint.
type WebSocketConfig struct {
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	MaxMessageSize int64           `mapstructure:"max_message_size" validate:"gt=0"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// Config holds the server configuration.
type Config struct {
	Host            string          `mapstructure:"host"`
	Port            string          `mapstructure:"port" validate:"required,numeric"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Log             LogConfig       `mapstructure:"log"`
	SSE             SSEConfig       `mapstructure:"sse"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// envBindings maps configuration keys to the environment variables that set them.
var envBindings = map[string]string{
	"host":                                 "HOST",
	"port":                                 "PORT",
	"shutdown_timeout":                     "SHUTDOWN_TIMEOUT",
	"log.level":                            "LOG_LEVEL",
	"log.format":                           "LOG_FORMAT",
	"sse.keepalive_interval":               "SSE_KEEPALIVE_INTERVAL",
	"websocket.allowed_origins":            "ALLOWED_ORIGINS",
	"websocket.max_message_size":           "WS_MAX_MESSAGE_SIZE",
	"websocket.rate_limit.burst":           "WS_RATE_LIMIT_BURST",
	"websocket.rate_limit.refill_interval": "WS_RATE_LIMIT_REFILL_INTERVAL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", "3000")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("sse.keepalive_interval", time.Duration(0))
	v.SetDefault("websocket.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.rate_limit.burst", 5)
	v.SetDefault("websocket.rate_limit.refill_interval", time.Second)
}

type loaderOptions struct {
	envFile string
}

// Option customizes Load.
type Option func(*loaderOptions)

// WithEnvFile loads variables from path instead of the default .env lookup.
// Unlike the default file, an explicit file must exist.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// Load reads the configuration. Variables already present in the environment
// take precedence over those in the env file.
func Load(opts ...Option) (*Config, error) {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := loadEnvFile(o.envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.WebSocket.AllowedOrigins = splitOrigins(cfg.WebSocket.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(DefaultEnvFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", DefaultEnvFile, err)
	}
	if err := godotenv.Load(DefaultEnvFile); err != nil {
		return fmt.Errorf("load env file %s: %w", DefaultEnvFile, err)
	}
	return nil
}

// splitOrigins accepts both list values and single comma separated entries.
func splitOrigins(origins []string) []string {
	var out []string
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

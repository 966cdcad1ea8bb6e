package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigName is the configuration file name without extension.
	ConfigName = "weft"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "WEFT"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Session     SessionConfig     `mapstructure:"session"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`

	// file is the configuration file that was read, if any.
	file string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	DefaultPath     string        `mapstructure:"default_path"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SessionConfig configures sessions and their limits.
type SessionConfig struct {
	MaxSessions      int     `mapstructure:"max_sessions"`
	MaxSessionsPerIP int     `mapstructure:"max_sessions_per_ip"`
	MaxRedirects     int     `mapstructure:"max_redirects"`
	WindowWidth      float64 `mapstructure:"window_width"`
	WindowHeight     float64 `mapstructure:"window_height"`
}

// TransportConfig configures renderer connections.
type TransportConfig struct {
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	KeepaliveTimeout  time.Duration `mapstructure:"keepalive_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig configures logging. Format is "auto", "text" or "json"; auto
// picks text on a terminal.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AttachmentsConfig names the S3 location of shared attachment documents.
// An empty Bucket disables loading.
type AttachmentsConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         DefaultAddress,
			DefaultPath:     "/",
			ShutdownTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			MaxSessionsPerIP: 100,
			MaxRedirects:     10,
			WindowWidth:      80,
			WindowHeight:     24,
		},
		Transport: TransportConfig{
			KeepaliveInterval: 50 * time.Second,
			KeepaliveTimeout:  10 * time.Second,
			WriteTimeout:      10 * time.Second,
			MaxMessageSize:    64 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "weft",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Attachments: AttachmentsConfig{
			Region: "us-east-1",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.default_path", d.Server.DefaultPath)
	v.SetDefault("server.trusted_proxies", d.Server.TrustedProxies)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("session.max_sessions", d.Session.MaxSessions)
	v.SetDefault("session.max_sessions_per_ip", d.Session.MaxSessionsPerIP)
	v.SetDefault("session.max_redirects", d.Session.MaxRedirects)
	v.SetDefault("session.window_width", d.Session.WindowWidth)
	v.SetDefault("session.window_height", d.Session.WindowHeight)
	v.SetDefault("transport.keepalive_interval", d.Transport.KeepaliveInterval)
	v.SetDefault("transport.keepalive_timeout", d.Transport.KeepaliveTimeout)
	v.SetDefault("transport.write_timeout", d.Transport.WriteTimeout)
	v.SetDefault("transport.max_message_size", d.Transport.MaxMessageSize)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("attachments.bucket", d.Attachments.Bucket)
	v.SetDefault("attachments.prefix", d.Attachments.Prefix)
	v.SetDefault("attachments.region", d.Attachments.Region)
	v.SetDefault("attachments.endpoint", d.Attachments.Endpoint)
}

// Load reads configuration from file and env. When path is empty, weft.yaml
// is looked up in the working directory and its absence is not an error.
// Env var overrides use prefix WEFT_.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.file = v.ConfigFileUsed()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// File returns the path of the file the configuration was read from, or ""
// when only defaults and environment were used.
func (c *Config) File() string {
	return c.file
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	return &clone
}

// WithAddress sets the listen address and returns the config for chaining.
func (c *Config) WithAddress(addr string) *Config {
	c.Server.Address = addr
	return c
}

// WithLogLevel sets the log level and returns the config for chaining.
func (c *Config) WithLogLevel(level string) *Config {
	c.Log.Level = level
	return c
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if !strings.HasPrefix(c.Server.DefaultPath, "/") {
		errs = append(errs, fmt.Errorf("server.default_path %q must start with /", c.Server.DefaultPath))
	}
	if c.Session.MaxSessions < 0 || c.Session.MaxSessionsPerIP < 0 {
		errs = append(errs, errors.New("session limits must not be negative"))
	}
	if c.Session.MaxRedirects < 1 {
		errs = append(errs, fmt.Errorf("session.max_redirects must be at least 1, got %d", c.Session.MaxRedirects))
	}
	if c.Session.WindowWidth < 0 || c.Session.WindowHeight < 0 {
		errs = append(errs, errors.New("session window size must not be negative"))
	}
	if c.Transport.KeepaliveInterval <= 0 || c.Transport.KeepaliveTimeout <= 0 {
		errs = append(errs, errors.New("transport keepalive interval and timeout must be positive"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be auto, text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

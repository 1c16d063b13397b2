package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RELAWAN_REGISTRY_BASE_URL.
const EnvPrefix = "RELAWAN"

// Config is the full service configuration.
type Config struct {
	Server   Server      `mapstructure:"server"`
	Log      Log         `mapstructure:"log"`
	Registry Registry    `mapstructure:"registry"`
	Wizard   Wizard      `mapstructure:"wizard"`
	Handoff  Handoff     `mapstructure:"handoff"`
	Redis    RedisConfig `mapstructure:"redis"`
	Events   Events      `mapstructure:"events"`
	Tracing  Tracing     `mapstructure:"tracing"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Registry points at the external volunteer registry.
type Registry struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Wizard bounds how long an idle wizard instance is kept.
type Wizard struct {
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Handoff selects where the post-submission marker lives.
type Handoff struct {
	Backend   string        `mapstructure:"backend"` // "memory" or "redis"
	TTL       time.Duration `mapstructure:"ttl"`
	Namespace string        `mapstructure:"namespace"`
}

// RedisConfig is only required when Handoff.Backend is "redis".
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Events enables Kafka publication of completed registrations when Brokers is set.
type Events struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Tracing struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"` // "stdout" or "none"
	ServiceName string `mapstructure:"service_name"`
}

// SetDefaults registers every key so env overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("registry.base_url", "http://localhost:8081")
	v.SetDefault("registry.api_key", "")
	v.SetDefault("registry.timeout", 15*time.Second)

	v.SetDefault("wizard.session_ttl", time.Hour)

	v.SetDefault("handoff.backend", "memory")
	v.SetDefault("handoff.ttl", 30*time.Minute)
	v.SetDefault("handoff.namespace", "relawan")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "volunteer.registrations")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.service_name", "relawan-wizard")
}

// Load reads defaults, an optional config file and RELAWAN_* env overrides.
func Load(v *viper.Viper, file string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Registry.BaseURL) == "" {
		return errors.New("registry.base_url is required")
	}
	if c.Registry.Timeout <= 0 {
		return errors.New("registry.timeout must be positive")
	}
	switch c.Handoff.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when handoff.backend is redis")
		}
	default:
		return fmt.Errorf("unsupported handoff.backend %q", c.Handoff.Backend)
	}
	if c.Handoff.TTL <= 0 {
		return errors.New("handoff.ttl must be positive")
	}
	if c.Wizard.SessionTTL <= 0 {
		return errors.New("wizard.session_ttl must be positive")
	}
	return nil
}

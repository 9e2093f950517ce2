package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GATEWAY"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`

	// Disables rate limiting entirely. Logged loudly at startup.
	DebugBypassRateLimiting bool `mapstructure:"debug_bypass_rate_limiting"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Rule is a (limit, window) pair.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RouteRule overrides the scope default for a single route.
type RouteRule struct {
	Method string        `mapstructure:"method"`
	Path   string        `mapstructure:"path"`
	Scope  string        `mapstructure:"scope"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Defaults     map[string]Rule `mapstructure:"defaults"`
	Routes       []RouteRule     `mapstructure:"routes"`
	StoreTimeout time.Duration   `mapstructure:"store_timeout"`
	Grace        time.Duration   `mapstructure:"grace"`
}

type CacheConfig struct {
	ListTTL      time.Duration `mapstructure:"list_ttl"`
	DetailTTL    time.Duration `mapstructure:"detail_ttl"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	SingleFlight bool          `mapstructure:"single_flight"`
	IgnoreParams []string      `mapstructure:"ignore_params"`
}

var validScopes = map[string]bool{"ip": true, "user": true, "endpoint": true}

// Load reads defaults, then the optional config file at path, then GATEWAY_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiry", 24*time.Hour)
	v.SetDefault("log.level", "info")

	v.SetDefault("debug_bypass_rate_limiting", false)

	v.SetDefault("rate_limit.defaults.ip.limit", 100)
	v.SetDefault("rate_limit.defaults.ip.window", time.Minute)
	v.SetDefault("rate_limit.defaults.user.limit", 300)
	v.SetDefault("rate_limit.defaults.user.window", time.Minute)
	v.SetDefault("rate_limit.defaults.endpoint.limit", 1000)
	v.SetDefault("rate_limit.defaults.endpoint.window", time.Minute)
	v.SetDefault("rate_limit.store_timeout", 100*time.Millisecond)
	v.SetDefault("rate_limit.grace", 5*time.Second)

	v.SetDefault("cache.list_ttl", 30*time.Second)
	v.SetDefault("cache.detail_ttl", 5*time.Minute)
	v.SetDefault("cache.store_timeout", 100*time.Millisecond)
	v.SetDefault("cache.single_flight", false)
	v.SetDefault("cache.ignore_params", []string{"request_id", "_"})
}

func (c *Config) Validate() error {
	for scope, rule := range c.RateLimit.Defaults {
		if !validScopes[scope] {
			return fmt.Errorf("rate_limit.defaults: unknown scope %q", scope)
		}
		if err := rule.validate(); err != nil {
			return fmt.Errorf("rate_limit.defaults.%s: %w", scope, err)
		}
	}

	for i, route := range c.RateLimit.Routes {
		if route.Method == "" || route.Path == "" {
			return fmt.Errorf("rate_limit.routes[%d]: method and path are required", i)
		}
		if !validScopes[route.Scope] {
			return fmt.Errorf("rate_limit.routes[%d]: unknown scope %q", i, route.Scope)
		}
		if err := (Rule{Limit: route.Limit, Window: route.Window}).validate(); err != nil {
			return fmt.Errorf("rate_limit.routes[%d]: %w", i, err)
		}
	}

	if c.RateLimit.StoreTimeout <= 0 {
		return errors.New("rate_limit.store_timeout must be positive")
	}
	if c.RateLimit.Grace < 0 {
		return errors.New("rate_limit.grace must not be negative")
	}
	if c.Cache.StoreTimeout <= 0 {
		return errors.New("cache.store_timeout must be positive")
	}
	if c.Cache.ListTTL < 0 || c.Cache.DetailTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}

	return nil
}

func (r Rule) validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", r.Limit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", r.Window)
	}
	return nil
}

// RuleFor returns the override for (method, path, scope), falling back to the scope default.
func (c *Config) RuleFor(method, path, scope string) Rule {
	for _, route := range c.RateLimit.Routes {
		if strings.EqualFold(route.Method, method) && route.Path == path && route.Scope == scope {
			return Rule{Limit: route.Limit, Window: route.Window}
		}
	}

	return c.RateLimit.Defaults[scope]
}

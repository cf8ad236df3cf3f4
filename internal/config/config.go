package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix scopes environment overrides, e.g. HOUSESCREENS_BACKEND_BASE_URL.
const envPrefix = "HOUSESCREENS"

// Config is the typed view of configs/config.yml.
type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Device    DeviceConfig    `mapstructure:"device"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Screen    ScreenConfig    `mapstructure:"screen"`
	Waiter    WaiterConfig    `mapstructure:"waiter"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// DeviceConfig scopes the persisted flags; one row set per device id.
type DeviceConfig struct {
	ID string `mapstructure:"id"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// BackendConfig points the gateway at the provisioning backend.
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Domain        string        `mapstructure:"domain"`
	SessionToken  string        `mapstructure:"session_token"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// ScreenConfig holds locally detected screen properties.
type ScreenConfig struct {
	Width                 int    `mapstructure:"width"`
	Height                int    `mapstructure:"height"`
	PlayerEnvironmentName string `mapstructure:"player_environment_name"`
}

type WaiterConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	ReactivateAttempt int           `mapstructure:"reactivate_attempt"`
}

type ReconcileConfig struct {
	Deadline             time.Duration `mapstructure:"deadline"`
	HouseCreatedDebounce time.Duration `mapstructure:"house_created_debounce"`
	SecondRefreshDelay   time.Duration `mapstructure:"second_refresh_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("device.id", "default")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.cache_ttl", 5*time.Second)
	v.SetDefault("backend.rate_per_second", 5.0)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("screen.player_environment_name", "Web Player")
	v.SetDefault("waiter.interval", time.Second)
	v.SetDefault("waiter.max_attempts", 10)
	v.SetDefault("waiter.reactivate_attempt", 3)
	v.SetDefault("reconcile.deadline", 90*time.Second)
	v.SetDefault("reconcile.house_created_debounce", time.Second)
	v.SetDefault("reconcile.second_refresh_delay", 5*time.Second)
}

// Load reads the config file at path, or configs/config.yml when path is
// empty, layers HOUSESCREENS_* environment variables over it and validates
// the result. A missing default file is not an error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
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

// Validate rejects settings the reconciler cannot run with.
func (c Config) Validate() error {
	if c.Waiter.MaxAttempts <= 0 {
		return fmt.Errorf("waiter.max_attempts must be positive, got %d", c.Waiter.MaxAttempts)
	}
	if c.Waiter.ReactivateAttempt <= 0 || c.Waiter.ReactivateAttempt > c.Waiter.MaxAttempts {
		return fmt.Errorf("waiter.reactivate_attempt must be in [1, %d], got %d",
			c.Waiter.MaxAttempts, c.Waiter.ReactivateAttempt)
	}
	if c.Waiter.Interval <= 0 {
		return fmt.Errorf("waiter.interval must be positive")
	}
	if c.Reconcile.Deadline <= 0 {
		return fmt.Errorf("reconcile.deadline must be positive")
	}
	if c.Screen.Width < 0 || c.Screen.Height < 0 {
		return fmt.Errorf("screen dimensions must not be negative")
	}
	if strings.TrimSpace(c.Device.ID) == "" {
		return fmt.Errorf("device.id is required")
	}
	return nil
}

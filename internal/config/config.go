package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CARDORDERS_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
		AutoMigrate     bool          `koanf:"auto_migrate"`
	} `koanf:"mysql"`

	Redis struct {
		Addr          string        `koanf:"addr"`
		Password      string        `koanf:"password"`
		DB            int           `koanf:"db"`
		OrderCacheTTL time.Duration `koanf:"order_cache_ttl"`
		EventTTL      time.Duration `koanf:"event_ttl"`
	} `koanf:"redis"`

	Rabbit struct {
		URL      string `koanf:"url"`
		Exchange string `koanf:"exchange"`
	} `koanf:"rabbitmq"`

	Security struct {
		JWTSecret     string `koanf:"jwt_secret"`
		Issuer        string `koanf:"issuer"`
		WebhookSecret string `koanf:"webhook_secret"`
	} `koanf:"security"`

	Gateway struct {
		BaseURL   string        `koanf:"base_url"`
		ShopID    string        `koanf:"shop_id"`
		SecretKey string        `koanf:"secret_key"`
		Currency  string        `koanf:"currency"`
		ReturnURL string        `koanf:"return_url"`
		Timeout   time.Duration `koanf:"timeout"`
	} `koanf:"gateway"`

	Sweeper struct {
		Enabled  bool          `koanf:"enabled"`
		Interval time.Duration `koanf:"interval"`
		MinAge   time.Duration `koanf:"min_age"`
		Batch    int           `koanf:"batch"`
	} `koanf:"sweeper"`
}

// Load reads <dir>/base.yaml, then the optional <dir>/<envName>.yaml, then
// CARDORDERS_ environment variables (CARDORDERS_MYSQL__DSN sets mysql.dsn).
func Load(dir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(filepath.Join(dir, "base.yaml")), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	if envName != "" {
		// missing per-environment files are fine for local runs
		_ = k.Load(file.Provider(filepath.Join(dir, envName+".yaml")), yaml.Parser())
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr required"))
	}
	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn required"))
	}
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret required"))
	}
	if c.Security.WebhookSecret == "" {
		errs = append(errs, errors.New("security.webhook_secret required"))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("gateway.base_url required"))
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	return errors.Join(errs...)
}

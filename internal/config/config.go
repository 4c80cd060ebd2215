package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenConfig - bearer-токен web-транспорта (хранится только sha256).
type TokenConfig struct {
	ID          string   `yaml:"id" validate:"required"`
	TokenSHA256 string   `yaml:"token_sha256" validate:"required,len=64,hexadecimal"`
	Subject     string   `yaml:"subject" validate:"required"`
	Roles       []string `yaml:"roles"`
	Enabled     bool     `yaml:"enabled"`
}

// Config описывает параметры сервиса.
type Config struct {
	Agent struct {
		LogLevel   string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
		LogFormat  string `yaml:"log_format" validate:"omitempty,oneof=json text"`
		LogFile    string `yaml:"log_file"`
		LogMaxMB   int    `yaml:"log_max_mb" validate:"min=0"`
		LogBackups int    `yaml:"log_backups" validate:"min=0"`
		LogMaxDays int    `yaml:"log_max_days" validate:"min=0"`
	} `yaml:"agent"`
	Database struct {
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns" validate:"min=1,max=500"`
		MaxIdleConns    int    `yaml:"max_idle_conns" validate:"min=0"`
		IdleTimeoutS    int    `yaml:"idle_timeout_s" validate:"min=0"`
		ConnectTimeoutS int    `yaml:"connect_timeout_s" validate:"min=0"`
		QueryTimeoutMS  int    `yaml:"query_timeout_ms" validate:"min=0"`
	} `yaml:"database"`
	Schema struct {
		Mode      string            `yaml:"mode" validate:"omitempty,oneof=auto primary secondary"`
		Overrides map[string]string `yaml:"overrides"`
	} `yaml:"schema"`
	Cache struct {
		Backend         string `yaml:"backend" validate:"oneof=memory badger"`
		BadgerPath      string `yaml:"badger_path"`
		DashboardTTLSec int    `yaml:"dashboard_ttl_s" validate:"min=1"`
	} `yaml:"cache"`
	Analytics struct {
		LowStockThreshold int `yaml:"low_stock_threshold" validate:"min=0"`
	} `yaml:"analytics"`
	Security struct {
		AuthAllowlist map[string][]string `yaml:"auth_allowlist"`
	} `yaml:"security"`
	SQLite struct {
		Path          string `yaml:"path" validate:"required"`
		RetentionDays int    `yaml:"retention_days" validate:"min=0"`
	} `yaml:"sqlite"`
	Scheduler struct {
		IntervalSeconds int  `yaml:"interval_seconds" validate:"min=1"`
		WarmOnStart     bool `yaml:"warm_on_start"`
	} `yaml:"scheduler"`
	Web struct {
		Enabled          bool   `yaml:"enabled"`
		ListenAddr       string `yaml:"listen_addr" validate:"required_if=Enabled true"`
		ReadTimeoutMS    int    `yaml:"read_timeout_ms" validate:"min=0"`
		WriteTimeoutMS   int    `yaml:"write_timeout_ms" validate:"min=0"`
		RequestTimeoutMS int    `yaml:"request_timeout_ms" validate:"min=0"`
		ShutdownTimeoutS int    `yaml:"shutdown_timeout_s" validate:"min=0"`
		RateLimit        int    `yaml:"rate_limit" validate:"min=0"`
		RateWindowMS     int    `yaml:"rate_window_ms" validate:"min=0"`
		Auth             struct {
			AllowLegacySubjectHeader bool          `yaml:"allow_legacy_subject_header"`
			Tokens                   []TokenConfig `yaml:"tokens" validate:"dive"`
		} `yaml:"auth"`
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
	} `yaml:"web"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Agent.LogLevel = "info"
	cfg.Agent.LogFormat = "json"
	cfg.Agent.LogMaxMB = 50
	cfg.Agent.LogBackups = 5
	cfg.Agent.LogMaxDays = 14
	cfg.Database.MaxOpenConns = 20
	cfg.Database.MaxIdleConns = 20
	cfg.Database.IdleTimeoutS = 30
	cfg.Database.ConnectTimeoutS = 5
	cfg.Database.QueryTimeoutMS = 10000
	cfg.Schema.Mode = "auto"
	cfg.Cache.Backend = "memory"
	cfg.Cache.DashboardTTLSec = 300
	cfg.Analytics.LowStockThreshold = 10
	cfg.SQLite.Path = "/var/lib/whstats/state.db"
	cfg.SQLite.RetentionDays = 30
	cfg.Scheduler.IntervalSeconds = 300
	cfg.Scheduler.WarmOnStart = true
	cfg.Web.Enabled = false
	cfg.Web.ListenAddr = "127.0.0.1:8080"
	cfg.Web.ReadTimeoutMS = 2000
	cfg.Web.WriteTimeoutMS = 15000
	cfg.Web.RequestTimeoutMS = 10000
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Web.RateLimit = 20
	cfg.Web.RateWindowMS = 1000
	cfg.Security.AuthAllowlist = map[string][]string{"web": {}, "cli": {"*"}}
	return cfg
}

// Load читает .env (если есть), конфиг YAML поверх значений по умолчанию,
// применяет переопределения из окружения и проверяет результат.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задается доверенным оператором/CI.
		if err != nil {
			return cfg, err
		}
		if len(data) == 0 {
			return cfg, errors.New("config file is empty")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv переопределяет DSN и путь к БД истории из окружения.
// WHSTATS_DATABASE_DSN приоритетнее DATABASE_URL.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("WHSTATS_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("WHSTATS_SQLITE_PATH")); v != "" {
		cfg.SQLite.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("WHSTATS_CACHE_BACKEND")); v != "" {
		cfg.Cache.Backend = v
	}
}

// Validate проверяет значения конфигурации.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	App           AppConfig          `yaml:"app" envPrefix:"APP_"`
	Store         StoreConfig        `yaml:"store"`
	Postgres      PostgresConfig     `yaml:"postgres" envPrefix:"DB_"`
	MercadoPago   MercadoPagoConfig  `yaml:"mercadopago" envPrefix:"MP_"`
	Email         EmailConfig        `yaml:"email"`
	Notifications NotificationConfig `yaml:"notifications" envPrefix:"NOTIFY_"`
	Lifecycle     LifecycleConfig    `yaml:"lifecycle"`
	Admin         AdminConfig        `yaml:"admin" envPrefix:"ADMIN_"`
}

type AppConfig struct {
	Name            string        `yaml:"name" env:"NAME"`
	Version         string        `yaml:"version" env:"VERSION"`
	Port            string        `yaml:"port" env:"PORT"`
	Env             string        `yaml:"env" env:"ENV"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	FrontendURL     string        `yaml:"frontend_url" env:"FRONTEND_URL"`
	BackendURL      string        `yaml:"backend_url" env:"BACKEND_URL"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER"`
}

type PostgresConfig struct {
	URL             string        `yaml:"url" env:"URL"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            string        `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	DBName          string        `yaml:"dbname" env:"NAME"`
	SSLMode         string        `yaml:"sslmode" env:"SSLMODE"`
	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
}

// DSN returns URL when set, otherwise a keyword/value string built from the parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type MercadoPagoConfig struct {
	AccessToken         string        `yaml:"access_token" env:"ACCESS_TOKEN"`
	BaseURL             string        `yaml:"base_url" env:"BASE_URL"`
	Currency            string        `yaml:"currency" env:"CURRENCY"`
	StatementDescriptor string        `yaml:"statement_descriptor" env:"STATEMENT_DESCRIPTOR"`
	WebhookSecret       string        `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type EmailConfig struct {
	ResendAPIKey  string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	ResendBaseURL string `yaml:"resend_base_url" env:"RESEND_BASE_URL"`
	From          string `yaml:"from" env:"EMAIL_FROM"`
	AdminEmail    string `yaml:"admin_email" env:"ADMIN_EMAIL"`
}

type NotificationConfig struct {
	Workers        int           `yaml:"workers" env:"WORKERS"`
	QueueSize      int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseBackoff    time.Duration `yaml:"base_backoff" env:"BASE_BACKOFF"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`
}

type LifecycleConfig struct {
	ReconcileTimeout   time.Duration `yaml:"reconcile_timeout" env:"RECONCILE_TIMEOUT"`
	MaxConflictRetries int           `yaml:"max_conflict_retries" env:"MAX_CONFLICT_RETRIES"`
	MaxNumberAttempts  int           `yaml:"max_number_attempts" env:"MAX_ORDER_NUMBER_ATTEMPTS"`
}

// AdminConfig enables the admin routes when both PasswordHash (bcrypt) and
// JWTSecret are set.
type AdminConfig struct {
	PasswordHash string        `yaml:"password_hash" env:"PASSWORD_HASH"`
	JWTSecret    string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

func (a AdminConfig) Enabled() bool {
	return a.PasswordHash != "" && a.JWTSecret != ""
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "storefront-api",
			Version:         "1.0.0",
			Port:            "8080",
			Env:             "development",
			LogLevel:        "info",
			FrontendURL:     "http://localhost:5173",
			BackendURL:      "http://localhost:8080",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{Driver: StoreDriverPostgres},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			DBName:          "storefront",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
		},
		MercadoPago: MercadoPagoConfig{
			BaseURL:             "https://api.mercadopago.com",
			Currency:            "MXN",
			StatementDescriptor: "STOREFRONT",
			Timeout:             10 * time.Second,
		},
		Email: EmailConfig{
			ResendBaseURL: "https://api.resend.com",
			From:          "Storefront <onboarding@resend.dev>",
		},
		Notifications: NotificationConfig{
			Workers:        2,
			QueueSize:      100,
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			AttemptTimeout: 10 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			ReconcileTimeout:   15 * time.Second,
			MaxConflictRetries: 3,
			MaxNumberAttempts:  5,
		},
		Admin: AdminConfig{
			TokenTTL: 12 * time.Hour,
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (if any), a .env
// file (if present) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.App.Port == "" {
		errs = append(errs, errors.New("APP_PORT is required"))
	}
	if c.App.FrontendURL == "" {
		errs = append(errs, errors.New("APP_FRONTEND_URL is required"))
	}
	if c.App.BackendURL == "" {
		errs = append(errs, errors.New("APP_BACKEND_URL is required"))
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.URL == "" && (c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.DBName == "") {
			errs = append(errs, errors.New("DB_URL or DB_HOST, DB_USER and DB_NAME are required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.MercadoPago.AccessToken == "" {
		errs = append(errs, errors.New("MP_ACCESS_TOKEN is required"))
	}
	if c.Notifications.Workers < 1 {
		errs = append(errs, errors.New("NOTIFY_WORKERS must be at least 1"))
	}
	if c.Admin.PasswordHash != "" && c.Admin.JWTSecret == "" {
		errs = append(errs, errors.New("ADMIN_JWT_SECRET is required when ADMIN_PASSWORD_HASH is set"))
	}
	if c.Notifications.MaxAttempts < 1 {
		errs = append(errs, errors.New("NOTIFY_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

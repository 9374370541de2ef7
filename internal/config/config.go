package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Push       PushConfig       `yaml:"push"`
	Storage    StorageConfig    `yaml:"storage"`
	Identity   IdentityConfig   `yaml:"identity"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN renders a lib/pq key=value connection string.
func (p PostgresConfig) DSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", p.Host),
		fmt.Sprintf("port=%d", p.Port),
		fmt.Sprintf("dbname=%s", p.DBName),
		fmt.Sprintf("sslmode=%s", p.SSLMode),
	}
	if p.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", p.User))
	}
	if p.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.Password))
	}
	return strings.Join(parts, " ")
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port          int   `yaml:"port"`
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

type APIAuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// Per authenticated user, shared across replicas through redis.
	UserRequests int           `yaml:"user_requests"`
	UserWindow   time.Duration `yaml:"user_window"`
}

type PushConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ServerKey    string        `yaml:"server_key"`
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	RPS          float64       `yaml:"rps"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type StorageConfig struct {
	URL          string        `yaml:"url"`
	ServiceKey   string        `yaml:"service_key"`
	Bucket       string        `yaml:"bucket"`
	AvatarBucket string        `yaml:"avatar_bucket"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Configured reports whether uploads can be served.
func (s StorageConfig) Configured() bool {
	return s.URL != "" && s.ServiceKey != ""
}

// IdentityConfig points at the auth provider that owns passwords. URL and
// key fall back to the storage project's.
type IdentityConfig struct {
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (i IdentityConfig) Configured() bool {
	return i.URL != "" && i.ServiceKey != ""
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Spec     string `yaml:"spec"`
	Timezone string `yaml:"timezone"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; a broken one is not.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.API.Auth.Enabled && c.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is required when auth is enabled")
	}

	if c.Push.Enabled && c.Push.ServerKey == "" {
		return errors.New("push.server_key is required when push is enabled")
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "selefli"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.MaxUploadSize == 0 {
		c.API.HTTP.MaxUploadSize = 10 << 20
	}
	if c.API.Auth.Audience == "" {
		c.API.Auth.Audience = "authenticated"
	}
	if c.API.RateLimit.UserWindow == 0 {
		c.API.RateLimit.UserWindow = time.Minute
	}
	if c.Push.Endpoint == "" {
		c.Push.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = 10 * time.Second
	}
	if c.Push.PollInterval == 0 {
		c.Push.PollInterval = 2 * time.Second
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "item-images"
	}
	if c.Storage.AvatarBucket == "" {
		c.Storage.AvatarBucket = "avatars"
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 30 * time.Second
	}
	if c.Identity.URL == "" {
		c.Identity.URL = c.Storage.URL
	}
	if c.Identity.ServiceKey == "" {
		c.Identity.ServiceKey = c.Storage.ServiceKey
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 15 * time.Second
	}
	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "0 9 * * *"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

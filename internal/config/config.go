package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"reservas/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Identity   IdentityConfig   `yaml:"identity"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Backup     BackupConfig     `yaml:"backup"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Brokers      []string          `yaml:"brokers"`
	Topic        string            `yaml:"topic"`
	GroupID      string            `yaml:"group_id"`
	ClientID     string            `yaml:"client_id"`
	BatchTimeout time.Duration     `yaml:"batch_timeout"`
	Retry        RetryPolicyConfig `yaml:"retry"`
}

type RetryPolicyConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type IdentityConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Realm         string        `yaml:"realm"`
	TokenURL      string        `yaml:"token_url"`
	IntrospectURL string        `yaml:"introspect_url"`
	ClientID      string        `yaml:"client_id"`
	ClientSecret  string        `yaml:"client_secret"`
	Scopes        []string      `yaml:"scopes"`
	Timeout       time.Duration `yaml:"timeout"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
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

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	MaxLeadDays int `yaml:"max_lead_days"`
	MinHours    int `yaml:"min_hours"`
	MaxHours    int `yaml:"max_hours"`
}

type CatalogConfig struct {
	BaseURL   string `yaml:"base_url"`
	Bootstrap bool   `yaml:"bootstrap"`
	SeedPath  string `yaml:"seed_path"`
}

type OutboxConfig struct {
	PollInterval time.Duration     `yaml:"poll_interval"`
	BatchSize    int               `yaml:"batch_size"`
	Retry        RetryPolicyConfig `yaml:"retry"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka topic is required")
	}
	if c.Booking.MinHours > c.Booking.MaxHours {
		return fmt.Errorf("booking.min_hours %d exceeds booking.max_hours %d", c.Booking.MinHours, c.Booking.MaxHours)
	}
	if c.Backup.Enabled && c.Backup.Interval < time.Minute {
		return fmt.Errorf("backup.interval %s is below one minute", c.Backup.Interval)
	}
	if c.Identity.Enabled {
		if c.Identity.TokenURL == "" || c.Identity.IntrospectURL == "" {
			return errors.New("identity token_url and introspect_url are required (or url and realm)")
		}
		if c.Identity.ClientID == "" {
			return errors.New("identity client_id is required")
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "espacios-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "reservaciones-group"
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 10 * time.Millisecond
	}
	c.Kafka.Retry.applyDefaults(5, 500*time.Millisecond, 30*time.Second)

	// Keycloak-style endpoints are derived from url + realm when not given explicitly
	if c.Identity.URL != "" && c.Identity.Realm != "" {
		base := fmt.Sprintf("%s/realms/%s/protocol/openid-connect", c.Identity.URL, c.Identity.Realm)
		if c.Identity.TokenURL == "" {
			c.Identity.TokenURL = base + "/token"
		}
		if c.Identity.IntrospectURL == "" {
			c.Identity.IntrospectURL = base + "/token/introspect"
		}
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 5 * time.Second
	}
	if c.Identity.RefreshMargin == 0 {
		c.Identity.RefreshMargin = models.TokenRefreshMargin
	}

	if c.Booking.MaxLeadDays == 0 {
		c.Booking.MaxLeadDays = models.DefaultMaxLeadDays
	}
	if c.Booking.MinHours == 0 {
		c.Booking.MinHours = models.MinReservationHours
	}
	if c.Booking.MaxHours == 0 {
		c.Booking.MaxHours = models.MaxReservationHours
	}

	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 5 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
	c.Outbox.Retry.applyDefaults(8, 2*time.Second, 5*time.Minute)

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
}

func (r *RetryPolicyConfig) applyDefaults(maxRetries int, initial, maxDelay time.Duration) {
	if r.MaxRetries == 0 {
		r.MaxRetries = maxRetries
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = initial
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = maxDelay
	}
	if r.BackoffFactor == 0 {
		r.BackoffFactor = 2
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"tallybook/internal/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Remote       RemoteConfig       `yaml:"remote"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Backup       BackupConfig       `yaml:"backup"`
	API          APIConfig          `yaml:"api"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	Exports      ExportConfig       `yaml:"exports"`
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

// RemoteConfig points at the remote datastore the queue is reconciled against.
type RemoteConfig struct {
	BaseURL   string          `yaml:"base_url"`
	APIKey    string          `yaml:"api_key"`
	Timeout   time.Duration   `yaml:"timeout"`
	CacheTTL  time.Duration   `yaml:"cache_ttl"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ConnectivityConfig struct {
	ProbeEnabled  bool          `yaml:"probe_enabled"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type SyncConfig struct {
	SubmitTimeout  time.Duration `yaml:"submit_timeout"`
	Interval       time.Duration `yaml:"interval"`
	NotifyOnOnline bool          `yaml:"notify_on_online"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

type BackupConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Schedule         string        `yaml:"schedule"`
	RetentionDays    int           `yaml:"retention_days"`
	StoragePath      string        `yaml:"storage_path"`
	PruneSyncedAfter time.Duration `yaml:"prune_synced_after"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Port      int             `yaml:"port"`
	Auth      APIAuthConfig   `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	HeaderAPIKey string   `yaml:"header_api_key"`
	APIKeys      []string `yaml:"api_keys"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
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

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error.
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
	return validation.ValidateStruct(c,
		validation.Field(&c.Database),
		validation.Field(&c.Remote),
		validation.Field(&c.Sync),
		validation.Field(&c.API),
		validation.Field(&c.Logging),
	)
}

func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required.Error("database path is required")),
	)
}

func (c RemoteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required.Error("remote base_url is required")),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Validate requires the drain lease to outlive at least two submissions, since
// it is renewed only between them.
func (c SyncConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SubmitTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.LeaseTTL, validation.When(c.LeaseTTL > 0 && c.SubmitTimeout > 0,
			validation.Min(2*c.SubmitTimeout).Error("sync lease_ttl must be at least twice submit_timeout"))),
	)
}

func (c APIConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Auth),
	)
}

func (c APIAuthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKeys, validation.When(c.Enabled, validation.Required.Error("api keys are required when auth is enabled"))),
	)
}

func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Output, validation.In("", "stdout", "stderr", "file")),
		validation.Field(&c.FilePath, validation.When(c.Output == "file", validation.Required)),
	)
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tallybook"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Remote.CacheTTL == 0 {
		c.Remote.CacheTTL = models.DefaultRemoteCacheTTL
	}

	if c.Connectivity.ProbeInterval == 0 {
		c.Connectivity.ProbeInterval = models.DefaultProbeInterval
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = models.DefaultProbeTimeout
	}

	if c.Sync.SubmitTimeout == 0 {
		c.Sync.SubmitTimeout = models.DefaultSubmitTimeout
	}
	if c.Sync.LeaseTTL == 0 {
		c.Sync.LeaseTTL = models.DefaultLeaseTTL
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "data/exports"
	}
}

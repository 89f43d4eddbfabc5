package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API           APIConfig          `toml:"api"`
	Polling       PollingConfig      `toml:"polling"`
	Notifications NotificationConfig `toml:"notifications"`
	Upload        UploadConfig       `toml:"upload"`
	Download      DownloadConfig     `toml:"download"`
	Database      DatabaseConfig     `toml:"database"`
	Server        ServerConfig       `toml:"server"`
	Log           LogConfig          `toml:"log"`
}

// APIConfig locates the transcription service.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	BasePath       string `toml:"base_path"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PollingConfig holds tracker cadences and the bounded-wait limits.
type PollingConfig struct {
	TaskIntervalSeconds  int `toml:"task_interval_seconds"`
	BatchIntervalSeconds int `toml:"batch_interval_seconds"`
	WaitTimeoutSeconds   int `toml:"wait_timeout_seconds"`
	WaitIntervalSeconds  int `toml:"wait_interval_seconds"`
}

// NotificationConfig controls how long notifications stay visible.
type NotificationConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
}

// UploadConfig contains the default submission options.
type UploadConfig struct {
	Model           string `toml:"model"`
	Language        string `toml:"language"`
	OutputFormat    string `toml:"output_format"`
	Task            string `toml:"task"`
	ConcurrentLimit int    `toml:"concurrent_limit"`
}

// DownloadConfig contains artifact download settings.
type DownloadConfig struct {
	OutputDir string  `toml:"output_dir"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains bridge server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the trackers can't run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is empty", ErrInvalidConfig)
	}
	if c.Polling.TaskIntervalSeconds <= 0 || c.Polling.BatchIntervalSeconds <= 0 {
		return fmt.Errorf("%w: polling intervals must be positive", ErrInvalidConfig)
	}
	if c.Polling.WaitTimeoutSeconds <= 0 || c.Polling.WaitIntervalSeconds <= 0 {
		return fmt.Errorf("%w: wait timeout and interval must be positive", ErrInvalidConfig)
	}
	if c.Upload.ConcurrentLimit < 1 || c.Upload.ConcurrentLimit > 10 {
		return fmt.Errorf("%w: upload.concurrent_limit must be between 1 and 10", ErrInvalidConfig)
	}
	return nil
}

// APIBase returns the gateway root, base URL joined with the base path.
func (c *Config) APIBase() string {
	return c.API.BaseURL + c.API.BasePath
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) TaskInterval() time.Duration {
	return time.Duration(c.Polling.TaskIntervalSeconds) * time.Second
}

func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Polling.BatchIntervalSeconds) * time.Second
}

func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Polling.WaitTimeoutSeconds) * time.Second
}

func (c *Config) WaitInterval() time.Duration {
	return time.Duration(c.Polling.WaitIntervalSeconds) * time.Second
}

func (c *Config) NotificationTTL() time.Duration {
	return time.Duration(c.Notifications.TTLSeconds) * time.Second
}

// ServerAddr returns host:port for the bridge server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

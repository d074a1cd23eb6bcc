package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	// SessionTTLMinutes bounds how long redis-backed entries live.
	SessionTTLMinutes int `yaml:"sessionTtlMinutes"`
}

type ServiceConfig struct {
	Port           int         `yaml:"port"`
	MaxQueueLength int         `yaml:"maxQueueLength"`
	MaxFileBytes   int64       `yaml:"maxFileBytes"`
	DefaultQuality int         `yaml:"defaultQuality"`
	BatchDelayMs   int         `yaml:"batchDelayMs"`
	ThumbnailWidth int         `yaml:"thumbnailWidth"`
	Store          StoreConfig `yaml:"store"`
}

const (
	defaultPort            = 8080
	defaultMaxQueueLength  = 20
	defaultMaxFileBytes    = 10 << 20 // 10 MiB
	defaultQuality         = 80
	defaultBatchDelayMs    = 100
	defaultThumbnailWidth  = 320
	defaultSessionTTLInMin = 30
)

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.MaxQueueLength == 0 {
		c.MaxQueueLength = defaultMaxQueueLength
	}
	if c.MaxFileBytes == 0 {
		c.MaxFileBytes = defaultMaxFileBytes
	}
	if c.DefaultQuality == 0 {
		c.DefaultQuality = defaultQuality
	}
	if c.BatchDelayMs == 0 {
		c.BatchDelayMs = defaultBatchDelayMs
	}
	if c.ThumbnailWidth == 0 {
		c.ThumbnailWidth = defaultThumbnailWidth
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.SessionTTLMinutes == 0 {
		c.Store.SessionTTLMinutes = defaultSessionTTLInMin
	}
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if c.MaxQueueLength < 1 {
		return fmt.Errorf("maxQueueLength must be positive, got %d", c.MaxQueueLength)
	}
	if c.MaxFileBytes < 1 {
		return fmt.Errorf("maxFileBytes must be positive, got %d", c.MaxFileBytes)
	}
	if c.DefaultQuality < 10 || c.DefaultQuality > 100 {
		return fmt.Errorf("defaultQuality must be in [10,100], got %d", c.DefaultQuality)
	}
	if c.BatchDelayMs < 0 {
		return fmt.Errorf("batchDelayMs must not be negative, got %d", c.BatchDelayMs)
	}
	if c.ThumbnailWidth < 1 {
		return fmt.Errorf("thumbnailWidth must be positive, got %d", c.ThumbnailWidth)
	}
	return nil
}

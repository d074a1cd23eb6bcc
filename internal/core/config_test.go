package core

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeTestConfig(t, `port: 9090
maxQueueLength: 5
maxFileBytes: 1048576
defaultQuality: 70
batchDelayMs: 50
thumbnailWidth: 200
store:
  type: sqlite
  connectionString: ":memory:"`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 9090 {
		t.Errorf("Expected port to be 9090, got %d", config.Port)
	}
	if config.MaxQueueLength != 5 {
		t.Errorf("Expected maxQueueLength to be 5, got %d", config.MaxQueueLength)
	}
	if config.MaxFileBytes != 1048576 {
		t.Errorf("Expected maxFileBytes to be 1048576, got %d", config.MaxFileBytes)
	}
	if config.DefaultQuality != 70 {
		t.Errorf("Expected defaultQuality to be 70, got %d", config.DefaultQuality)
	}
	if config.Store.Type != "sqlite" {
		t.Errorf("Expected store type 'sqlite', got '%s'", config.Store.Type)
	}
	if config.Store.ConnectionString != ":memory:" {
		t.Errorf("Expected connection string ':memory:', got '%s'", config.Store.ConnectionString)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	configPath := writeTestConfig(t, `port: 8081`)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.MaxQueueLength != 20 {
		t.Errorf("Expected default maxQueueLength 20, got %d", config.MaxQueueLength)
	}
	if config.MaxFileBytes != 10<<20 {
		t.Errorf("Expected default maxFileBytes %d, got %d", 10<<20, config.MaxFileBytes)
	}
	if config.DefaultQuality != 80 {
		t.Errorf("Expected default quality 80, got %d", config.DefaultQuality)
	}
	if config.BatchDelayMs != 100 {
		t.Errorf("Expected default batchDelayMs 100, got %d", config.BatchDelayMs)
	}
	if config.Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got '%s'", config.Store.Type)
	}
	if config.Store.SessionTTLMinutes != 30 {
		t.Errorf("Expected default session TTL 30, got %d", config.Store.SessionTTLMinutes)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")

	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeTestConfig(t, "port: [not a number")

	if _, err := LoadConfig(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "quality below range",
			content: "defaultQuality: 5",
		},
		{
			name:    "quality above range",
			content: "defaultQuality: 101",
		},
		{
			name:    "negative queue length",
			content: "maxQueueLength: -1",
		},
		{
			name:    "negative batch delay",
			content: "batchDelayMs: -10",
		},
		{
			name:    "port out of range",
			content: "port: 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTestConfig(t, tt.content)
			if _, err := LoadConfig(configPath); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

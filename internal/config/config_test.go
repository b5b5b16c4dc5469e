package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadConfigFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	_, err := ReadConfigFile(path)
	if err == nil {
		t.Fatal("Expect error for missing configuration file, got nil")
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expect template configuration file to be created, got %v", err)
	}
}

func TestReadConfigFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ReadConfigFile(path)
	if err == nil {
		t.Fatal("Expect error for invalid JSON, got nil")
	}
}

func TestReadConfigFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"database":{"in_memory":true}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadConfigFile(path)
	if err != nil {
		t.Fatalf("Expect no error, got %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Expect default port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Server.OutboundQueueSize != 64 {
		t.Errorf("Expect default outbound queue size 64, got %d", cfg.Server.OutboundQueueSize)
	}
	if !cfg.Database.InMemory {
		t.Error("Expect in_memory to be preserved")
	}
	if cfg.Database.OperationTimeout != "5s" {
		t.Errorf("Expect default operation timeout 5s, got %s", cfg.Database.OperationTimeout)
	}
}

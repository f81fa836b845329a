package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfigToPath_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read generated config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# webio configuration file") {
		t.Error("Expected generated config to start with the header comment")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
	for _, key := range []string{"logging", "allocator", "session", "backends", "metrics"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Expected top-level key %q", key)
		}
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	err := InitConfigToPath(path, false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Unexpected error: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "existing" {
		t.Error("Existing config must not be modified")
	}
}

func TestInitConfigToPath_ForceOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("Forced init failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) == "existing" {
		t.Error("Expected config to be overwritten")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config should load: %v", err)
	}

	def := GetDefaultConfig()
	if cfg.Session.IdleTimeout != def.Session.IdleTimeout {
		t.Errorf("Expected idle timeout %v, got %v", def.Session.IdleTimeout, cfg.Session.IdleTimeout)
	}
	if cfg.Allocator.Limits != def.Allocator.Limits {
		t.Errorf("Expected limits %+v, got %+v", def.Allocator.Limits, cfg.Allocator.Limits)
	}
	if cfg.Metrics.Listen != def.Metrics.Listen {
		t.Errorf("Expected metrics listen %q, got %q", def.Metrics.Listen, cfg.Metrics.Listen)
	}
}

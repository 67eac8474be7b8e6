package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Host)
	}
	if cfg.Port != 9119 {
		t.Errorf("Port = %d, want 9119", cfg.Port)
	}
	if cfg.Debug {
		t.Error("Debug = true, want false")
	}
}

// LoadConfig is once-guarded, so this is the single test that exercises it.
func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "host: 127.0.0.1\nport: 7000\ndebug: true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Port)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}

	// A second load returns the already-set configuration.
	again, err := LoadConfig("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("second LoadConfig: %v", err)
	}
	if again != cfg {
		t.Error("second LoadConfig returned a different config")
	}

	if got := GetConfig(); got != cfg {
		t.Error("GetConfig returned a different config")
	}
}

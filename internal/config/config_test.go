package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Model.Name != "" {
		t.Errorf("unexpected default model %q", cfg.Model.Name)
	}
	if cfg.Render.StrokeWidth != 4 {
		t.Errorf("Expected stroke width 4, got %d", cfg.Render.StrokeWidth)
	}
	if cfg.Timeout() != 300*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Timeout())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Model.Backend = "openai" }},
		{"timeout", func(c *Config) { c.Model.TimeoutSeconds = 0 }},
		{"formats", func(c *Config) { c.Input.SupportedFormats = nil }},
		{"min size", func(c *Config) { c.Input.MinImageSize = 0 }},
		{"max size", func(c *Config) { c.Input.MaxImageSize = 4 }},
		{"send quality", func(c *Config) { c.Input.SendQuality = 101 }},
		{"stroke", func(c *Config) { c.Render.StrokeWidth = 0 }},
		{"output format", func(c *Config) { c.Output.Format = "bmp" }},
		{"output quality", func(c *Config) { c.Output.Quality = 0 }},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("model:\n  backend: ollama\n  name: llava\nrender:\n  stroke_width: 2\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Model.Backend != "ollama" || cfg.Model.Name != "llava" {
		t.Errorf("unexpected model config %+v", cfg.Model)
	}
	if cfg.Render.StrokeWidth != 2 {
		t.Errorf("Expected stroke width 2, got %d", cfg.Render.StrokeWidth)
	}
	// Unset keys keep their defaults
	if cfg.Output.Format != "png" {
		t.Errorf("Expected default output format, got %q", cfg.Output.Format)
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Model.Backend = "llamacpp"
	cfg.Server.Addr = ":9090"
	cfg.APIKey = "secret"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) == "" || strings.Contains(string(raw), "secret") {
		t.Error("API key must not be written to the config file")
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Model.Backend != "llamacpp" || loaded.Server.Addr != ":9090" {
		t.Errorf("unexpected loaded config %+v", loaded)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected parse error")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected read error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-from-env")
	t.Setenv("OBJECT_COUNTER_BACKEND", "ollama")
	t.Setenv("OBJECT_COUNTER_MODEL", "")
	t.Setenv("OBJECT_COUNTER_TIMEOUT", "42")
	t.Setenv("OBJECT_COUNTER_ADDR", ":7070")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.APIKey != "key-from-env" {
		t.Errorf("Expected API key from env, got %q", cfg.APIKey)
	}
	if cfg.Model.Backend != "ollama" {
		t.Errorf("Expected backend from env, got %q", cfg.Model.Backend)
	}
	if cfg.Model.Name != "" {
		t.Errorf("Expected the model to be left for the backend to resolve, got %q", cfg.Model.Name)
	}
	if cfg.Model.TimeoutSeconds != 42 {
		t.Errorf("Expected timeout 42, got %d", cfg.Model.TimeoutSeconds)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Expected addr from env, got %q", cfg.Server.Addr)
	}
}

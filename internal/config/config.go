package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Model  ModelConfig  `json:"model" yaml:"model"`
	Input  InputConfig  `json:"input" yaml:"input"`
	Render RenderConfig `json:"render" yaml:"render"`
	Output OutputConfig `json:"output" yaml:"output"`
	Server ServerConfig `json:"server" yaml:"server"`
	Log    LogConfig    `json:"log" yaml:"log"`

	// APIKey is only read from the environment
	APIKey string `json:"-" yaml:"-"`
}

// ModelConfig selects the vision backend
type ModelConfig struct {
	Backend        string `json:"backend" yaml:"backend"`
	Name           string `json:"name" yaml:"name"` // empty selects the backend default
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// InputConfig holds configuration for accepted uploads and the image sent to the model
type InputConfig struct {
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
	MaxImageSize     int      `json:"max_image_size" yaml:"max_image_size"`
	SendMaxSize      int      `json:"send_max_size" yaml:"send_max_size"`
	SendQuality      int      `json:"send_quality" yaml:"send_quality"`
}

// RenderConfig holds configuration for drawing boxes
type RenderConfig struct {
	StrokeWidth  int `json:"stroke_width" yaml:"stroke_width"`
	LabelOffsetX int `json:"label_offset_x" yaml:"label_offset_x"`
	LabelOffsetY int `json:"label_offset_y" yaml:"label_offset_y"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format   string `json:"format" yaml:"format"`
	Quality  int    `json:"quality" yaml:"quality"`
	Lossless bool   `json:"lossless" yaml:"lossless"`
	Dir      string `json:"dir" yaml:"dir"`
	Suffix   string `json:"suffix" yaml:"suffix"`
}

// ServerConfig holds configuration for the HTTP service
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	MaxUploadMB int    `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend:        "gemini",
			Name:           "",
			URL:            "",
			TimeoutSeconds: 300,
		},
		Input: InputConfig{
			SupportedFormats: []string{"jpeg", "png", "webp", "gif"},
			MinImageSize:     16,
			MaxImageSize:     0,
			SendMaxSize:      0,
			SendQuality:      90,
		},
		Render: RenderConfig{
			StrokeWidth:  4,
			LabelOffsetX: 8,
			LabelOffsetY: 6,
		},
		Output: OutputConfig{
			Format:   "png",
			Quality:  90,
			Lossless: false,
			Dir:      "./output",
			Suffix:   "_detected",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads the given file, or the default path when it exists, then applies the environment
func Load(filename string) (*Config, error) {
	var (
		config *Config
		err    error
	)
	switch {
	case filename != "":
		config, err = LoadFromFile(filename)
	case fileExists(GetConfigPath()):
		config, err = LoadFromFile(GetConfigPath())
	default:
		config = Default()
	}
	if err != nil {
		return nil, err
	}

	config.ApplyEnv()
	return config, config.Validate()
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file when present and applies environment overrides
func (c *Config) ApplyEnv() {
	// A missing .env file is fine
	_ = godotenv.Load()

	c.APIKey = getEnv("GEMINI_API_KEY", c.APIKey)
	c.Model.Backend = getEnv("OBJECT_COUNTER_BACKEND", c.Model.Backend)
	c.Model.Name = getEnv("OBJECT_COUNTER_MODEL", c.Model.Name)
	c.Model.URL = getEnv("OBJECT_COUNTER_URL", c.Model.URL)
	c.Model.TimeoutSeconds = getEnvAsInt("OBJECT_COUNTER_TIMEOUT", c.Model.TimeoutSeconds)
	c.Server.Addr = getEnv("OBJECT_COUNTER_ADDR", c.Server.Addr)
	c.Log.Level = getEnv("OBJECT_COUNTER_LOG_LEVEL", c.Log.Level)
}

// Timeout returns the model timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case "gemini", "ollama", "llamacpp":
	default:
		return fmt.Errorf("model.backend must be one of gemini, ollama, llamacpp (got %q)", c.Model.Backend)
	}

	if c.Model.TimeoutSeconds < 1 {
		return fmt.Errorf("model.timeout_seconds must be positive")
	}

	if len(c.Input.SupportedFormats) == 0 {
		return fmt.Errorf("input.supported_formats cannot be empty")
	}

	if c.Input.MinImageSize < 1 {
		return fmt.Errorf("input.min_image_size must be positive")
	}

	if c.Input.MaxImageSize != 0 && c.Input.MaxImageSize < c.Input.MinImageSize {
		return fmt.Errorf("input.max_image_size must be 0 or at least input.min_image_size")
	}

	if c.Input.SendQuality < 1 || c.Input.SendQuality > 100 {
		return fmt.Errorf("input.send_quality must be between 1 and 100")
	}

	if c.Render.StrokeWidth < 1 {
		return fmt.Errorf("render.stroke_width must be positive")
	}

	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "object-counter", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Ollama   OllamaConfig   `yaml:"ollama"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Outputs  OutputsConfig  `yaml:"outputs,omitempty"`
	Archive  ArchiveConfig  `yaml:"archive,omitempty"`
}

// OllamaConfig holds Ollama connection settings.
type OllamaConfig struct {
	URL          string `yaml:"url"`
	DefaultModel string `yaml:"default_model"`
	MetricsModel string `yaml:"metrics_model"`
}

// ServerConfig holds web server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DefaultsConfig holds default debate settings.
type DefaultsConfig struct {
	Format        string `yaml:"format"`
	MaxIterations int    `yaml:"max_iterations"`
	Gain          int    `yaml:"gain"`
}

// OutputsConfig holds export settings.
type OutputsConfig struct {
	Dir string `yaml:"dir"`
}

// ArchiveConfig holds archive database settings.
type ArchiveConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:          "http://localhost:11434",
			DefaultModel: "gemma3:27b",
			MetricsModel: "gemma3:27b",
		},
		Server: ServerConfig{
			Port: 8004,
		},
		Defaults: DefaultsConfig{
			Format:        "one-to-one",
			MaxIterations: 3,
			Gain:          5,
		},
		Outputs: OutputsConfig{
			Dir: "outputs",
		},
		Archive: ArchiveConfig{
			DBPath: DefaultDBPath(),
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from a specific path. A missing file
// is not an error; defaults apply. Environment variables, optionally
// sourced from a .env file in the working directory, override both.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, proceed with defaults
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Ignore a missing .env; already-set variables win either way.
	_ = godotenv.Load()
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		cfg.Ollama.DefaultModel = v
	}
	if v := os.Getenv("METRICS_MODEL"); v != "" {
		cfg.Ollama.MetricsModel = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OUTPUTS_DIR"); v != "" {
		cfg.Outputs.Dir = v
	}
	if v := os.Getenv("TWISTD_DB"); v != "" {
		cfg.Archive.DBPath = v
	}
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo saves the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "twistd.yaml"
	}
	return filepath.Join(home, ".twistd", "config.yaml")
}

// DefaultDBPath returns the default archive database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "twistd.db"
	}
	return filepath.Join(home, ".twistd", "twistd.db")
}

// GenerateExample generates an example configuration file.
func GenerateExample() string {
	example := `# twistd configuration file
# Place this file at ~/.twistd/config.yaml

ollama:
  url: http://localhost:11434
  default_model: gemma3:27b   # Model used when a participant has none
  metrics_model: gemma3:27b   # Model used for debate metrics analysis

server:
  port: 8004

defaults:
  format: one-to-one          # one-to-one, cross-exam, many-on-one, panel, round-robin
  max_iterations: 3
  gain: 5                     # Distortion intensity 1-10

outputs:
  dir: outputs                # Where exported transcripts land

archive:
  db_path: ""                 # Empty = ~/.twistd/twistd.db
`
	return example
}

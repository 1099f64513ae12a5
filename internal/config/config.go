// Package config provides configuration management for storyline.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default port for the ops HTTP server.
const DefaultOpsAddr = ":8621"

// Database connection settings.
type Database struct {
	Driver   string `yaml:"driver"` // "postgres" or "sqlite"
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// Redis settings for the intake queue and category locks.
type Redis struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	Queue           string `yaml:"queue"`
	PopBlockSeconds int    `yaml:"pop_block_seconds"`
	LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
}

// Embedding settings for the Vertex AI text embedding backend.
type Embedding struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
	Model    string `yaml:"model"`
}

// Judge settings for the Anthropic-backed cluster judgment.
type Judge struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int64   `yaml:"max_tokens"`
	RateLimit   float64 `yaml:"rate_limit"`
	TokenBudget int     `yaml:"token_budget"`
}

// Retriever settings for candidate search.
type Retriever struct {
	Threshold   float64 `yaml:"threshold"`
	TopK        int     `yaml:"top_k"`
	WindowHours int     `yaml:"window_hours"`
}

// Config is the full service configuration.
type Config struct {
	Workers       int    `yaml:"workers"`
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBaseMS   int    `yaml:"retry_base_ms"`
	TaxonomyPath  string `yaml:"taxonomy_path"`
	OpsAddr       string `yaml:"ops_addr"`

	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Embedding Embedding `yaml:"embedding"`
	Judge     Judge     `yaml:"judge"`
	Retriever Retriever `yaml:"retriever"`
}

// Default returns the built-in configuration. Credentials are taken from
// the environment; everything else has workable development values.
func Default() *Config {
	return &Config{
		Workers:       12,
		RetryAttempts: 3,
		RetryBaseMS:   500,
		OpsAddr:       DefaultOpsAddr,
		Database: Database{
			Driver:   "postgres",
			DSN:      os.Getenv("STORYLINE_DB_DSN"),
			MaxConns: 16,
		},
		Redis: Redis{
			Address:         "localhost:6379",
			Queue:           "storyline:articles",
			PopBlockSeconds: 2,
			LockTTLSeconds:  10,
		},
		Embedding: Embedding{
			Project:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Location: "us-central1",
			Model:    "text-embedding-004",
		},
		Judge: Judge{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			MaxTokens: 1024,
			RateLimit: 2,
		},
		Retriever: Retriever{
			Threshold:   0.85,
			TopK:        5,
			WindowHours: 168,
		},
	}
}

// Load reads the YAML file at path over the defaults. Environment variable
// references (${VAR}) in the file are expanded before parsing. A missing
// file returns the defaults, not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports configuration a running service cannot work without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Judge.APIKey == "" {
		return fmt.Errorf("judge.api_key is required")
	}
	if c.Embedding.Project == "" {
		return fmt.Errorf("embedding.project is required")
	}
	return nil
}

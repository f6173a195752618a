// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// minSearchInterval is the smallest spacing allowed between search calls.
const minSearchInterval = 2 * time.Second

// Config is the application configuration. Values come from a YAML file,
// then environment variables, then defaults for whatever is still empty.
type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	Search      SearchConfig      `yaml:"search"`
	Fetch       FetchConfig       `yaml:"fetch"`
	LLM         LLMConfig         `yaml:"llm"`
	Verify      VerifyConfig      `yaml:"verify"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Matching    MatchingConfig    `yaml:"matching"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Ingress     IngressConfig     `yaml:"ingress"`
	Log         LogConfig         `yaml:"log"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// SearchConfig configures the web search client.
type SearchConfig struct {
	APIKey          string        `yaml:"api_key" env:"GOOGLE_SEARCH_API_KEY"`
	EngineID        string        `yaml:"engine_id" env:"GOOGLE_SEARCH_CX"`
	Interval        time.Duration `yaml:"interval" env:"SEARCH_INTERVAL"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"SEARCH_CACHE_TTL"`
	ResultsPerQuery int           `yaml:"results_per_query" validate:"gte=0,lte=10"`
}

// FetchConfig configures page fetching.
type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	UseBrowser bool          `yaml:"use_browser" env:"FETCH_USE_BROWSER"`
	MaxPages   int           `yaml:"max_pages" validate:"gte=0,lte=10"`
}

// LLMConfig configures the optional founder extraction model. Model overrides
// the lite extraction model.
type LLMConfig struct {
	APIKey  string `yaml:"api_key" env:"GEMINI_API_KEY"`
	Enabled bool   `yaml:"enabled" env:"LLM_ENABLED"`
	Model   string `yaml:"model" env:"LLM_MODEL"`
}

// VerifyConfig configures the address validation service.
type VerifyConfig struct {
	Endpoint string `yaml:"endpoint" env:"EMAIL_VERIFY_URL" validate:"omitempty,url"`
	APIKey   string `yaml:"api_key" env:"EMAIL_VERIFY_API_KEY"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider" env:"EMBEDDING_PROVIDER" validate:"omitempty,oneof=gemini openai"`
	Model    string        `yaml:"model" env:"EMBEDDING_MODEL"`
	BaseURL  string        `yaml:"base_url" env:"EMBEDDING_BASE_URL" validate:"omitempty,url"`
	APIKey   string        `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VectorIndexConfig selects where vectors are kept. Dir is the badger
// directory; empty keeps the index in memory.
type VectorIndexConfig struct {
	Backend string `yaml:"backend" env:"VECTOR_BACKEND" validate:"omitempty,oneof=badger postgres"`
	Dir     string `yaml:"dir" env:"VECTOR_DIR"`
}

// MatchingConfig tunes match scoring.
type MatchingConfig struct {
	Floor float64 `yaml:"floor" validate:"gte=0,lt=1"`
	TopK  int     `yaml:"top_k" validate:"gte=0"`
}

// PipelineConfig tunes enrichment runs.
type PipelineConfig struct {
	Workers    int           `yaml:"workers" env:"PIPELINE_WORKERS" validate:"gte=0,lte=64"`
	BatchSize  int           `yaml:"batch_size" validate:"gte=0"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// IngressConfig configures the upload consumer.
type IngressConfig struct {
	AMQPURL string   `yaml:"amqp_url" env:"RABBITMQ_URL"`
	Workers int      `yaml:"workers" validate:"gte=0"`
	Blob    S3Config `yaml:"blob"`
}

// S3Config addresses the bucket holding derived candidate text.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT" validate:"omitempty,url"`
	Region    string `yaml:"region" env:"S3_REGION"`
	Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
}

// TelemetryConfig enables trace export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"OTEL_EXPORTER_ENDPOINT"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Search: SearchConfig{
			Interval:        2500 * time.Millisecond,
			CacheTTL:        10 * time.Minute,
			ResultsPerQuery: 5,
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			MaxPages: 3,
		},
		Embedding: EmbeddingConfig{
			Provider: "gemini",
			Timeout:  30 * time.Second,
		},
		VectorIndex: VectorIndexConfig{Backend: "badger"},
		Matching:    MatchingConfig{Floor: 0.35, TopK: 10},
		Pipeline: PipelineConfig{
			Workers:    4,
			BatchSize:  100,
			MaxRetries: 3,
			StaleAfter: 30 * time.Minute,
		},
		Ingress: IngressConfig{Workers: 3},
		Log:     LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a YAML file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// Load builds the effective configuration: the file at path (optional),
// environment overrides, then defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(Default())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ApplyEnv overrides fields whose environment variable is set.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
// Required credentials are checked by the commands that need them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config error: invalid value for '%s' (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Search.Interval != 0 && c.Search.Interval < minSearchInterval {
		return fmt.Errorf("config error: 'search.interval' must be at least %s", minSearchInterval)
	}
	if c.VectorIndex.Backend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("config error: the postgres vector backend needs 'database_url'")
	}
	if c.Embedding.Provider == "openai" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("config error: the openai embedding provider needs 'embedding.base_url'")
	}
	if c.Verify.Endpoint != "" && c.Verify.APIKey == "" {
		return fmt.Errorf("config error: 'verify.api_key' is required with 'verify.endpoint'")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Search
	if result.Search.Interval == 0 {
		result.Search.Interval = defaults.Search.Interval
	}
	if result.Search.CacheTTL == 0 {
		result.Search.CacheTTL = defaults.Search.CacheTTL
	}
	if result.Search.ResultsPerQuery == 0 {
		result.Search.ResultsPerQuery = defaults.Search.ResultsPerQuery
	}

	// Fetch
	if result.Fetch.Timeout == 0 {
		result.Fetch.Timeout = defaults.Fetch.Timeout
	}
	if result.Fetch.MaxPages == 0 {
		result.Fetch.MaxPages = defaults.Fetch.MaxPages
	}

	// Embedding
	if result.Embedding.Provider == "" {
		result.Embedding.Provider = defaults.Embedding.Provider
	}
	if result.Embedding.Model == "" {
		result.Embedding.Model = defaults.Embedding.Model
	}
	if result.Embedding.Timeout == 0 {
		result.Embedding.Timeout = defaults.Embedding.Timeout
	}

	if result.VectorIndex.Backend == "" {
		result.VectorIndex.Backend = defaults.VectorIndex.Backend
	}
	if result.VectorIndex.Dir == "" {
		result.VectorIndex.Dir = defaults.VectorIndex.Dir
	}

	// Matching
	if result.Matching.Floor == 0 {
		result.Matching.Floor = defaults.Matching.Floor
	}
	if result.Matching.TopK == 0 {
		result.Matching.TopK = defaults.Matching.TopK
	}

	// Pipeline
	if result.Pipeline.Workers == 0 {
		result.Pipeline.Workers = defaults.Pipeline.Workers
	}
	if result.Pipeline.BatchSize == 0 {
		result.Pipeline.BatchSize = defaults.Pipeline.BatchSize
	}
	if result.Pipeline.MaxRetries == 0 {
		result.Pipeline.MaxRetries = defaults.Pipeline.MaxRetries
	}
	if result.Pipeline.StaleAfter == 0 {
		result.Pipeline.StaleAfter = defaults.Pipeline.StaleAfter
	}

	if result.Ingress.Workers == 0 {
		result.Ingress.Workers = defaults.Ingress.Workers
	}
	if result.Log.Level == "" {
		result.Log.Level = defaults.Log.Level
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags and env win for bools)

	return result
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/clipsum/summaryd/pkg/log"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Server:
// - LISTEN_ADDR: HTTP listen address (default: :8090)
// - LOG_LEVEL: debug|info|warn|error|fatal (default: info)
//
// Data:
// - DATA_DIR: directory for the sqlite database (default: ./data)
// - DOWNLOADS_DIR: directory for fetched audio files (default: ./data/downloads)
//
// Cache:
// - CACHE_MAX_BYTES: soft cache size cap in bytes (default: 52428800, 50MB)
// - CACHE_KEEP_COUNT: entries kept by an eviction pass (default: 20)
// - CACHE_SWEEP_CRON: eviction sweep schedule (default: "0 * * * *")
//
// Extractor:
// - RESOLVER_URL: local audio-stream resolver base URL (default: http://localhost:8000)
// - EXTRACTOR_TIMEOUT: metadata fetch timeout in seconds (default: 30)
//
// Transcription engine:
// - TRANSCRIBE_API_URL: OpenAI-compatible audio endpoint (default: http://localhost:8080/v1)
// - TRANSCRIBE_API_KEY: API key, if the local server checks one (optional)
// - TRANSCRIBE_MODEL: model name (default: whisper-1)
// - TRANSCRIBE_TIMEOUT: request timeout in seconds (default: 600)
//
// Summarization engine:
// - SUMMARIZE_API_URL: OpenAI-compatible chat endpoint (default: http://localhost:11434/v1)
// - SUMMARIZE_API_KEY: API key, if the local server checks one (optional)
// - SUMMARIZE_MODEL: model name (default: gemma-3n-e2b)
// - SUMMARIZE_MAX_TOKENS: response token cap (default: 400)
// - SUMMARIZE_TEMPERATURE: sampling temperature (default: 0.7)
// - SUMMARIZE_TIMEOUT: request timeout in seconds (default: 120)
//
// Pipeline:
// - MODEL_POLL_INTERVAL_MS: summarizer readiness poll interval (default: 500)
// - COMPLETION_HOLD_MS: how long the completed state stays visible (default: 1000)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Data       DataConfig       `json:"data"`
	Cache      CacheConfig      `json:"cache"`
	Extractor  ExtractorConfig  `json:"extractor"`
	Transcribe EngineConfig     `json:"transcribe"`
	Summarize  SummarizeConfig  `json:"summarize"`
	Pipeline   PipelineConfig   `json:"pipeline"`
}

type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
}

type DataConfig struct {
	Dir          string `json:"dir"`
	DownloadsDir string `json:"downloads_dir"`
}

func (c DataConfig) DatabasePath() string {
	return c.Dir + "/summaryd.db"
}

type CacheConfig struct {
	MaxBytes  int64  `json:"max_bytes"`
	KeepCount int    `json:"keep_count"`
	SweepCron string `json:"sweep_cron"`
}

type ExtractorConfig struct {
	ResolverURL string `json:"resolver_url"`
	Timeout     int    `json:"timeout"`
}

// EngineConfig holds the connection settings for an OpenAI-compatible
// local model server.
type EngineConfig struct {
	APIURL  string `json:"api_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	Timeout int    `json:"timeout"`
}

type SummarizeConfig struct {
	EngineConfig
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type PipelineConfig struct {
	ModelPollIntervalMs int `json:"model_poll_interval_ms"`
	CompletionHoldMs    int `json:"completion_hold_ms"`
}

func (c PipelineConfig) ModelPollInterval() time.Duration {
	return time.Duration(c.ModelPollIntervalMs) * time.Millisecond
}

func (c PipelineConfig) CompletionHold() time.Duration {
	return time.Duration(c.CompletionHoldMs) * time.Millisecond
}

// Option allows overriding configuration values after env parsing.
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options. A .env file in the working directory is loaded
// first if present.
func NewFromEnv(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			ListenAddr: getEnvString("LISTEN_ADDR", ":8090"),
			LogLevel:   getEnvString("LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			Dir:          getEnvString("DATA_DIR", "./data"),
			DownloadsDir: getEnvString("DOWNLOADS_DIR", "./data/downloads"),
		},
		Cache: CacheConfig{
			MaxBytes:  getEnvInt64("CACHE_MAX_BYTES", 50*1024*1024),
			KeepCount: getEnvInt("CACHE_KEEP_COUNT", 20),
			SweepCron: getEnvString("CACHE_SWEEP_CRON", "0 * * * *"),
		},
		Extractor: ExtractorConfig{
			ResolverURL: getEnvString("RESOLVER_URL", "http://localhost:8000"),
			Timeout:     getEnvInt("EXTRACTOR_TIMEOUT", 30),
		},
		Transcribe: EngineConfig{
			APIURL:  getEnvString("TRANSCRIBE_API_URL", "http://localhost:8080/v1"),
			APIKey:  getEnvString("TRANSCRIBE_API_KEY", ""),
			Model:   getEnvString("TRANSCRIBE_MODEL", "whisper-1"),
			Timeout: getEnvInt("TRANSCRIBE_TIMEOUT", 600),
		},
		Summarize: SummarizeConfig{
			EngineConfig: EngineConfig{
				APIURL:  getEnvString("SUMMARIZE_API_URL", "http://localhost:11434/v1"),
				APIKey:  getEnvString("SUMMARIZE_API_KEY", ""),
				Model:   getEnvString("SUMMARIZE_MODEL", "gemma-3n-e2b"),
				Timeout: getEnvInt("SUMMARIZE_TIMEOUT", 120),
			},
			MaxTokens:   getEnvInt("SUMMARIZE_MAX_TOKENS", 400),
			Temperature: getEnvFloat("SUMMARIZE_TEMPERATURE", 0.7),
		},
		Pipeline: PipelineConfig{
			ModelPollIntervalMs: getEnvInt("MODEL_POLL_INTERVAL_MS", 500),
			CompletionHoldMs:    getEnvInt("COMPLETION_HOLD_MS", 1000),
		},
	}

	log.Debug("Config: %+v", config)

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("CACHE_MAX_BYTES must be positive")
	}
	if c.Cache.KeepCount <= 0 {
		return fmt.Errorf("CACHE_KEEP_COUNT must be positive")
	}
	if c.Pipeline.ModelPollIntervalMs <= 0 {
		return fmt.Errorf("MODEL_POLL_INTERVAL_MS must be positive")
	}
	if c.Pipeline.CompletionHoldMs < 0 {
		return fmt.Errorf("COMPLETION_HOLD_MS must not be negative")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// Package config loads configuration from the environment with an
// optional YAML file overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// LLM backend
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	AWSRegion       string `yaml:"aws_region"`

	// GitHub access for repository analysis
	GitHubToken string `yaml:"-"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Detached generation jobs
	OutputDir  string        `yaml:"output_dir"`
	UploadDir  string        `yaml:"upload_dir"`
	JobTimeout time.Duration `yaml:"job_timeout"`

	// Session state eviction; zero means sessions live for the process lifetime.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// Interactive chat output cap (tokens). Detached generation is uncapped.
	ChatMaxTokens int `yaml:"chat_max_tokens"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables. If ORCHESTRA_CONFIG
// points at a YAML file, its values overlay the environment defaults.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "orchestra"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("ORCHESTRA_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("ORCHESTRA_LLM_MODEL", "llama3.1"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),

		ServerPort: getEnv("ORCHESTRA_SERVER_PORT", "8090"),

		OutputDir:  getEnv("ORCHESTRA_OUTPUT_DIR", "./generated_configs"),
		UploadDir:  getEnv("ORCHESTRA_UPLOAD_DIR", "./user_uploads"),
		JobTimeout: parseDuration(getEnv("ORCHESTRA_JOB_TIMEOUT", "15m")),

		SessionTTL: parseDuration(getEnv("ORCHESTRA_SESSION_TTL", "0")),

		ChatMaxTokens: 500,

		LogFile:  getEnv("ORCHESTRA_LOG_FILE", "/tmp/orchestra.log"),
		LogLevel: parseLogLevel(getEnv("ORCHESTRA_LOG_LEVEL", "INFO")),
	}

	if path := os.Getenv("ORCHESTRA_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	return cfg, nil
}

// applyFile overlays values from a YAML config file onto cfg,
// field-by-field where the file sets a value.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if overlay.SurrealDBURL != "" {
		c.SurrealDBURL = overlay.SurrealDBURL
	}
	if overlay.SurrealDBNamespace != "" {
		c.SurrealDBNamespace = overlay.SurrealDBNamespace
	}
	if overlay.SurrealDBDatabase != "" {
		c.SurrealDBDatabase = overlay.SurrealDBDatabase
	}
	if overlay.LLMProvider != "" {
		c.LLMProvider = overlay.LLMProvider
	}
	if overlay.LLMModel != "" {
		c.LLMModel = overlay.LLMModel
	}
	if overlay.OllamaHost != "" {
		c.OllamaHost = overlay.OllamaHost
	}
	if overlay.AWSRegion != "" {
		c.AWSRegion = overlay.AWSRegion
	}
	if overlay.ServerPort != "" {
		c.ServerPort = overlay.ServerPort
	}
	if overlay.OutputDir != "" {
		c.OutputDir = overlay.OutputDir
	}
	if overlay.UploadDir != "" {
		c.UploadDir = overlay.UploadDir
	}
	if overlay.JobTimeout != 0 {
		c.JobTimeout = overlay.JobTimeout
	}
	if overlay.SessionTTL != 0 {
		c.SessionTTL = overlay.SessionTTL
	}
	if overlay.ChatMaxTokens != 0 {
		c.ChatMaxTokens = overlay.ChatMaxTokens
	}
	if overlay.LogFile != "" {
		c.LogFile = overlay.LogFile
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Infra     InfraConfig     `yaml:"infra"`
}

type AppConfig struct {
	Port               string `yaml:"port"`
	Environment        string `yaml:"environment"`
	LogFilePath        string `yaml:"log_file_path"`
	CorsAllowedOrigins string `yaml:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // "postgres" or "memory"
	Connection string `yaml:"connection"`
	LogSQL     bool   `yaml:"log_sql"`
}

type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RestartPolicy string        `yaml:"restart_policy"` // "lazy" or "eager"
}

type EmbeddingConfig struct {
	Provider           string        `yaml:"provider"` // ollama, openai, azure, gemini, jina or hash
	Model              string        `yaml:"model"`
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	AzureEndpoint      string        `yaml:"azure_endpoint"`
	AzureDeployment    string        `yaml:"azure_deployment"`
	Dimension          int           `yaml:"dimension"`
	Timeout            time.Duration `yaml:"timeout"`
	AllowNullOnFailure bool          `yaml:"allow_null_on_failure"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	ReembedTopic       string        `yaml:"reembed_topic"`
}

type InfraConfig struct {
	NatsURL      string `yaml:"nats_url"`
	RedisURL     string `yaml:"redis_url"`
	JwtSecret    string `yaml:"jwt_secret"`
	OtelEnabled  bool   `yaml:"otel_enabled"`
	OtelEndpoint string `yaml:"otel_endpoint"`
}

const (
	RestartPolicyLazy  = "lazy"
	RestartPolicyEager = "eager"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/devmemory.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("STORE_DRIVER", "postgres"),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
			LogSQL:     getEnvAsBool("DB_LOG_SQL", false),
		},
		Session: SessionConfig{
			Timeout:       getEnvAsDuration("SESSION_TIMEOUT", 2*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 2*time.Minute),
			RestartPolicy: getEnv("SESSION_RESTART_POLICY", RestartPolicyLazy),
		},
		Embedding: EmbeddingConfig{
			Provider:           getEnv("EMBEDDING_PROVIDER", "ollama"),
			Model:              getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			BaseURL:            getEnv("EMBEDDING_BASE_URL", "http://localhost:11434"),
			APIKey:             getEnv("EMBEDDING_API_KEY", ""),
			AzureEndpoint:      getEnv("AZURE_OPENAI_ENDPOINT", ""),
			AzureDeployment:    getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", ""),
			Dimension:          getEnvAsInt("EMBEDDING_DIMENSION", 768),
			Timeout:            getEnvAsDuration("EMBEDDING_TIMEOUT", 10*time.Second),
			AllowNullOnFailure: getEnvAsBool("EMBEDDING_ALLOW_NULL_ON_FAILURE", false),
			CacheTTL:           getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
			ReembedTopic:       getEnv("REEMBED_TOPIC_NAME", "REEMBED_CONTEXT_ENTRY"),
		},
		Infra: InfraConfig{
			NatsURL:      getEnv("NATS_URL", ""),
			RedisURL:     getEnv("REDIS_URL", ""),
			JwtSecret:    getEnv("JWT_SECRET", ""),
			OtelEnabled:  getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			log.Printf("Warn: failed to apply config file %s: %v", path, err)
		}
	}

	return cfg
}

// MergeFile overlays the non-zero values found in a YAML file.
func (c *Config) MergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.MergeYAML(raw)
}

func (c *Config) MergeYAML(raw []byte) error {
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	mergeString(&c.App.Port, overlay.App.Port)
	mergeString(&c.App.Environment, overlay.App.Environment)
	mergeString(&c.App.LogFilePath, overlay.App.LogFilePath)
	mergeString(&c.App.CorsAllowedOrigins, overlay.App.CorsAllowedOrigins)
	mergeString(&c.Database.Driver, overlay.Database.Driver)
	mergeString(&c.Database.Connection, overlay.Database.Connection)
	c.Database.LogSQL = c.Database.LogSQL || overlay.Database.LogSQL
	mergeDuration(&c.Session.Timeout, overlay.Session.Timeout)
	mergeDuration(&c.Session.SweepInterval, overlay.Session.SweepInterval)
	mergeString(&c.Session.RestartPolicy, overlay.Session.RestartPolicy)
	mergeString(&c.Embedding.Provider, overlay.Embedding.Provider)
	mergeString(&c.Embedding.Model, overlay.Embedding.Model)
	mergeString(&c.Embedding.BaseURL, overlay.Embedding.BaseURL)
	mergeString(&c.Embedding.APIKey, overlay.Embedding.APIKey)
	mergeString(&c.Embedding.AzureEndpoint, overlay.Embedding.AzureEndpoint)
	mergeString(&c.Embedding.AzureDeployment, overlay.Embedding.AzureDeployment)
	if overlay.Embedding.Dimension > 0 {
		c.Embedding.Dimension = overlay.Embedding.Dimension
	}
	mergeDuration(&c.Embedding.Timeout, overlay.Embedding.Timeout)
	c.Embedding.AllowNullOnFailure = c.Embedding.AllowNullOnFailure || overlay.Embedding.AllowNullOnFailure
	mergeDuration(&c.Embedding.CacheTTL, overlay.Embedding.CacheTTL)
	mergeString(&c.Embedding.ReembedTopic, overlay.Embedding.ReembedTopic)
	mergeString(&c.Infra.NatsURL, overlay.Infra.NatsURL)
	mergeString(&c.Infra.RedisURL, overlay.Infra.RedisURL)
	mergeString(&c.Infra.JwtSecret, overlay.Infra.JwtSecret)
	c.Infra.OtelEnabled = c.Infra.OtelEnabled || overlay.Infra.OtelEnabled
	mergeString(&c.Infra.OtelEndpoint, overlay.Infra.OtelEndpoint)
	return c.Validate()
}

// Validate checks the settings the session core depends on.
func (c *Config) Validate() error {
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}
	if c.Session.SweepInterval <= 0 || c.Session.SweepInterval >= c.Session.Timeout {
		return fmt.Errorf("sweep interval %s must be positive and shorter than the timeout %s", c.Session.SweepInterval, c.Session.Timeout)
	}
	switch c.Session.RestartPolicy {
	case RestartPolicyLazy, RestartPolicyEager:
	default:
		return fmt.Errorf("unknown session restart policy %q", c.Session.RestartPolicy)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

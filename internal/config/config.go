package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. It covers the
// generation defaults, the per-provider credentials, and the optional
// service collaborators (database, redis, object storage).
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	Debug    bool   `yaml:"debug"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	GenerateRateLimitPerMinute int    `yaml:"generateRateLimitPerMinute"`
	TrustForwardedHeaders      bool   `yaml:"trustForwardedHeaders"`

	DefaultProvider    string  `yaml:"defaultProvider"`
	DefaultModel       string  `yaml:"defaultModel"`
	DefaultTemperature float64 `yaml:"defaultTemperature"`
	MaxTokens          int     `yaml:"maxTokens"`
	DefaultImageModel  string  `yaml:"defaultImageModel"`
	DefaultTTSModel    string  `yaml:"defaultTTSModel"`
	DefaultVoice       string  `yaml:"defaultVoice"`
	DefaultLanguage    string  `yaml:"defaultLanguage"`

	OpenAIAPIKey      string `yaml:"openaiAPIKey"`
	HuggingFaceAPIKey string `yaml:"huggingfaceAPIKey"`
	HuggingFaceModel  string `yaml:"huggingfaceModel"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("AIXO_API_KEY_OPENAI"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("AIXO_API_KEY_HUGGINGFACE"); v != "" {
		cfg.HuggingFaceAPIKey = v
	}
	if v := os.Getenv("AIXO_DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "openai"
	}
	if cfg.DefaultTemperature <= 0 {
		cfg.DefaultTemperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.GenerateRateLimitPerMinute > 0 && cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required when generateRateLimitPerMinute is set")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Models     ModelsConfig     `mapstructure:"models"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Context    ContextConfig    `mapstructure:"context"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	ClientIDHeader     string        `mapstructure:"client_id_header"`
	TrustProxy         bool          `mapstructure:"trust_proxy"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	CORSOrigins        []string      `mapstructure:"cors_origins"`
	EnableTestEndpoint bool          `mapstructure:"enable_test_endpoint"`
}

// ModelsConfig describes the single upstream provider and the ordered list of
// candidate models tried against it.
type ModelsConfig struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Candidates     []string      `mapstructure:"candidates"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
}

type StorageConfig struct {
	Type            string        `mapstructure:"type"`
	Redis           RedisConfig   `mapstructure:"redis"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type QuotaConfig struct {
	DailyLimit int    `mapstructure:"daily_limit"`
	Timezone   string `mapstructure:"timezone"`
}

// Location resolves the configured timezone. "Local" and the empty string map
// to the process clock's zone.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" || strings.EqualFold(q.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(q.Timezone)
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type ContextConfig struct {
	MaxPageContentChars int `mapstructure:"max_page_content_chars"`
}

type LoggingConfig struct {
	Level      string     `mapstructure:"level"`
	Format     string     `mapstructure:"format"`
	Output     string     `mapstructure:"output"`
	Service    string     `mapstructure:"service"`
	LogContent bool       `mapstructure:"log_content"`
	File       FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageMemory = "memory"
	StorageRedis  = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 200*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.client_id_header", "X-Client-ID")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.enable_test_endpoint", true)

	v.SetDefault("models.provider", ProviderGemini)
	v.SetDefault("models.base_url", "https://api.openai.com/v1")
	v.SetDefault("models.candidates", []string{"gemini-1.5-flash", "gemini-pro", "gemini-1.5-pro"})
	v.SetDefault("models.request_timeout", 60*time.Second)
	v.SetDefault("models.max_tokens", 1024)
	v.SetDefault("models.temperature", 0.7)

	v.SetDefault("storage.type", StorageMemory)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.key_prefix", "analyzer")
	v.SetDefault("storage.cleanup_interval", 10*time.Minute)

	v.SetDefault("quota.daily_limit", 50)
	v.SetDefault("quota.timezone", "Local")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("context.max_page_content_chars", 5000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.service", "text-analyzer")
	v.SetDefault("logging.log_content", false)
	v.SetDefault("logging.file.path", "logs/analyzer.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", false)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "zh"})
}

// LoadConfig loads configuration from an optional YAML file and environment
// variables. A missing file is not an error; every key has a default.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.BindEnv("server.port", "PORT")
	v.BindEnv("models.api_key", "GEMINI_API_KEY", "OPENAI_API_KEY", "MODELS_API_KEY")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	// Comma separated override, e.g. MODELS_CANDIDATES=gemini-1.5-flash,gemini-pro
	if candidates := os.Getenv("MODELS_CANDIDATES"); candidates != "" {
		config.Models.Candidates = splitList(candidates)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	switch cfg.Models.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported model provider: %s", cfg.Models.Provider)
	}
	if len(cfg.Models.Candidates) == 0 {
		return fmt.Errorf("at least one candidate model is required")
	}
	if err := validateTimeouts(cfg); err != nil {
		return err
	}
	if cfg.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota daily limit must be positive")
	}
	if _, err := cfg.Quota.Location(); err != nil {
		return fmt.Errorf("invalid quota timezone %q: %w", cfg.Quota.Timezone, err)
	}
	switch cfg.Storage.Type {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Context.MaxPageContentChars <= 0 {
		return fmt.Errorf("context max page content chars must be positive")
	}
	return nil
}

// validateTimeouts requires the write deadline to outlast every candidate
// timing out in turn.
func validateTimeouts(cfg *Config) error {
	if cfg.Server.WriteTimeout <= 0 {
		return nil
	}
	if cfg.Models.RequestTimeout <= 0 {
		return fmt.Errorf("models request timeout must be positive when server write timeout is set")
	}
	chain := time.Duration(len(cfg.Models.Candidates)) * cfg.Models.RequestTimeout
	if cfg.Server.WriteTimeout <= chain {
		return fmt.Errorf("server write timeout %s must exceed %d candidates x %s request timeout (%s)",
			cfg.Server.WriteTimeout, len(cfg.Models.Candidates), cfg.Models.RequestTimeout, chain)
	}
	return nil
}

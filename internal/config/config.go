package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Tiers      TiersConfig      `mapstructure:"tiers"`
	Context    ContextConfig    `mapstructure:"context"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string `mapstructure:"token"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
}

type OpenRouterConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchModel string        `mapstructure:"search_model"`
}

// TiersConfig is the static tier policy: quotas and allowed models per tier,
// plus the default model every new user starts on.
type TiersConfig struct {
	DefaultModel string     `mapstructure:"default_model"`
	Lite         TierConfig `mapstructure:"lite"`
	Plus         TierConfig `mapstructure:"plus"`
}

type TierConfig struct {
	DailyLimit   int      `mapstructure:"daily_limit"`
	MonthlyLimit int      `mapstructure:"monthly_limit"`
	Models       []string `mapstructure:"models"`
}

type ContextConfig struct {
	WindowSize int `mapstructure:"window_size"`
}

type StorageConfig struct {
	Type          string              `mapstructure:"type"`
	FlushInterval time.Duration       `mapstructure:"flush_interval"`
	File          FileStorageConfig   `mapstructure:"file"`
	Redis         RedisConfig         `mapstructure:"redis"`
	SQLite        SQLiteStorageConfig `mapstructure:"sqlite"`
}

type FileStorageConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type SQLiteStorageConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type PaymentsConfig struct {
	ProviderToken    string `mapstructure:"provider_token"`
	PriceStars       int    `mapstructure:"price_stars"`
	SubscriptionDays int    `mapstructure:"subscription_days"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
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
	Directory       string   `mapstructure:"directory"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.BindEnv("bot.token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	viper.BindEnv("payments.provider_token", "PAYMENT_PROVIDER_TOKEN")
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("bot.update_timeout", 30)

	viper.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("openrouter.timeout", 120*time.Second)
	viper.SetDefault("openrouter.search_model", "google/gemini-2.5-flash")

	viper.SetDefault("tiers.default_model", "google/gemini-2.5-flash")
	viper.SetDefault("tiers.lite.daily_limit", 10)
	viper.SetDefault("tiers.lite.monthly_limit", 50)
	viper.SetDefault("tiers.lite.models", []string{
		"openai/gpt-4.1",
		"google/gemini-2.5-flash",
	})
	viper.SetDefault("tiers.plus.daily_limit", 50)
	viper.SetDefault("tiers.plus.monthly_limit", 500)
	viper.SetDefault("tiers.plus.models", []string{
		"openai/gpt-4.1",
		"google/gemini-2.5-flash",
		"anthropic/claude-sonnet-4",
		"google/gemini-2.5-pro",
	})

	viper.SetDefault("context.window_size", 10)

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.flush_interval", 5*time.Minute)
	viper.SetDefault("storage.file.path", "data/users.json")
	viper.SetDefault("storage.redis.key", "users:snapshot")
	viper.SetDefault("storage.sqlite.path", "data/users.db")

	viper.SetDefault("payments.price_stars", 300)
	viper.SetDefault("payments.subscription_days", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.directory", "configs/i18n")
	viper.SetDefault("i18n.languages", []string{"en", "ru"})
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.OpenRouter.APIKey == "" {
		return fmt.Errorf("openrouter api key is required")
	}
	if len(cfg.Tiers.Lite.Models) == 0 {
		return fmt.Errorf("lite tier needs at least one model")
	}

	// Plus must offer everything lite does.
	plusModels := make(map[string]bool, len(cfg.Tiers.Plus.Models))
	for _, m := range cfg.Tiers.Plus.Models {
		plusModels[m] = true
	}
	for _, m := range cfg.Tiers.Lite.Models {
		if !plusModels[m] {
			return fmt.Errorf("plus tier model set must include lite model %s", m)
		}
	}
	return nil
}

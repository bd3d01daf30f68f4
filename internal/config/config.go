// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port       int           `yaml:"port"`
	Password   string        `yaml:"password"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	OpenAIKey string `yaml:"openai_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
}

type PaymentConfig struct {
	YooKassa struct {
		ShopID    string `yaml:"shop_id"`
		SecretKey string `yaml:"secret_key"`
		ReturnURL string `yaml:"return_url"`
		Port      int    `yaml:"port"` // webhook listener
	} `yaml:"yookassa"`
}

// SubscriptionConfig holds the single product's pricing and the free tier.
type SubscriptionConfig struct {
	PriceKopecks      int64  `yaml:"price_kopecks"`
	Currency          string `yaml:"currency"`
	DurationDays      int    `yaml:"duration_days"`
	FreePhotoLimit    int    `yaml:"free_photo_limit"`
	FreeQuestionLimit int    `yaml:"free_question_limit"`
}

// RenewalConfig tunes the renewal scheduler.
type RenewalConfig struct {
	Interval    time.Duration `yaml:"interval"`     // poll period
	Lookahead   time.Duration `yaml:"lookahead"`    // expiry window scanned each cycle
	MaxAttempts int           `yaml:"max_attempts"` // retry cap per subscription
	Cooldown    time.Duration `yaml:"cooldown"`     // min gap between attempts
	Backoff     time.Duration `yaml:"backoff"`      // wait after a failed cycle
}

type Config struct {
	Bot          BotConfig          `yaml:"bot"`
	Log          LogConfig          `yaml:"log"`
	Admin        AdminConfig        `yaml:"admin"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	AI           AIConfig           `yaml:"ai"`
	Payment      PaymentConfig      `yaml:"payment"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Renewal      RenewalConfig      `yaml:"renewal"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && (cfg.Payment.YooKassa.ShopID == "" || cfg.Payment.YooKassa.SecretKey == "") {
		return nil, errors.New("payment.yookassa.shop_id and secret_key are required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values with production defaults.
func (cfg *Config) ApplyDefaults() {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Subscription.PriceKopecks <= 0 {
		cfg.Subscription.PriceKopecks = 39900 // 399.00 RUB
	}
	if cfg.Subscription.Currency == "" {
		cfg.Subscription.Currency = "RUB"
	}
	if cfg.Subscription.DurationDays <= 0 {
		cfg.Subscription.DurationDays = 30
	}
	if cfg.Subscription.FreePhotoLimit <= 0 {
		cfg.Subscription.FreePhotoLimit = 5
	}
	if cfg.Subscription.FreeQuestionLimit <= 0 {
		cfg.Subscription.FreeQuestionLimit = 10
	}
	if cfg.Renewal.Interval <= 0 {
		cfg.Renewal.Interval = time.Hour
	}
	if cfg.Renewal.Lookahead <= 0 {
		cfg.Renewal.Lookahead = 24 * time.Hour
	}
	if cfg.Renewal.MaxAttempts <= 0 {
		cfg.Renewal.MaxAttempts = 3
	}
	if cfg.Renewal.Cooldown <= 0 {
		cfg.Renewal.Cooldown = 6 * time.Hour
	}
	if cfg.Renewal.Backoff <= 0 {
		cfg.Renewal.Backoff = time.Minute
	}
}

// SubscriptionDuration returns the configured access window.
func (cfg *Config) SubscriptionDuration() time.Duration {
	return time.Duration(cfg.Subscription.DurationDays) * 24 * time.Hour
}

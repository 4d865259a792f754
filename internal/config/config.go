// Package config loads settings.yaml and the environment. Tunables
// live in the file; secrets only ever come from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoProfile       = errors.New("personalization.user_profile is required when personalization is enabled")
	ErrUnknownProvider = errors.New(`ai.provider must be "deepseek" or "gemini"`)
	ErrUnknownBackend  = errors.New("store.backend must be one of: memory, file, sqlite, postgres")
	ErrUnknownChannel  = errors.New("delivery.channel must be one of: email, telegram, both")
	ErrMissingAPIKey   = errors.New("API key for the selected provider is not set")
)

type Config struct {
	// Recency window
	DaysWindow int

	// Personalization settings
	Enable        bool
	UserProfile   string
	MaxCandidates int
	TopN          int
	MaxWorkers    int

	// AI provider settings
	Provider       string // "deepseek" or "gemini"
	BatchSize      int
	RequestTimeout time.Duration
	MaxAIRequests  int // total requests per run (0 = unlimited)
	DeepSeekAPIKey string
	GeminiAPIKey   string

	// Seen store settings
	StoreBackend string // memory | file | sqlite | postgres
	StorePath    string
	DatabaseURL  string

	// Scraper settings
	ScrapeEnable      bool
	ScrapeConcurrency int
	ScrapeMaxArticles int

	// Delivery settings
	DeliveryChannel string // email | telegram | both
	TelegramToken   string
	TelegramChatID  string

	// Paths
	FeedsConfigPath string
	EmailConfigPath string
	RawDir          string
	ReportDir       string

	// App settings
	Debug bool
}

// settingsFile mirrors config/settings.yaml.
type settingsFile struct {
	HotTopics struct {
		DaysWindow int `yaml:"days_window"`
	} `yaml:"hot_topics"`
	Personalization struct {
		Enable        bool   `yaml:"enable"`
		UserProfile   string `yaml:"user_profile"`
		MaxCandidates int    `yaml:"max_candidates"`
		TopN          int    `yaml:"top_n"`
		MaxWorkers    int    `yaml:"max_workers"`
	} `yaml:"personalization"`
	AI struct {
		Provider              string `yaml:"provider"`
		BatchSize             int    `yaml:"batch_size"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		MaxRequests           int    `yaml:"max_requests"`
	} `yaml:"ai"`
	Store struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"store"`
	Scrape struct {
		Enable      bool `yaml:"enable"`
		Concurrency int  `yaml:"concurrency"`
		MaxArticles int  `yaml:"max_articles"`
	} `yaml:"scrape"`
	Delivery struct {
		Channel string `yaml:"channel"`
	} `yaml:"delivery"`
	Paths struct {
		Feeds   string `yaml:"feeds"`
		Email   string `yaml:"email"`
		RawDir  string `yaml:"raw_dir"`
		Reports string `yaml:"reports"`
	} `yaml:"paths"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg := &Config{
		// Default values
		DaysWindow:        1,
		MaxCandidates:     80,
		TopN:              10,
		MaxWorkers:        4,
		Provider:          "deepseek",
		BatchSize:         10,
		RequestTimeout:    30 * time.Second,
		StoreBackend:      "file",
		StorePath:         "data/seen_items.csv",
		ScrapeConcurrency: 3,
		ScrapeMaxArticles: 20,
		DeliveryChannel:   "email",
		FeedsConfigPath:   "config/feeds.yaml",
		EmailConfigPath:   "config/email.yaml",
		RawDir:            "data/raw",
		ReportDir:         "data/reports",
	}

	// Load from file
	if file.HotTopics.DaysWindow > 0 {
		cfg.DaysWindow = file.HotTopics.DaysWindow
	}
	cfg.Enable = file.Personalization.Enable
	cfg.UserProfile = file.Personalization.UserProfile
	if file.Personalization.MaxCandidates > 0 {
		cfg.MaxCandidates = file.Personalization.MaxCandidates
	}
	if file.Personalization.TopN > 0 {
		cfg.TopN = file.Personalization.TopN
	}
	if file.Personalization.MaxWorkers > 0 {
		cfg.MaxWorkers = file.Personalization.MaxWorkers
	}
	if file.AI.Provider != "" {
		cfg.Provider = file.AI.Provider
	}
	if file.AI.BatchSize > 0 {
		cfg.BatchSize = file.AI.BatchSize
	}
	if file.AI.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(file.AI.RequestTimeoutSeconds) * time.Second
	}
	if file.AI.MaxRequests > 0 {
		cfg.MaxAIRequests = file.AI.MaxRequests
	}
	if file.Store.Backend != "" {
		cfg.StoreBackend = file.Store.Backend
	}
	if file.Store.Path != "" {
		cfg.StorePath = file.Store.Path
	}
	cfg.ScrapeEnable = file.Scrape.Enable
	if file.Scrape.Concurrency > 0 {
		cfg.ScrapeConcurrency = file.Scrape.Concurrency
	}
	if file.Scrape.MaxArticles > 0 {
		cfg.ScrapeMaxArticles = file.Scrape.MaxArticles
	}
	if file.Delivery.Channel != "" {
		cfg.DeliveryChannel = file.Delivery.Channel
	}
	if file.Paths.Feeds != "" {
		cfg.FeedsConfigPath = file.Paths.Feeds
	}
	if file.Paths.Email != "" {
		cfg.EmailConfigPath = file.Paths.Email
	}
	if file.Paths.RawDir != "" {
		cfg.RawDir = file.Paths.RawDir
	}
	if file.Paths.Reports != "" {
		cfg.ReportDir = file.Paths.Reports
	}

	// Secrets and overrides from environment
	cfg.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("DELIVERY_CHANNEL"); v != "" {
		cfg.DeliveryChannel = v
	}
	if v := os.Getenv("TOP_N"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.TopN = val
		}
	}
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.MaxWorkers = val
		}
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("personalization.top_n must be positive, got %d", c.TopN)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("personalization.max_candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("ai.batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("personalization.max_workers must be positive, got %d", c.MaxWorkers)
	}

	if c.Provider != "deepseek" && c.Provider != "gemini" {
		return ErrUnknownProvider
	}

	switch c.StoreBackend {
	case "memory", "file", "sqlite", "postgres":
	default:
		return ErrUnknownBackend
	}

	switch c.DeliveryChannel {
	case "email", "telegram", "both":
	default:
		return ErrUnknownChannel
	}

	if c.Enable {
		if c.UserProfile == "" {
			return ErrNoProfile
		}
		if c.Provider == "deepseek" && c.DeepSeekAPIKey == "" {
			return fmt.Errorf("%w: DEEPSEEK_API_KEY", ErrMissingAPIKey)
		}
		if c.Provider == "gemini" && c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingAPIKey)
		}
	}

	if c.DeliveryChannel == "telegram" || c.DeliveryChannel == "both" {
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is required for channel %q", c.DeliveryChannel)
		}
		if c.TelegramChatID == "" {
			return fmt.Errorf("TELEGRAM_CHAT_ID is required for channel %q", c.DeliveryChannel)
		}
	}

	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	return nil
}

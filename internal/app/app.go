// Package app wires configuration, the AI provider, the seen store and
// the delivery channels into one daily pipeline run.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"campusnews/internal/config"
	"campusnews/internal/deepseek"
	"campusnews/internal/gemini"
	"campusnews/internal/logger"
	"campusnews/internal/mail"
	"campusnews/internal/metrics"
	"campusnews/internal/pipeline"
	"campusnews/internal/ratelimit"
	"campusnews/internal/rss"
	"campusnews/internal/score"
	"campusnews/internal/scraper"
	"campusnews/internal/store"
	"campusnews/internal/telegram"
	"campusnews/internal/translate"
)

// provider is what both AI backends offer: batch scoring plus title
// translation.
type provider interface {
	score.Provider
	translate.Translator
}

// Run executes one full digest run. It is called once per invocation;
// scheduling is the job's business (cron, GitHub Actions).
func Run() error {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settingsPath := os.Getenv("CONFIG_PATH")
	if settingsPath == "" {
		settingsPath = "config/settings.yaml"
	}

	cfg, err := config.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if !cfg.Enable {
		logger.Info("personalization disabled, nothing to recommend")
		return nil
	}

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		return fmt.Errorf("feeds: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no feeds configured in %s", cfg.FeedsConfigPath)
	}

	seen, err := store.Open(cfg.StoreBackend, cfg.StorePath, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("seen store: %w", err)
	}
	defer seen.Close()
	logger.Info("seen store ready", "backend", cfg.StoreBackend, "known_items", seen.Len())

	budget := ratelimit.NewBudget(0, 0, cfg.MaxAIRequests)

	ai, cleanup, err := newProvider(ctx, cfg, budget)
	if err != nil {
		return err
	}
	defer cleanup()

	deliveries, err := buildDeliveries(cfg)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Source: &rss.Source{Feeds: feeds},
		Seen:   seen,
		Scorer: score.New(ai, score.Config{
			BatchSize:      cfg.BatchSize,
			MaxWorkers:     cfg.MaxWorkers,
			RequestTimeout: cfg.RequestTimeout,
		}),
		Translator:    translate.NewStage(ai, cfg.RequestTimeout),
		Deliveries:    deliveries,
		Profile:       cfg.UserProfile,
		DaysWindow:    cfg.DaysWindow,
		MaxCandidates: cfg.MaxCandidates,
		TopN:          cfg.TopN,
		RawDir:        cfg.RawDir,
		ReportDir:     cfg.ReportDir,
	}
	if cfg.ScrapeEnable {
		p.Enricher = scraper.New(cfg.ScrapeConcurrency, cfg.ScrapeMaxArticles)
	}

	sum, err := p.Run(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		return err
	}

	metrics.Global.SetLastRun()
	budget.PrintStats()

	logger.Info("daily digest done",
		"run_id", sum.RunID,
		"ranked", sum.Ranked,
		"delivered", sum.Delivered,
		"report", sum.ReportPath,
	)
	if sum.StoreWarning != "" {
		logger.Warn("seen store not persisted, items may repeat tomorrow", "warning", sum.StoreWarning)
	}
	return nil
}

func newProvider(ctx context.Context, cfg *config.Config, budget *ratelimit.Budget) (provider, func(), error) {
	switch cfg.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, budget)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		return client, client.Close, nil
	default:
		client, err := deepseek.NewClient(cfg.DeepSeekAPIKey, budget)
		if err != nil {
			return nil, nil, fmt.Errorf("deepseek: %w", err)
		}
		return client, func() {}, nil
	}
}

func buildDeliveries(cfg *config.Config) ([]pipeline.Delivery, error) {
	var deliveries []pipeline.Delivery

	if cfg.DeliveryChannel == "email" || cfg.DeliveryChannel == "both" {
		mailCfg, err := mail.LoadConfig(cfg.EmailConfigPath)
		if err != nil {
			if cfg.DeliveryChannel == "email" {
				return nil, fmt.Errorf("email: %w", err)
			}
			logger.Warn("email not configured, continuing with telegram only", "error", err)
		} else {
			deliveries = append(deliveries, mail.NewSender(mailCfg))
		}
	}

	if cfg.DeliveryChannel == "telegram" || cfg.DeliveryChannel == "both" {
		deliveries = append(deliveries, telegram.NewSender(cfg.TelegramToken, cfg.TelegramChatID))
	}

	return deliveries, nil
}

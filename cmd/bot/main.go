package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imaginova-studio/internal/config"
	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/gemini"
	"imaginova-studio/internal/handlers"
	"imaginova-studio/internal/httpclient"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/mediagroup"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
	"imaginova-studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := config.NewLogger(cfg, os.Stdout)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	dialer := gemini.Dialer{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
		Limiter:    gemini.NewLimiter(cfg.GeminiMaxRPM),
	}

	runner := studio.New(studio.Options{
		Connect: func(ctx context.Context, apiKey string) (studio.Generator, error) {
			return dialer.Dial(ctx, apiKey)
		},
		Pacing:      cfg.Pacing,
		BackoffUnit: cfg.BackoffUnit,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})

	registry := jobs.NewRegistry(jobs.Options{
		Runner:        runner,
		Timeout:       cfg.BatchTimeout,
		Retention:     cfg.SessionTTL,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})
	defer registry.Close()

	handler := handlers.New(handlers.Options{
		Telegram:   tg,
		Runner:     runner,
		Jobs:       registry,
		Sessions:   session.NewStore(session.Options{TTL: cfg.SessionTTL}),
		ServerKeys: credential.Env{Var: "GEMINI_API_KEY", Files: []string{".env"}},
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sem := make(chan struct{}, cfg.MaxConcurrent)
	onGroupFlush := func(group mediagroup.Group) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce,
		OnFlush:  onGroupFlush,
	})
	defer aggregator.Close()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info("bot started", "username", tg.Username(), "server_key", cfg.GeminiAPIKey != "")

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

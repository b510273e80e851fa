package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imaginova-studio/internal/config"
	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/gemini"
	"imaginova-studio/internal/httpclient"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/session"
	"imaginova-studio/internal/studio"
	"imaginova-studio/internal/web"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := config.NewLogger(cfg, os.Stdout)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

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
		Timeout:       cfg.BatchTimeout,
		Retention:     cfg.SessionTTL,
		MaxConcurrent: cfg.MaxConcurrent,
		Logger:        logger,
	})
	defer registry.Close()

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	srv := web.New(web.Options{
		Runners: func(keys credential.Source) jobs.BatchRunner {
			return runner.WithKeys(keys)
		},
		Jobs:       registry,
		Sessions:   session.NewStore(session.Options{TTL: cfg.SessionTTL}),
		ServerKeys: credential.Env{Var: "GEMINI_API_KEY", Files: []string{".env"}},
		Static:     staticSub,
		Logger:     logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "server_key", cfg.GeminiAPIKey != "")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	logger.Info("shutting down")
}

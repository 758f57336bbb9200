package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/memobot-ai/memobot/internal/api"
	"github.com/memobot-ai/memobot/internal/bot"
	"github.com/memobot-ai/memobot/internal/config"
	"github.com/memobot-ai/memobot/internal/llm"
	"github.com/memobot-ai/memobot/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("starting memobot", zap.Stringer("config", cfg))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database",
			zap.Error(err),
			zap.String("db_path", cfg.DBPath))
	}

	svc, err := llm.NewOpenAI(
		cfg.OpenAIBaseURL,
		cfg.OpenAIAPIKey,
		cfg.Model,
		cfg.EmbeddingModel,
		st,
		cfg.HistoryTokens,
		cfg.QATokens,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	var notifier *api.Notifier
	if cfg.WebhookURL != "" {
		notifier = api.NewNotifier(cfg.WebhookURL, logger)
	}
	// Both surfaces go through the same asker so webhook events cover
	// Telegram turns as well as HTTP ones.
	asker := api.NewNotifyingAsker(svc, notifier)

	handler := api.NewHandler(st, asker, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	handler.RegisterRoutes(e)
	e.Static("/", "web")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TelegramEnabled() {
		tg, err := bot.New(cfg.TelegramToken, asker, logger)
		if err != nil {
			logger.Fatal("failed to initialize telegram bot", zap.Error(err))
		}
		go func() {
			if err := tg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("telegram bot stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := multierr.Append(e.Shutdown(shutdownCtx), st.Close()); err != nil {
		logger.Error("shutdown finished with errors", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"naira-wallet-bot-go/internal/api"
	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/listener"
	"naira-wallet-bot-go/internal/telegram"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Telegram.Token == "" {
		logger.Fatal("TELEGRAM_TOKEN is required")
	}
	bot, err := telegram.NewBot(cfg.Telegram)
	if err != nil {
		logger.Fatal("Failed to start telegram bot", zap.Error(err))
	}
	if cfg.Telegram.Username == "" {
		cfg.Telegram.Username = bot.Username()
	}
	output := bot.Deliver

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	dispatcher := engine.NewDispatcher(services.Engine, output)

	server := api.NewServer(api.ServerConfig{
		Port:              cfg.App.Port,
		AdminKey:          cfg.App.AdminKey,
		WebhookSecret:     cfg.App.DepositWebhookSecret,
		BusinessName:      cfg.App.BusinessName,
		GatewayConfigured: services.Gateway.Configured(),
		Production:        cfg.App.LogLevel != "debug",
	}, services.Api, services.Deriver, output)

	if cfg.Telegram.WebhookURL != "" {
		hook, err := url.Parse(cfg.Telegram.WebhookURL)
		if err != nil || hook.Path == "" || hook.Path == "/" {
			logger.Fatal("WEBHOOK_URL must include a path", zap.String("url", cfg.Telegram.WebhookURL))
		}
		server.Mount(http.MethodPost, hook.Path, bot.WebhookHandler(dispatcher))
		if err := bot.RegisterWebhook(); err != nil {
			logger.Fatal("Failed to register webhook", zap.Error(err))
		}
	}

	transfers := listener.NewTransferListener(listener.TransferListenerConfig{
		Source:          services.Api,
		Notify:          output,
		PollingInterval: 2 * time.Minute,
	})
	transfers.Start(ctx)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	if cfg.Telegram.WebhookURL == "" {
		go func() {
			if err := bot.Run(ctx, dispatcher); err != nil {
				logger.Error("Polling stopped", zap.Error(err))
				cancel()
			}
		}()
	}

	logger.Info("Wallet bot running",
		zap.String("business", cfg.App.BusinessName),
		zap.Int("port", cfg.App.Port),
		zap.Bool("webhook", cfg.Telegram.WebhookURL != ""))

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	transfers.Stop()
	if err := dispatcher.Close(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Dispatcher close failed", zap.Error(err))
	}
	logger.Info("Wallet bot stopped")
}

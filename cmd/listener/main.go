/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"
	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/listener"
	"naira-wallet-bot-go/internal/telegram"

	"go.uber.org/zap"
)

// Runs the payout status poller on its own, for deployments where the bot
// process is scaled separately.
func main() {
	interval := flag.Duration("interval", 2*time.Minute, "How often to poll pending payouts")
	concurrency := flag.Int("concurrency", 4, "Maximum parallel status checks")
	staleAfter := flag.Duration("stale-after", 30*time.Minute, "Refund withdrawals still unsubmitted after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	_, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting payout status listener")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var notify engine.Output
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram)
		if err != nil {
			zap.L().Fatal("Failed to connect to telegram", zap.Error(err))
		}
		notify = bot.Deliver
	} else {
		zap.L().Warn("TELEGRAM_TOKEN not set; users will not be notified of settled payouts")
	}

	l := listener.NewTransferListener(listener.TransferListenerConfig{
		Source:          services.Api,
		Notify:          notify,
		PollingInterval: *interval,
		Concurrency:     *concurrency,
		StaleAfter:      *staleAfter,
	})
	l.Start(ctx)

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping listener...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Listener stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}

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
	"fmt"

	"naira-wallet-bot-go/internal/api"
	"naira-wallet-bot-go/internal/common"
	"naira-wallet-bot-go/internal/config"

	"go.uber.org/zap"
)

type transferRequest struct {
	userId     string
	transferId string
	refreshAll bool
}

func parseAndValidateFlags() (*transferRequest, error) {
	userFlag := flag.String("user", "", "User id owning the transfer")
	idFlag := flag.String("id", "", "Provider transfer id to refresh")
	allFlag := flag.Bool("all", false, "Refresh every pending transfer")
	flag.Parse()

	req := &transferRequest{userId: *userFlag, transferId: *idFlag, refreshAll: *allFlag}
	if req.refreshAll && (req.userId != "" || req.transferId != "") {
		return nil, fmt.Errorf("--all cannot be combined with --user or --id")
	}
	if (req.userId == "") != (req.transferId == "") {
		return nil, fmt.Errorf("--user and --id must be given together")
	}
	return req, nil
}

func printPending(pending []api.PendingTransfer) {
	common.PrintHeader("PENDING PAYOUTS", common.DefaultWidth)
	if len(pending) == 0 {
		fmt.Println("none")
	}
	for i, p := range pending {
		fmt.Printf("%s%-12s %-22s %-16s %s\n", common.TreePrefix(i == len(pending)-1),
			p.UserId, p.TransferId, p.Reference, p.Status)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func refresh(ctx context.Context, svc *api.LedgerService, userId, transferId string) bool {
	status, err := svc.RefreshTransfer(ctx, userId, transferId)
	if err != nil {
		fmt.Printf("✗ %s: %v\n", transferId, err)
		return false
	}
	final := ""
	if api.IsFinalTransferStatus(status.Status) {
		final = " (final)"
	}
	fmt.Printf("✓ %s: %s%s %s\n", transferId, status.Status, final, status.Message)
	return true
}

func main() {
	ctx := context.Background()

	req, err := parseAndValidateFlags()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.App.LogLevel)
	defer loggerCleanup()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if req.transferId != "" {
		if !refresh(ctx, services.Api, req.userId, req.transferId) {
			logger.Fatal("Refresh failed", zap.String("transfer_id", req.transferId))
		}
		return
	}

	pending, err := services.Api.PendingTransfers(ctx)
	if err != nil {
		logger.Fatal("Failed to list pending transfers", zap.Error(err))
	}
	printPending(pending)

	if !req.refreshAll {
		return
	}
	ok := 0
	for _, p := range pending {
		if refresh(ctx, services.Api, p.UserId, p.TransferId) {
			ok++
		}
	}
	logger.Info("Refresh completed", zap.Int("pending", len(pending)), zap.Int("refreshed", ok))
}

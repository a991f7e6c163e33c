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

package listener

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/api"
	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	defaultStaleAfter  = 30 * time.Minute
)

// TransferSource is the slice of the ledger service the listener needs.
type TransferSource interface {
	PendingTransfers(ctx context.Context) ([]api.PendingTransfer, error)
	RefreshTransfer(ctx context.Context, userId, transferId string) (*models.TransferStatus, error)
}

// ReservationSweeper is implemented by sources that can refund withdrawals
// stuck before the provider accepted them.
type ReservationSweeper interface {
	SweepStaleWithdrawals(ctx context.Context, olderThan time.Duration) ([]api.ReversedWithdrawal, error)
}

type TransferListenerConfig struct {
	Source          TransferSource
	Notify          engine.Output
	PollingInterval time.Duration
	CleanupInterval time.Duration
	Concurrency     int
	StaleAfter      time.Duration
}

// TransferListener polls the payment provider for payouts that were accepted
// but not yet final, records each status change and tells the user once the
// payout settles.
type TransferListener struct {
	source TransferSource
	notify engine.Output

	// last status seen per transfer id
	seen            map[string]seenStatus
	mutex           sync.Mutex
	pollingInterval time.Duration
	cleanupInterval time.Duration
	concurrency     int
	staleAfter      time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

type seenStatus struct {
	status string
	at     time.Time
}

func NewTransferListener(cfg TransferListenerConfig) *TransferListener {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &TransferListener{
		source:          cfg.Source,
		notify:          cfg.Notify,
		seen:            make(map[string]seenStatus),
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		concurrency:     cfg.Concurrency,
		staleAfter:      cfg.StaleAfter,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

func (t *TransferListener) Start(ctx context.Context) {
	zap.L().Info("Starting transfer listener", zap.Duration("polling_interval", t.pollingInterval))
	go t.pollLoop(ctx)
}

// Stop blocks until the current poll finishes.
func (t *TransferListener) Stop() {
	zap.L().Info("Stopping transfer listener")
	close(t.stopChan)
	<-t.doneChan
	zap.L().Info("Transfer listener stopped")
}

func (t *TransferListener) pollLoop(ctx context.Context) {
	defer close(t.doneChan)

	ticker := time.NewTicker(t.pollingInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(t.cleanupInterval)
	defer cleanup.Stop()

	t.Poll(ctx)
	t.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			t.Poll(ctx)
			t.Sweep(ctx)
		case <-cleanup.C:
			t.cleanup(time.Now())
		case <-t.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll checks every pending payout once and returns how many changed status.
func (t *TransferListener) Poll(ctx context.Context) int {
	pending, err := t.source.PendingTransfers(ctx)
	if err != nil {
		zap.L().Error("Failed to list pending transfers", zap.Error(err))
		return 0
	}
	if len(pending) == 0 {
		return 0
	}
	zap.L().Debug("Polling pending transfers", zap.Int("count", len(pending)))

	var (
		changed int
		mu      sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for _, p := range pending {
		g.Go(func() error {
			ok, err := t.check(gctx, p)
			if err != nil {
				zap.L().Warn("Failed to refresh transfer",
					zap.String("user_id", p.UserId),
					zap.String("transfer_id", p.TransferId),
					zap.Error(err))
				return nil
			}
			if ok {
				mu.Lock()
				changed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return changed
}

// Sweep refunds reservations that never reached the provider and tells
// each user. It returns how many were refunded.
func (t *TransferListener) Sweep(ctx context.Context) int {
	sweeper, ok := t.source.(ReservationSweeper)
	if !ok {
		return 0
	}
	reversed, err := sweeper.SweepStaleWithdrawals(ctx, t.staleAfter)
	if err != nil {
		zap.L().Error("Failed to sweep stale withdrawals", zap.Error(err))
		return 0
	}
	for _, r := range reversed {
		zap.L().Warn("Stale withdrawal refunded",
			zap.String("user_id", r.UserId),
			zap.String("reference", r.Reference),
			zap.String("amount", r.Amount.String()))
		if t.notify != nil && r.ChatId != 0 {
			t.notify(ctx, []engine.Effect{engine.SendText{
				ChatId:   r.ChatId,
				Text:     reversalMessage(r),
				Markdown: true,
			}})
		}
	}
	return len(reversed)
}

func (t *TransferListener) check(ctx context.Context, p api.PendingTransfer) (bool, error) {
	status, err := t.source.RefreshTransfer(ctx, p.UserId, p.TransferId)
	if err != nil {
		return false, err
	}
	current := strings.ToUpper(status.Status)
	if current == "" || current == strings.ToUpper(p.Status) || !t.record(p.TransferId, current) {
		return false, nil
	}

	if api.IsFinalTransferStatus(current) && t.notify != nil && p.ChatId != 0 {
		t.notify(ctx, []engine.Effect{engine.SendText{
			ChatId:   p.ChatId,
			Text:     settlementMessage(p, status),
			Markdown: true,
		}})
	}
	return true, nil
}

// record stores status and reports whether it differs from the last one seen.
func (t *TransferListener) record(transferId, status string) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if prev, ok := t.seen[transferId]; ok && prev.status == status {
		return false
	}
	t.seen[transferId] = seenStatus{status: status, at: time.Now()}
	return true
}

func (t *TransferListener) cleanup(now time.Time) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	cutoff := now.Add(-24 * time.Hour)
	for id, s := range t.seen {
		if s.at.Before(cutoff) {
			delete(t.seen, id)
		}
	}
}

func settlementMessage(p api.PendingTransfer, status *models.TransferStatus) string {
	if strings.EqualFold(status.Status, "SUCCESSFUL") {
		return fmt.Sprintf("✅ *Withdrawal Paid*\n\nReference: `%s`\nYour bank transfer has been completed.", p.Reference)
	}
	return fmt.Sprintf("⚠️ *Withdrawal Update*\n\nReference: `%s`\nStatus: %s\n\nPlease contact support with this reference.",
		p.Reference, strings.ToUpper(status.Status))
}

func reversalMessage(r api.ReversedWithdrawal) string {
	return fmt.Sprintf("↩️ *Withdrawal Reversed*\n\nReference: `%s`\n₦%s has been returned to your wallet.\nBalance: ₦%s",
		r.Reference, r.Amount.StringFixed(2), r.Balance.StringFixed(2))
}

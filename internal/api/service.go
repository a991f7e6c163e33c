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

package api

import (
	"context"
	"fmt"

	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/ledger"
)

// LedgerService is the read/ops surface shared by the HTTP server, the
// transfer poller and the command line tools.
type LedgerService struct {
	ledger  *ledger.Ledger
	engine  *engine.Engine
	rates   engine.RateProvider
	gateway engine.PaymentGateway
}

func NewLedgerService(l *ledger.Ledger, e *engine.Engine, rates engine.RateProvider, gateway engine.PaymentGateway) *LedgerService {
	return &LedgerService{
		ledger:  l,
		engine:  e,
		rates:   rates,
		gateway: gateway,
	}
}

// HealthCheck reads every account and returns how many there are.
func (s *LedgerService) HealthCheck(ctx context.Context) (int, error) {
	accounts, err := s.ledger.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("store health check failed: %w", err)
	}
	return len(accounts), nil
}

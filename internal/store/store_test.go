package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

func newAccount(userId string) *models.Account {
	return &models.Account{
		UserId:       userId,
		ReferralCode: "AERO" + userId,
		Balances: map[models.Asset]decimal.Decimal{
			models.AssetNGN: decimal.NewFromInt(1000),
		},
		DepositAddresses: map[models.Asset]string{
			models.AssetETH: "0xabc",
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateAccount(ctx, newAccount("1")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := s.CreateAccount(ctx, newAccount("1")); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}

	acct, err := s.GetAccount(ctx, "1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if acct.Version != 1 {
		t.Errorf("expected version 1, got %d", acct.Version)
	}

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	byCode, err := s.FindAccountByReferralCode(ctx, "AERO1")
	if err != nil || byCode.UserId != "1" {
		t.Errorf("referral lookup failed: %v", err)
	}
}

func TestMemoryStore_UpdateIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateAccount(ctx, newAccount("1")); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.UpdateAccount(ctx, "1", func(a *models.Account) error {
		a.Balances[models.AssetNGN] = decimal.NewFromInt(5)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	acct, _ := s.GetAccount(ctx, "1")
	if !acct.Balance(models.AssetNGN).Equal(decimal.NewFromInt(1000)) {
		t.Errorf("failed update leaked: balance %s", acct.Balance(models.AssetNGN))
	}

	updated, err := s.UpdateAccount(ctx, "1", func(a *models.Account) error {
		a.Balances[models.AssetNGN] = decimal.NewFromInt(900)
		a.Transactions = append(a.Transactions, models.Transaction{Id: "t1", Kind: models.KindWithdrawal})
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newAccount("1"))

	acct, _ := s.GetAccount(ctx, "1")
	acct.Balances[models.AssetNGN] = decimal.Zero

	again, _ := s.GetAccount(ctx, "1")
	if again.Balance(models.AssetNGN).IsZero() {
		t.Error("mutating a returned account changed the stored record")
	}
}

func TestCheckMutation(t *testing.T) {
	base := newAccount("1")
	base.Transactions = []models.Transaction{{Id: "t1", Kind: models.KindDeposit, Amount: decimal.NewFromInt(10), Status: models.StatusPending}}

	tests := []struct {
		name    string
		mutate  func(a *models.Account)
		wantErr bool
	}{
		{"append entry", func(a *models.Account) {
			a.Transactions = append(a.Transactions, models.Transaction{Id: "t2"})
		}, false},
		{"refine status", func(a *models.Account) {
			a.Transactions[0].Status = models.StatusConfirmed
		}, false},
		{"negative balance", func(a *models.Account) {
			a.Balances[models.AssetNGN] = decimal.NewFromInt(-1)
		}, true},
		{"drop entry", func(a *models.Account) {
			a.Transactions = nil
		}, true},
		{"edit amount", func(a *models.Account) {
			a.Transactions[0].Amount = decimal.NewFromInt(11)
		}, true},
		{"change address", func(a *models.Account) {
			a.DepositAddresses[models.AssetETH] = "0xdef"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := base.Clone()
			tt.mutate(after)
			err := CheckMutation(base, after)
			if tt.wantErr && !errors.Is(err, ErrInvariantViolation) {
				t.Errorf("expected invariant violation, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"naira-wallet-bot-go/internal/models"
)

// Compile-time check: *MemoryStore must satisfy AccountStore.
var _ AccountStore = (*MemoryStore)(nil)

// MemoryStore keeps accounts in process memory. Updates use clone, mutate,
// validate, swap so a failed MutateFunc leaves the stored record untouched.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	byCode   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*models.Account),
		byCode:   make(map[string]string),
	}
}

func (m *MemoryStore) GetAccount(_ context.Context, userId string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[userId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userId)
	}
	return acct.Clone(), nil
}

func (m *MemoryStore) CreateAccount(_ context.Context, acct *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[acct.UserId]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, acct.UserId)
	}
	if acct.ReferralCode != "" {
		if _, taken := m.byCode[acct.ReferralCode]; taken {
			return fmt.Errorf("%w: referral code %s", ErrAccountExists, acct.ReferralCode)
		}
	}
	if err := CheckMutation(&models.Account{}, acct); err != nil {
		return err
	}

	stored := acct.Clone()
	stored.Version = 1
	m.accounts[acct.UserId] = stored
	if acct.ReferralCode != "" {
		m.byCode[acct.ReferralCode] = acct.UserId
	}
	acct.Version = 1
	return nil
}

func (m *MemoryStore) UpdateAccount(_ context.Context, userId string, fn MutateFunc) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.accounts[userId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userId)
	}

	draft := current.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	if draft.UserId != userId {
		return nil, fmt.Errorf("%w: user id changed", ErrInvariantViolation)
	}
	if err := CheckMutation(current, draft); err != nil {
		return nil, err
	}

	draft.Version = current.Version + 1
	m.accounts[userId] = draft
	return draft.Clone(), nil
}

func (m *MemoryStore) FindAccountByReferralCode(_ context.Context, code string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userId, ok := m.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: referral code %s", ErrAccountNotFound, code)
	}
	return m.accounts[userId].Clone(), nil
}

func (m *MemoryStore) ListAccounts(_ context.Context) ([]*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		out = append(out, acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes an account. Used by operators and tests to expire sessions.
func (m *MemoryStore) Delete(userId string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.accounts[userId]; ok {
		delete(m.byCode, acct.ReferralCode)
		delete(m.accounts, userId)
	}
}

func (m *MemoryStore) Close() {}

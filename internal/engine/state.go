package engine

import (
	"sync"

	"naira-wallet-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Step is the position of a flow in its state machine.
type Step int

const (
	StepNone Step = iota
	StepAwaitingAmount
	StepAwaitingConfirmation
	StepAwaitingBankSelection
	StepAwaitingAccountNumber
	StepAwaitingAccountName
)

func (s Step) String() string {
	switch s {
	case StepAwaitingAmount:
		return "awaiting_amount"
	case StepAwaitingConfirmation:
		return "awaiting_confirmation"
	case StepAwaitingBankSelection:
		return "awaiting_bank_selection"
	case StepAwaitingAccountNumber:
		return "awaiting_account_number"
	case StepAwaitingAccountName:
		return "awaiting_account_name"
	default:
		return "none"
	}
}

// withdrawFlow covers both the crypto sale (asset is crypto, proceeds in
// NGN) and the bank payout (asset is NGN).
type withdrawFlow struct {
	step       Step
	asset      models.Asset
	amount     decimal.Decimal
	fee        decimal.Decimal
	net        decimal.Decimal
	ngnAmount  decimal.Decimal
	rate       decimal.Decimal
	submitting bool
	nonce      string
}

func (f *withdrawFlow) bank() bool {
	return f.asset.IsFiat()
}

type swapFlow struct {
	step       Step
	from       models.Asset
	to         models.Asset
	amount     decimal.Decimal
	received   decimal.Decimal
	fee        decimal.Decimal
	rate       decimal.Decimal
	submitting bool
	nonce      string
}

type bankFlow struct {
	step          Step
	bankCode      string
	bankName      string
	accountNumber string
	accountName   string
	submitting    bool
	nonce         string
}

// session is the per-user lock plus the three flow slots. Handlers run with
// mu held and release it only around provider calls.
type session struct {
	mu       sync.Mutex
	withdraw *withdrawFlow
	swap     *swapFlow
	bank     *bankFlow
}

func (s *session) active() bool {
	return s.withdraw != nil || s.swap != nil || s.bank != nil
}

func (s *session) busy() bool {
	return (s.withdraw != nil && s.withdraw.submitting) ||
		(s.swap != nil && s.swap.submitting) ||
		(s.bank != nil && s.bank.submitting)
}

// payoutInFlight is true once a bank withdrawal was confirmed and until it
// settles. Cancelling is refused in that window.
func (s *session) payoutInFlight() bool {
	return s.withdraw != nil && s.withdraw.bank() && s.withdraw.submitting
}

func (s *session) clear() {
	s.withdraw = nil
	s.swap = nil
	s.bank = nil
}

// unlocked runs fn with the session lock released.
func (s *session) unlocked(fn func()) {
	s.mu.Unlock()
	defer s.mu.Lock()
	fn()
}

// State is a read-only view of a user's flows.
type State struct {
	Withdraw   Step
	Swap       Step
	Bank       Step
	Submitting bool
}

func (e *Engine) session(userId string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userId]
	if !ok {
		s = &session{}
		e.sessions[userId] = s
	}
	return s
}

// State reports the current flow steps of userId.
func (e *Engine) State(userId string) State {
	s := e.session(userId)
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	if s.withdraw != nil {
		st.Withdraw = s.withdraw.step
	}
	if s.swap != nil {
		st.Swap = s.swap.step
	}
	if s.bank != nil {
		st.Bank = s.bank.step
	}
	st.Submitting = s.busy()
	return st
}

func newNonce() string {
	return uuid.NewString()
}

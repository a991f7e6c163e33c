package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"naira-wallet-bot-go/internal/api"
	"naira-wallet-bot-go/internal/engine"
	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	pending  []api.PendingTransfer
	statuses map[string]string
	calls    int
}

func (f *fakeSource) PendingTransfers(context.Context) ([]api.PendingTransfer, error) {
	return f.pending, nil
}

func (f *fakeSource) RefreshTransfer(_ context.Context, _ string, transferId string) (*models.TransferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	status, ok := f.statuses[transferId]
	if !ok {
		return nil, errors.New("not found")
	}
	return &models.TransferStatus{TransferId: transferId, Status: status}, nil
}

type sink struct {
	mu      sync.Mutex
	effects []engine.Effect
}

func (s *sink) output(_ context.Context, effects []engine.Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.effects = append(s.effects, effects...)
}

func TestPoll_NotifiesOnFinalStatus(t *testing.T) {
	src := &fakeSource{
		pending: []api.PendingTransfer{
			{UserId: "1", ChatId: 11, TransferId: "T1", Reference: "AERO1", Status: models.StatusProcessing},
			{UserId: "2", ChatId: 22, TransferId: "T2", Reference: "AERO2", Status: models.StatusProcessing},
			{UserId: "3", ChatId: 33, TransferId: "T3", Reference: "AERO3", Status: models.StatusProcessing},
			{UserId: "4", ChatId: 44, TransferId: "T4", Reference: "AERO4", Status: models.StatusProcessing},
		},
		statuses: map[string]string{"T1": "SUCCESSFUL", "T2": "FAILED", "T3": "PENDING"},
	}
	out := &sink{}
	l := NewTransferListener(TransferListenerConfig{Source: src, Notify: out.output})

	changed := l.Poll(context.Background())
	assert.Equal(t, 3, changed)
	assert.Equal(t, 4, src.calls)

	require.Len(t, out.effects, 2)
	texts := map[int64]string{}
	for _, e := range out.effects {
		msg := e.(engine.SendText)
		texts[msg.ChatId] = msg.Text
	}
	assert.Contains(t, texts[11], "Withdrawal Paid")
	assert.Contains(t, texts[22], "FAILED")
	assert.Contains(t, texts[22], "AERO2")
}

func TestPoll_SameStatusReportedOnce(t *testing.T) {
	src := &fakeSource{
		pending:  []api.PendingTransfer{{UserId: "1", ChatId: 11, TransferId: "T1", Status: models.StatusProcessing}},
		statuses: map[string]string{"T1": "SUCCESSFUL"},
	}
	out := &sink{}
	l := NewTransferListener(TransferListenerConfig{Source: src, Notify: out.output})

	assert.Equal(t, 1, l.Poll(context.Background()))
	assert.Equal(t, 0, l.Poll(context.Background()))
	assert.Len(t, out.effects, 1)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	l := NewTransferListener(TransferListenerConfig{Source: src})
	l.Start(context.Background())
	l.Stop()
}

type sweepingSource struct {
	fakeSource
	reversed  []api.ReversedWithdrawal
	olderThan time.Duration
}

func (s *sweepingSource) SweepStaleWithdrawals(_ context.Context, olderThan time.Duration) ([]api.ReversedWithdrawal, error) {
	s.olderThan = olderThan
	out := s.reversed
	s.reversed = nil
	return out, nil
}

func TestSweep_NotifiesReversedWithdrawals(t *testing.T) {
	src := &sweepingSource{reversed: []api.ReversedWithdrawal{{
		UserId:    "1",
		ChatId:    11,
		Reference: "AERO7",
		Amount:    decimal.NewFromInt(10000),
		Balance:   decimal.NewFromInt(25000),
	}}}
	out := &sink{}
	l := NewTransferListener(TransferListenerConfig{Source: src, Notify: out.output})

	assert.Equal(t, 1, l.Sweep(context.Background()))
	assert.Equal(t, defaultStaleAfter, src.olderThan)
	require.Len(t, out.effects, 1)
	msg := out.effects[0].(engine.SendText)
	assert.Equal(t, int64(11), msg.ChatId)
	assert.Contains(t, msg.Text, "Withdrawal Reversed")
	assert.Contains(t, msg.Text, "AERO7")
	assert.Contains(t, msg.Text, "10000.00")

	assert.Equal(t, 0, l.Sweep(context.Background()))
	assert.Len(t, out.effects, 1)
}

func TestSweep_SourceWithoutSweeper(t *testing.T) {
	l := NewTransferListener(TransferListenerConfig{Source: &fakeSource{}})
	assert.Equal(t, 0, l.Sweep(context.Background()))
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"naira-wallet-bot-go/internal/ledger"
	"naira-wallet-bot-go/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ ledger.Sink = (*Publisher)(nil)

// TransactionEvent is the payload published for every committed wallet entry.
type TransactionEvent struct {
	UserId        string          `json:"user_id"`
	EntryId       string          `json:"entry_id"`
	Kind          string          `json:"kind"`
	Asset         models.Asset    `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	CounterAsset  models.Asset    `json:"counter_asset,omitempty"`
	CounterAmount decimal.Decimal `json:"counter_amount"`
	Fee           decimal.Decimal `json:"fee"`
	Status        string          `json:"status"`
	ExternalId    string          `json:"external_id,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher pushes wallet entries to NATS so other services (notifications,
// analytics) can follow the ledger without reading its store.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

func NewPublisher(cfg models.NatsConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("naira-wallet-bot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zap.L().Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	zap.L().Info("NATS publisher connected",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("subject_prefix", cfg.SubjectPrefix))
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(cfg.SubjectPrefix, ".")}, nil
}

// Publish sends tx on <prefix>.<kind>. Status refinements are published
// again under the same entry id.
func (p *Publisher) Publish(_ context.Context, userId string, tx models.Transaction) error {
	data, err := encode(userId, tx)
	if err != nil {
		return err
	}
	subject := subjectFor(p.prefix, tx.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		zap.L().Warn("Failed to drain NATS connection", zap.Error(err))
		p.conn.Close()
	}
}

func subjectFor(prefix, kind string) string {
	if kind == "" {
		kind = "unknown"
	}
	if prefix == "" {
		return kind
	}
	return prefix + "." + kind
}

func encode(userId string, tx models.Transaction) ([]byte, error) {
	return json.Marshal(TransactionEvent{
		UserId:        userId,
		EntryId:       tx.Id,
		Kind:          tx.Kind,
		Asset:         tx.Asset,
		Amount:        tx.Amount,
		CounterAsset:  tx.CounterAsset,
		CounterAmount: tx.CounterAmount,
		Fee:           tx.Fee,
		Status:        tx.Status,
		ExternalId:    tx.ExternalId,
		Reference:     tx.Reference,
		OccurredAt:    tx.CreatedAt,
	})
}

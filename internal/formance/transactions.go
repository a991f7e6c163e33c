package formance

import (
	"context"
	"fmt"
	"strings"

	"naira-wallet-bot-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Numscript templates. Metadata is set inside the script so each mirrored
// transaction is self-describing.

const numscriptDeposit = `vars {
  asset $asset
  number $amount
  account $user
  string $entry_id
  string $tx_hash
  string $network
}

send [$asset $amount] (
  source = @world
  destination = $user
)

set_tx_meta("event_type", "deposit")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("network", $network)
`

const numscriptBonus = `vars {
  asset $asset
  number $amount
  account $user
  string $entry_id
  string $reference
}

send [$asset $amount] (
  source = @platform:rewards allowing unbounded overdraft
  destination = $user
)

set_tx_meta("event_type", "bonus")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference", $reference)
`

const numscriptWithdrawalReserved = `vars {
  asset $asset
  number $amount
  account $user
  string $entry_id
  string $reference
}

send [$asset $amount] (
  source = $user
  destination = @payouts:pending
)

set_tx_meta("event_type", "withdrawal_reserved")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("withdrawal_ref", $reference)
`

const numscriptWithdrawalSettled = `vars {
  asset $asset
  number $amount
  string $entry_id
  string $reference
  string $transfer_id
}

send [$asset $amount] (
  source = @payouts:pending
  destination = @world
)

set_tx_meta("event_type", "withdrawal_settled")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("withdrawal_ref", $reference)
set_tx_meta("transfer_id", $transfer_id)
`

const numscriptReversal = `vars {
  asset $asset
  number $amount
  account $user
  string $entry_id
  string $reference
}

send [$asset $amount] (
  source = @payouts:pending allowing unbounded overdraft
  destination = $user
)

set_tx_meta("event_type", "withdrawal_reversed")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("withdrawal_ref", $reference)
`

// numscriptExchange covers swaps and crypto sales: the source asset goes to
// the exchange desk and the desk pays out the counter asset.
const numscriptExchange = `vars {
  asset $asset
  number $amount
  asset $counter_asset
  number $counter_amount
  account $user
  string $entry_id
  string $kind
  string $rate
}

send [$asset $amount] (
  source = $user
  destination = @platform:exchange
)

send [$counter_asset $counter_amount] (
  source = @platform:exchange allowing unbounded overdraft
  destination = $user
)

set_tx_meta("event_type", $kind)
set_tx_meta("entry_id", $entry_id)
set_tx_meta("rate", $rate)
`

// posting is one Formance transaction derived from a wallet entry.
type posting struct {
	reference string
	script    string
	vars      map[string]string
}

// settledStatuses are provider statuses meaning the payout left the pending
// account for good.
var settledStatuses = map[string]bool{
	"SUCCESSFUL": true,
	"SUCCESS":    true,
	"COMPLETED":  true,
}

// postingsFor maps a wallet entry to mirror postings. Each posting carries a
// reference derived from the entry id, so publishing the same entry again
// (e.g. after a status refinement) is idempotent.
func postingsFor(userId string, tx models.Transaction) ([]posting, error) {
	base := map[string]string{
		"asset":    formanceAsset(tx.Asset),
		"amount":   smallestUnit(tx.Amount, tx.Asset),
		"entry_id": tx.Id,
	}
	with := func(extra map[string]string) map[string]string {
		vars := make(map[string]string, len(base)+len(extra))
		for k, v := range base {
			vars[k] = v
		}
		for k, v := range extra {
			vars[k] = v
		}
		return vars
	}

	switch tx.Kind {
	case models.KindDeposit:
		return []posting{{
			reference: tx.Id,
			script:    numscriptDeposit,
			vars: with(map[string]string{
				"user":    userAccount(userId),
				"tx_hash": tx.ExternalId,
				"network": tx.Network,
			}),
		}}, nil

	case models.KindBonus:
		return []posting{{
			reference: tx.Id,
			script:    numscriptBonus,
			vars:      with(map[string]string{"user": userAccount(userId), "reference": tx.Reference}),
		}}, nil

	case models.KindWithdrawal:
		out := []posting{{
			reference: tx.Id,
			script:    numscriptWithdrawalReserved,
			vars:      with(map[string]string{"user": userAccount(userId), "reference": tx.Reference}),
		}}
		if settledStatuses[strings.ToUpper(tx.Status)] {
			out = append(out, posting{
				reference: tx.Id + "-settled",
				script:    numscriptWithdrawalSettled,
				vars:      with(map[string]string{"reference": tx.Reference, "transfer_id": tx.ExternalId}),
			})
		}
		return out, nil

	case models.KindReversal:
		return []posting{{
			reference: tx.Id,
			script:    numscriptReversal,
			vars:      with(map[string]string{"user": userAccount(userId), "reference": tx.Reference}),
		}}, nil

	case models.KindSwap, models.KindCryptoSale:
		return []posting{{
			reference: tx.Id,
			script:    numscriptExchange,
			vars: with(map[string]string{
				"user":           userAccount(userId),
				"counter_asset":  formanceAsset(tx.CounterAsset),
				"counter_amount": smallestUnit(tx.CounterAmount, tx.CounterAsset),
				"kind":           tx.Kind,
				"rate":           tx.Rate.String(),
			}),
		}}, nil
	}
	return nil, fmt.Errorf("no mirror posting for entry kind %q", tx.Kind)
}

// Publish mirrors one wallet entry. Duplicate references are success.
func (s *Service) Publish(ctx context.Context, userId string, tx models.Transaction) error {
	postings, err := postingsFor(userId, tx)
	if err != nil {
		return err
	}

	for _, p := range postings {
		postTx := shared.V2PostTransaction{
			Reference: strPtr(p.reference),
			Timestamp: &tx.CreatedAt,
			Script: &shared.V2PostTransactionScript{
				Plain: p.script,
				Vars:  p.vars,
			},
		}
		_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
			Ledger:            s.ledger,
			V2PostTransaction: postTx,
		})
		if err != nil {
			if isConflictError(err) {
				continue
			}
			return fmt.Errorf("error mirroring %s entry %s: %w", tx.Kind, tx.Id, err)
		}

		zap.L().Debug("Entry mirrored to Formance",
			zap.String("user_id", userId),
			zap.String("kind", tx.Kind),
			zap.String("reference", p.reference),
			zap.String("asset", string(tx.Asset)),
			zap.String("amount", tx.Amount.String()))
	}
	return nil
}

// smallestUnit converts a wallet amount to the mirror's integer notation.
func smallestUnit(amount decimal.Decimal, asset models.Asset) string {
	return amount.Shift(int32(precisionFor(string(asset)))).Truncate(0).BigInt().String()
}

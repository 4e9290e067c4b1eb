package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxStatus is the observed state of a transaction on chain.
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSuccess TxStatus = "success"
	TxFailed  TxStatus = "failed"
	TxUnknown TxStatus = "unknown"
)

// ReceiptReader fetches transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Outcome is the result of waiting for a receipt.
type Outcome struct {
	Status      TxStatus
	BlockNumber uint64
	GasUsed     uint64
	Attempts    int
}

// Poller waits for receipts with a fixed attempt budget.
type Poller struct {
	Reader   ReceiptReader
	Attempts int
	Interval time.Duration
}

// DefaultPollAttempts and DefaultPollInterval bound a wait to about a minute.
const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 2 * time.Second
)

// Wait polls until a receipt is found, the attempts run out or ctx is done.
// It never blocks longer than Attempts*Interval and reports TxUnknown when
// no receipt was seen.
func (p *Poller) Wait(ctx context.Context, hash common.Hash) Outcome {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			return Outcome{Status: TxUnknown, Attempts: i - 1}
		case <-timer.C:
		}

		receipt, err := p.Reader.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			out := FromReceipt(receipt)
			out.Attempts = i
			return out
		}
		// not mined yet, or a transient RPC error; keep polling

		timer.Reset(interval)
	}
	return Outcome{Status: TxUnknown, Attempts: attempts}
}

// FromReceipt translates a receipt into an Outcome.
func FromReceipt(r *types.Receipt) Outcome {
	out := Outcome{Status: TxFailed, GasUsed: r.GasUsed}
	if r.Status == types.ReceiptStatusSuccessful {
		out.Status = TxSuccess
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// IsNotFound reports whether err means the transaction is not mined yet.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}

package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/metrics"
	"github.com/yolodolo42/chatchain/internal/store"
)

const (
	sendTimeout = 20 * time.Second
	// logWriteWarning is returned when the chain accepted a transaction but
	// the intent log could not be updated.
	logWriteWarning = "The transaction was sent but its intent log could not be updated."
)

// SendRequest confirms a recorded intent. TxHash reports a transaction the
// wallet already broadcast; SignedTx is a raw signed transaction to
// broadcast. With neither, the relayer signs.
type SendRequest struct {
	IntentID string
	TxHash   string
	SignedTx string
}

// ExecuteRequest broadcasts a wallet-signed transaction that is not tied to
// a recorded intent.
type ExecuteRequest struct {
	To            string
	Data          string
	WalletAddress string
	SignedTx      string
}

// Submission reports a transaction handed to the chain.
type Submission struct {
	IntentID string
	TxHash   common.Hash
	Status   store.Status
	Method   string
	Warning  string
}

// SendForIntent moves a pending intent to submitted and starts tracking its
// receipt in the background.
func (a *Agent) SendForIntent(ctx context.Context, req SendRequest) (*Submission, error) {
	// The claim is taken before reading the log so a caller that finished
	// first has already written submitted.
	if _, busy := a.claims.LoadOrStore(req.IntentID, struct{}{}); busy {
		return nil, fmt.Errorf("%w: intent %s is being sent", ErrAlreadyProcessed, req.IntentID)
	}
	defer a.claims.Delete(req.IntentID)

	entry, err := a.store.GetIntentLog(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if entry.Status != store.StatusPending {
		return nil, fmt.Errorf("%w: intent %s is %s", ErrAlreadyProcessed, entry.ID, entry.Status)
	}

	var (
		hash   common.Hash
		method string
	)
	switch {
	case req.TxHash != "":
		if hash, err = parseHash(req.TxHash); err != nil {
			return nil, err
		}
		method = metrics.MethodReported

	case req.SignedTx != "":
		signed, err := decodeSignedTx(req.SignedTx)
		if err != nil {
			return nil, err
		}
		if signed.To() == nil || !strings.EqualFold(signed.To().Hex(), entry.ContractAddress) {
			return nil, fmt.Errorf("%w: destination differs from %s", ErrTxMismatch, entry.ContractAddress)
		}
		if err := a.broadcast(ctx, signed); err != nil {
			return nil, err
		}
		hash = signed.Hash()
		method = metrics.MethodSigned

	case a.relayer != nil:
		// The relayer is the sender, so it is also the calldata recipient.
		prepared, err := a.mapper.Map(entry.Intent, a.relayer.Address())
		if err != nil {
			return nil, fmt.Errorf("rebuild intent %s: %w", entry.ID, err)
		}
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		hash, err = a.relayer.Send(sendCtx, prepared)
		cancel()
		if err != nil {
			return nil, a.chainError(err)
		}
		method = metrics.MethodRelayed

	default:
		return nil, ErrNoSigner
	}

	metrics.TransactionsSubmitted.WithLabelValues(method).Inc()
	out := &Submission{
		IntentID: entry.ID,
		TxHash:   hash,
		Status:   store.StatusSubmitted,
		Method:   method,
	}

	hashHex := hash.Hex()
	pending, submitted := store.StatusPending, store.StatusSubmitted
	patch := store.IntentLogPatch{ExpectStatus: &pending, TxHash: &hashHex, Status: &submitted}
	if _, err := a.store.UpdateIntentLog(ctx, entry.ID, patch); err != nil {
		a.logger.Warn("failed to mark intent submitted", "intent_id", entry.ID, "tx_hash", hashHex, "error", err)
		out.Warning = logWriteWarning
	}

	a.logger.Info("transaction submitted", "intent_id", entry.ID, "tx_hash", hashHex, "method", method)
	a.track(hash, entry.ID)
	return out, nil
}

// Execute broadcasts a raw signed transaction after checking it matches the
// declared destination, calldata and sender.
func (a *Agent) Execute(ctx context.Context, req ExecuteRequest) (*Submission, error) {
	to, err := parseAddress("to", req.To)
	if err != nil {
		return nil, err
	}
	data, err := parseHex("data", req.Data)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress("walletAddress", req.WalletAddress)
	if err != nil {
		return nil, err
	}
	signed, err := decodeSignedTx(req.SignedTx)
	if err != nil {
		return nil, err
	}

	if to != (common.Address{}) && (signed.To() == nil || *signed.To() != to) {
		return nil, fmt.Errorf("%w: destination", ErrTxMismatch)
	}
	if data != nil && !bytes.Equal(signed.Data(), data) {
		return nil, fmt.Errorf("%w: calldata", ErrTxMismatch)
	}
	if signed.ChainId().Sign() != 0 && signed.ChainId().Cmp(a.network.ChainID) != 0 {
		return nil, a.chainError(fmt.Errorf("chain id mismatch: signed for %s, expected %s", signed.ChainId(), a.network.ChainID))
	}
	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidInput, err)
	}
	if wallet != (common.Address{}) && sender != wallet {
		return nil, fmt.Errorf("%w: signed by %s", ErrTxMismatch, sender.Hex())
	}

	if err := a.broadcast(ctx, signed); err != nil {
		return nil, err
	}
	metrics.TransactionsSubmitted.WithLabelValues(metrics.MethodSigned).Inc()
	a.logger.Info("transaction executed", "tx_hash", signed.Hash().Hex(), "from", sender.Hex())
	a.track(signed.Hash(), "")

	return &Submission{
		TxHash: signed.Hash(),
		Status: store.StatusSubmitted,
		Method: metrics.MethodSigned,
	}, nil
}

func (a *Agent) broadcast(ctx context.Context, signed *types.Transaction) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := a.backend.SendTransaction(sendCtx, signed); err != nil {
		return a.chainError(fmt.Errorf("send transaction: %w", err))
	}
	return nil
}

func (a *Agent) chainError(err error) error {
	return &ChainError{Err: err, Remediation: chain.Remediation(err, a.network)}
}

func decodeSignedTx(raw string) (*types.Transaction, error) {
	b, err := parseHex("signedTx", raw)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: signed transaction is empty", ErrInvalidInput)
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: decode signed transaction: %v", ErrInvalidInput, err)
	}
	return signed, nil
}

// track polls for hash's receipt in the background and writes the outcome to
// the intent log. Failures are logged, never surfaced.
func (a *Agent) track(hash common.Hash, intentID string) {
	budget := time.Duration(a.pollAttempts)*a.pollInterval + sendTimeout
	poller := &chain.Poller{Reader: a.backend, Attempts: a.pollAttempts, Interval: a.pollInterval}

	a.tracking.Add(1)
	metrics.PendingReceipts.Inc()
	go func() {
		defer a.tracking.Done()
		defer metrics.PendingReceipts.Dec()

		ctx, cancel := context.WithTimeout(a.stopCtx, budget)
		defer cancel()

		outcome := poller.Wait(ctx, hash)
		metrics.ReceiptOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		logger := a.logger.With("tx_hash", hash.Hex(), "intent_id", intentID)
		logger.Info("receipt polling finished", "status", outcome.Status, "attempts", outcome.Attempts)

		if intentID == "" {
			return
		}
		// writes must survive Close cancelling ctx
		if err := a.recordOutcome(context.WithoutCancel(ctx), intentID, outcome); err != nil {
			logger.Warn("failed to record receipt", "error", err)
		}
	}()
}

func (a *Agent) recordOutcome(ctx context.Context, intentID string, outcome chain.Outcome) error {
	var status store.Status
	switch outcome.Status {
	case chain.TxSuccess:
		status = store.StatusSuccess
	case chain.TxFailed:
		status = store.StatusFailed
	default:
		return nil
	}
	block, gas := outcome.BlockNumber, outcome.GasUsed
	_, err := a.store.UpdateIntentLog(ctx, intentID, store.IntentLogPatch{
		Status:      &status,
		BlockNumber: &block,
		GasUsed:     &gas,
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	return err
}

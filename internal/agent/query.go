package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/store"
)

// TxStatusView is the best known state of a transaction.
type TxStatusView struct {
	Hash        string
	Status      chain.TxStatus
	BlockNumber *uint64
	GasUsed     *uint64
	IntentID    string
	Timestamp   time.Time
}

// TxStatus asks the chain for hash's receipt, falling back to the intent log
// when the chain has nothing. A receipt that the log has not seen yet is
// written back.
func (a *Agent) TxStatus(ctx context.Context, hashHex string) (*TxStatusView, error) {
	hash, err := parseHash(hashHex)
	if err != nil {
		return nil, err
	}
	view := &TxStatusView{Hash: hash.Hex(), Timestamp: a.now()}

	entry, logErr := a.store.FindIntentLogByTxHash(ctx, hash.Hex())
	if logErr != nil && !errors.Is(logErr, store.ErrNotFound) {
		return nil, logErr
	}
	known := logErr == nil
	if known {
		view.IntentID = entry.ID
	}

	receipt, rpcErr := a.backend.TransactionReceipt(ctx, hash)
	if rpcErr == nil && receipt != nil {
		outcome := chain.FromReceipt(receipt)
		view.Status = outcome.Status
		view.BlockNumber = &outcome.BlockNumber
		view.GasUsed = &outcome.GasUsed
		if known && !entry.Status.Terminal() {
			if err := a.recordOutcome(ctx, entry.ID, outcome); err != nil {
				a.logger.Warn("failed to reconcile intent log", "intent_id", entry.ID, "error", err)
			}
		}
		return view, nil
	}

	if !known {
		if rpcErr != nil && !chain.IsNotFound(rpcErr) {
			return nil, a.chainError(fmt.Errorf("fetch receipt: %w", rpcErr))
		}
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
	}

	switch entry.Status {
	case store.StatusSuccess:
		view.Status = chain.TxSuccess
	case store.StatusFailed:
		view.Status = chain.TxFailed
	default:
		view.Status = chain.TxPending
	}
	view.BlockNumber = entry.BlockNumber
	view.GasUsed = entry.GasUsed
	return view, nil
}

// Pagination limits for History.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// HistoryPage is one page of a user's intents.
type HistoryPage struct {
	Transactions []store.IntentLog
	Page         int
	Limit        int
	Total        int
	Pages        int
}

// History lists the intents recorded for address, newest first. page is
// 1-based.
func (a *Agent) History(ctx context.Context, address string, page, limit int) (*HistoryPage, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	addr, err := parseAddress("address", address)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	logs, total, err := a.store.ListIntentLogs(ctx, store.IntentLogFilter{
		UserAddress: addr.Hex(),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	return &HistoryPage{
		Transactions: logs,
		Page:         page,
		Limit:        limit,
		Total:        total,
		Pages:        (total + limit - 1) / limit,
	}, nil
}

// Intents lists recorded intents, newest first.
func (a *Agent) Intents(ctx context.Context, filter store.IntentLogFilter) ([]store.IntentLog, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	return a.store.ListIntentLogs(ctx, filter)
}

// Intent returns one recorded intent.
func (a *Agent) Intent(ctx context.Context, id string) (store.IntentLog, error) {
	return a.store.GetIntentLog(ctx, id)
}

// Chat returns a session's transcript, oldest first.
func (a *Agent) Chat(ctx context.Context, sessionID string) ([]store.ChatMessage, error) {
	return a.store.ListChatMessages(ctx, sessionID)
}

// Analytics summarises every recorded intent.
type Analytics struct {
	TotalIntents int
	ByAction     map[string]int
	ByStatus     map[string]int
	// SuccessRate is success / (success + failed), 0 when nothing finished.
	SuccessRate float64
	Sessions    int
}

// Analytics aggregates over the whole intent log.
func (a *Agent) Analytics(ctx context.Context) (*Analytics, error) {
	logs, total, err := a.store.ListIntentLogs(ctx, store.IntentLogFilter{})
	if err != nil {
		return nil, err
	}

	out := &Analytics{
		TotalIntents: total,
		ByAction:     make(map[string]int),
		ByStatus:     make(map[string]int),
	}
	sessions := make(map[string]struct{})
	for _, l := range logs {
		out.ByAction[string(l.Intent.Action)]++
		out.ByStatus[string(l.Status)]++
		if l.SessionID != "" {
			sessions[l.SessionID] = struct{}{}
		}
	}
	out.Sessions = len(sessions)

	finished := out.ByStatus[string(store.StatusSuccess)] + out.ByStatus[string(store.StatusFailed)]
	if finished > 0 {
		out.SuccessRate = float64(out.ByStatus[string(store.StatusSuccess)]) / float64(finished)
	}
	return out, nil
}

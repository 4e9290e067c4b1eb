package testutil

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeBackend is an in-memory chain backend for tests. Zero values behave
// like an empty chain: every balance is zero and no receipt exists.
type FakeBackend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Gas          uint64
	GasErr       error
	GasPrice     *big.Int
	TipCap       *big.Int
	Nonce        uint64
	SendErr      error
	SendDelay    time.Duration
	ReceiptErr   error

	balances     map[common.Address]*big.Int
	receipts     map[common.Hash]*types.Receipt
	sent         []*types.Transaction
	receiptCalls int
}

// NewFakeBackend returns a backend for chain id 1043 that estimates 21000 gas
// at 1 gwei.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		ChainIDValue: big.NewInt(1043),
		Gas:          21000,
		GasPrice:     big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(100_000_000),
	}
}

// SetBalance sets the native balance of addr.
func (f *FakeBackend) SetBalance(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[common.Address]*big.Int)
	}
	f.balances[addr] = new(big.Int).Set(wei)
}

// SetReceipt makes hash mined with the given status at block.
func (f *FakeBackend) SetReceipt(hash common.Hash, status uint64, block, gasUsed uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]*types.Receipt)
	}
	f.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: new(big.Int).SetUint64(block),
		GasUsed:     gasUsed,
	}
}

// Sent returns the transactions broadcast so far.
func (f *FakeBackend) Sent() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

// ReceiptCalls returns how many receipt lookups were made.
func (f *FakeBackend) ReceiptCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiptCalls
}

func (f *FakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ChainIDValue), nil
}

func (f *FakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.Nonce, nil
}

func (f *FakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.GasErr != nil {
		return 0, f.GasErr
	}
	return f.Gas, nil
}

func (f *FakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *FakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.TipCap), nil
}

func (f *FakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.SendDelay > 0 {
		select {
		case <-time.After(f.SendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *FakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if f.ReceiptErr != nil {
		return nil, f.ReceiptErr
	}
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

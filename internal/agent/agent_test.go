package agent

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/testutil"
	"github.com/yolodolo42/chatchain/internal/tx"
	"github.com/yolodolo42/chatchain/internal/wallet"
)

const (
	devKey    = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddr   = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	recipient = "0x1111111111111111111111111111111111111111"
)

type harness struct {
	agent   *Agent
	backend *testutil.FakeBackend
	repo    *store.Memory
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	backend := testutil.NewFakeBackend()
	backend.SetBalance(common.HexToAddress(devAddr), new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)))
	network, err := chain.LookupChain(chain.DefaultNetwork)
	require.NoError(t, err)
	repo := store.NewMemory()

	a, err := New(Deps{
		Parser:    intent.NewLocalParser(),
		Mapper:    tx.NewMapper(),
		Simulator: simulate.NewLocal(backend, network),
		Store:     repo,
		Backend:   backend,
		Network:   network,
		Logger:    testutil.QuietLogger(),
	}, append([]Option{WithPolling(5, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return &harness{agent: a, backend: backend, repo: repo}
}

func signTx(t *testing.T, to common.Address, data []byte, chainID int64) *types.Transaction {
	t.Helper()
	signer, err := wallet.NewKeySigner(devKey)
	require.NoError(t, err)
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Gas:       100_000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		To:        &to,
		Data:      data,
	})
	signed, err := signer.SignTransaction(unsigned, big.NewInt(chainID))
	require.NoError(t, err)
	return signed
}

func rawHex(t *testing.T, signed *types.Transaction) string {
	t.Helper()
	b, err := signed.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(b)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("swap end to end", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "swap 50 ETH for BDAG", UserAddress: devAddr})
		require.NoError(t, err)

		assert.Equal(t, chain.DEX.Address, turn.Prepared.To)
		assert.Equal(t, "swapExactTokensForTokens", turn.Prepared.FunctionName)
		assert.Equal(t, "50 ETH → BDAG", turn.Prepared.TokenFlow)
		assert.True(t, turn.Simulation.IsValid)
		assert.NotEmpty(t, turn.SessionID)

		assert.Equal(t, store.StatusPending, turn.Log.Status)
		assert.Equal(t, chain.DEX.Address.Hex(), turn.Log.ContractAddress)
		assert.Equal(t, "21000", turn.Log.GasEstimate)
		assert.Equal(t, devAddr, turn.Log.UserAddress)

		require.Len(t, turn.Messages, 2)
		assert.True(t, turn.Messages[0].IsUser)
		assert.Equal(t, turn.Log.ID, turn.Messages[1].RelatedIntentLogID)

		chat, err := h.agent.Chat(ctx, turn.SessionID)
		require.NoError(t, err)
		assert.Len(t, chat, 2)
	})

	t.Run("transfer end to end", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "transfer 10 USDC to " + recipient, SessionID: "s-1"})
		require.NoError(t, err)

		usdc, _ := chain.LookupToken("USDC")
		assert.Equal(t, usdc.Address, turn.Prepared.To)
		assert.Equal(t, "transfer", turn.Prepared.FunctionName)
		assert.Equal(t, []string{common.HexToAddress(recipient).Hex(), "10000000"}, turn.Prepared.Params)
		assert.Equal(t, "s-1", turn.SessionID)
		assert.Empty(t, turn.Log.UserAddress)
	})

	t.Run("unparseable prompt", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "hello there", SessionID: "s-2"})

		var turnErr *TurnError
		require.True(t, errors.As(err, &turnErr))
		require.Len(t, turnErr.Messages, 2)
		assert.False(t, turnErr.Messages[1].IsUser)

		logs, total, err := h.repo.ListIntentLogs(ctx, store.IntentLogFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, logs)
	})

	t.Run("mapping failure", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "swap 5 USDC"})
		assert.ErrorIs(t, err, tx.ErrMissingParameter)
		var turnErr *TurnError
		assert.True(t, errors.As(err, &turnErr))
	})

	t.Run("input validation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "   "})
		assert.ErrorIs(t, err, ErrEmptyPrompt)

		_, err = h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG", UserAddress: "bob"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestInterpret(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.agent.Interpret(ctx, InterpretRequest{Message: "stake 100 BDAG"})
	require.NoError(t, err)
	assert.Equal(t, intent.ActionStake, out.Parse.Intent.Action)
	assert.Equal(t, intent.ConfidenceWithAmount, out.Parse.Confidence)
	require.NotNil(t, out.Transaction)
	assert.Equal(t, chain.Vault.Address, out.Transaction.To)
	assert.True(t, out.RequiresWallet)

	out, err = h.agent.Interpret(ctx, InterpretRequest{Message: "good morning"})
	require.NoError(t, err)
	assert.Nil(t, out.Transaction)
	assert.False(t, out.RequiresWallet)
	assert.NotEmpty(t, out.Explanation)

	out, err = h.agent.Interpret(ctx, InterpretRequest{Message: "send 5 USDC"})
	require.NoError(t, err)
	assert.Nil(t, out.Transaction)
	assert.Contains(t, out.Explanation, "missing")
}

func TestSendForIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("reported hash is tracked to success", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)

		hash := common.HexToHash("0xabc")
		h.backend.SetReceipt(hash, types.ReceiptStatusSuccessful, 42, 51000)

		sub, err := h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, TxHash: hash.Hex()})
		require.NoError(t, err)
		assert.Equal(t, store.StatusSubmitted, sub.Status)
		assert.Equal(t, hash, sub.TxHash)
		assert.Empty(t, sub.Warning)

		require.Eventually(t, func() bool {
			got, err := h.repo.GetIntentLog(ctx, turn.Log.ID)
			return err == nil && got.Status == store.StatusSuccess
		}, time.Second, 5*time.Millisecond)

		got, err := h.repo.GetIntentLog(ctx, turn.Log.ID)
		require.NoError(t, err)
		assert.Equal(t, hash.Hex(), got.TxHash)
		assert.Equal(t, uint64(42), *got.BlockNumber)
		assert.Equal(t, uint64(51000), *got.GasUsed)
	})

	t.Run("second send is rejected", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)

		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, TxHash: common.HexToHash("0x1").Hex()})
		require.NoError(t, err)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, TxHash: common.HexToHash("0x2").Hex()})
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	})

	t.Run("unknown intent", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.SendForIntent(ctx, SendRequest{IntentID: "missing", TxHash: common.HexToHash("0x1").Hex()})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("bad hash", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, TxHash: "0x1234"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("signed transaction is broadcast", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG", UserAddress: devAddr})
		require.NoError(t, err)

		signed := signTx(t, turn.Prepared.To, turn.Prepared.Data, 1043)
		sub, err := h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, SignedTx: rawHex(t, signed)})
		require.NoError(t, err)
		assert.Equal(t, signed.Hash(), sub.TxHash)
		require.Len(t, h.backend.Sent(), 1)
	})

	t.Run("signed transaction to another contract", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)

		signed := signTx(t, chain.DEX.Address, nil, 1043)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, SignedTx: rawHex(t, signed)})
		assert.ErrorIs(t, err, ErrTxMismatch)
		assert.Empty(t, h.backend.Sent())
	})

	t.Run("no transaction and no relayer", func(t *testing.T) {
		h := newHarness(t)
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID})
		assert.ErrorIs(t, err, ErrNoSigner)
	})

	t.Run("relayer signs", func(t *testing.T) {
		signer, err := wallet.NewKeySigner(devKey)
		require.NoError(t, err)
		backend := testutil.NewFakeBackend()
		relayer := tx.NewRelayer(backend, signer, big.NewInt(1043), tx.RegistryPolicy(nil))

		h := newHarness(t)
		h.agent.backend = backend
		h.agent.relayer = relayer

		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)
		sub, err := h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID})
		require.NoError(t, err)
		assert.Equal(t, "relayed", sub.Method)

		sent := backend.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, chain.Vault.Address, *sent[0].To())
	})

	t.Run("relayed swap pays out to the relayer", func(t *testing.T) {
		signer, err := wallet.NewKeySigner(devKey)
		require.NoError(t, err)
		backend := testutil.NewFakeBackend()
		relayer := tx.NewRelayer(backend, signer, big.NewInt(1043), tx.RegistryPolicy(nil))

		h := newHarness(t)
		h.agent.backend = backend
		h.agent.relayer = relayer

		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "swap 1 USDC for ETH", UserAddress: recipient})
		require.NoError(t, err)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID})
		require.NoError(t, err)

		sent := backend.Sent()
		require.Len(t, sent, 1)
		data := sent[0].Data()
		assert.True(t, bytes.Contains(data, common.LeftPadBytes(relayer.Address().Bytes(), 32)))
		assert.False(t, bytes.Contains(data, common.LeftPadBytes(common.HexToAddress(recipient).Bytes(), 32)))
	})

	t.Run("concurrent relayed sends broadcast once", func(t *testing.T) {
		signer, err := wallet.NewKeySigner(devKey)
		require.NoError(t, err)
		backend := testutil.NewFakeBackend()
		backend.SendDelay = 20 * time.Millisecond
		relayer := tx.NewRelayer(backend, signer, big.NewInt(1043), tx.RegistryPolicy(nil))

		h := newHarness(t)
		h.agent.backend = backend
		h.agent.relayer = relayer

		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)

		const senders = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok       int
			rejected int
		)
		for i := 0; i < senders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errors.Is(err, ErrAlreadyProcessed) {
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, senders-1, rejected)
		assert.Len(t, backend.Sent(), 1)

		got, err := h.repo.GetIntentLog(ctx, turn.Log.ID)
		require.NoError(t, err)
		assert.Equal(t, backend.Sent()[0].Hash().Hex(), got.TxHash)
	})

	t.Run("chain error carries remediation", func(t *testing.T) {
		h := newHarness(t)
		h.backend.SendErr = errors.New("insufficient funds for gas * price + value")
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)

		signed := signTx(t, turn.Prepared.To, turn.Prepared.Data, 1043)
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, SignedTx: rawHex(t, signed)})
		var chainErr *ChainError
		require.True(t, errors.As(err, &chainErr))
		assert.Contains(t, chainErr.Remediation, "faucet")

		got, err := h.repo.GetIntentLog(ctx, turn.Log.ID)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, got.Status)
	})
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	data := []byte{0x01, 0x02}

	t.Run("broadcasts a matching transaction", func(t *testing.T) {
		h := newHarness(t)
		signed := signTx(t, chain.Vault.Address, data, 1043)
		sub, err := h.agent.Execute(ctx, ExecuteRequest{
			To:            chain.Vault.Address.Hex(),
			Data:          hexutil.Encode(data),
			WalletAddress: devAddr,
			SignedTx:      rawHex(t, signed),
		})
		require.NoError(t, err)
		assert.Equal(t, signed.Hash(), sub.TxHash)
		assert.Len(t, h.backend.Sent(), 1)
	})

	t.Run("rejects another sender", func(t *testing.T) {
		h := newHarness(t)
		signed := signTx(t, chain.Vault.Address, data, 1043)
		_, err := h.agent.Execute(ctx, ExecuteRequest{
			To:            chain.Vault.Address.Hex(),
			WalletAddress: recipient,
			SignedTx:      rawHex(t, signed),
		})
		assert.ErrorIs(t, err, ErrTxMismatch)
	})

	t.Run("rejects other calldata", func(t *testing.T) {
		h := newHarness(t)
		signed := signTx(t, chain.Vault.Address, data, 1043)
		_, err := h.agent.Execute(ctx, ExecuteRequest{Data: "0x03", SignedTx: rawHex(t, signed)})
		assert.ErrorIs(t, err, ErrTxMismatch)
	})

	t.Run("rejects the wrong chain", func(t *testing.T) {
		h := newHarness(t)
		signed := signTx(t, chain.Vault.Address, data, 11155111)
		_, err := h.agent.Execute(ctx, ExecuteRequest{SignedTx: rawHex(t, signed)})
		var chainErr *ChainError
		require.True(t, errors.As(err, &chainErr))
		assert.Contains(t, chainErr.Remediation, "Switch your wallet")
		assert.Empty(t, h.backend.Sent())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.Execute(ctx, ExecuteRequest{SignedTx: "0xdeadbeef"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestTxStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown hash", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.agent.TxStatus(ctx, common.HexToHash("0x99").Hex())
		assert.ErrorIs(t, err, ErrTxNotFound)
	})

	t.Run("logged but not mined", func(t *testing.T) {
		h := newHarness(t, WithPolling(1, time.Millisecond))
		turn, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "stake 1 BDAG"})
		require.NoError(t, err)
		hash := common.HexToHash("0x77")
		_, err = h.agent.SendForIntent(ctx, SendRequest{IntentID: turn.Log.ID, TxHash: hash.Hex()})
		require.NoError(t, err)

		view, err := h.agent.TxStatus(ctx, hash.Hex())
		require.NoError(t, err)
		assert.Equal(t, chain.TxPending, view.Status)
		assert.Equal(t, turn.Log.ID, view.IntentID)
		assert.Nil(t, view.BlockNumber)
	})

	t.Run("receipt wins", func(t *testing.T) {
		h := newHarness(t)
		hash := common.HexToHash("0x88")
		h.backend.SetReceipt(hash, types.ReceiptStatusFailed, 7, 30000)

		view, err := h.agent.TxStatus(ctx, hash.Hex())
		require.NoError(t, err)
		assert.Equal(t, chain.TxFailed, view.Status)
		assert.Equal(t, uint64(7), *view.BlockNumber)
	})

	t.Run("rpc failure without a log", func(t *testing.T) {
		h := newHarness(t)
		h.backend.ReceiptErr = errors.New("connection refused")
		_, err := h.agent.TxStatus(ctx, common.HexToHash("0x99").Hex())
		var chainErr *ChainError
		assert.True(t, errors.As(err, &chainErr))
	})
}

func TestHistoryAndAnalytics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, prompt := range []string{"stake 1 BDAG", "stake 2 BDAG", "swap 3 USDC for DAI"} {
		_, err := h.agent.Submit(ctx, SubmitRequest{Prompt: prompt, UserAddress: devAddr, SessionID: "s"})
		require.NoError(t, err)
	}
	_, err := h.agent.Submit(ctx, SubmitRequest{Prompt: "mint an nft", SessionID: "other"})
	require.NoError(t, err)

	page, err := h.agent.History(ctx, devAddr, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "stake 1 BDAG", page.Transactions[0].Prompt)

	_, err = h.agent.History(ctx, "nope", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	stats, err := h.agent.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalIntents)
	assert.Equal(t, 2, stats.ByAction["stake"])
	assert.Equal(t, 4, stats.ByStatus["pending"])
	assert.Equal(t, 2, stats.Sessions)
	assert.Zero(t, stats.SuccessRate)
}

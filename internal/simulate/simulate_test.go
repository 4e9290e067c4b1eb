package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/testutil"
)

var (
	sender = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	target = chain.Vault.Address
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, RiskHigh, Classify(false, 21000, DefaultGasThreshold))
	assert.Equal(t, RiskMedium, Classify(true, 300_001, DefaultGasThreshold))
	assert.Equal(t, RiskLow, Classify(true, 300_000, DefaultGasThreshold))
}

func TestRecommend(t *testing.T) {
	assert.Contains(t, Recommend(false, RiskHigh, "Get test funds."), "Get test funds.")
	assert.Contains(t, Recommend(true, RiskMedium, ""), "more gas")
	assert.Equal(t, "This transaction looks safe to submit.", Recommend(true, RiskLow, ""))
}

func TestLocalSimulate(t *testing.T) {
	network := chain.DefaultChains()[chain.DefaultNetwork]
	ctx := context.Background()

	t.Run("sufficient balance is low risk", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.SetBalance(sender, big.NewInt(1_000_000_000_000_000_000))

		res := NewLocal(backend, network).Simulate(ctx, Call{From: sender, To: target})
		assert.True(t, res.IsValid)
		assert.Equal(t, RiskLow, res.RiskLevel)
		assert.Equal(t, uint64(21000), res.GasEstimate)
		assert.Equal(t, "21000000000000", res.GasCost.String())
		require.NotNil(t, res.BalanceCheck)
		assert.True(t, res.BalanceCheck.Sufficient)
		assert.Equal(t, StrategyLocal, res.Strategy)
	})

	t.Run("insufficient balance is invalid and high risk", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.SetBalance(sender, big.NewInt(1))

		res := NewLocal(backend, network).Simulate(ctx, Call{From: sender, To: target})
		assert.False(t, res.IsValid)
		assert.Equal(t, RiskHigh, res.RiskLevel)
		assert.Contains(t, res.Error, "insufficient funds")
		assert.Contains(t, res.Recommendation, network.FaucetURL)
		assert.False(t, res.BalanceCheck.Sufficient)
	})

	t.Run("value counts toward cost", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.SetBalance(sender, big.NewInt(21_000_000_000_000))

		res := NewLocal(backend, network).Simulate(ctx, Call{From: sender, To: target, Value: big.NewInt(1)})
		assert.False(t, res.IsValid)
	})

	t.Run("no sender skips the balance check", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		res := NewLocal(backend, network).Simulate(ctx, Call{To: target})
		assert.True(t, res.IsValid)
		assert.Nil(t, res.BalanceCheck)
	})

	t.Run("heavy call is medium risk", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.Gas = 400_000
		res := NewLocal(backend, network).Simulate(ctx, Call{To: target})
		assert.Equal(t, RiskMedium, res.RiskLevel)

		res = NewLocal(backend, network, WithGasThreshold(500_000)).Simulate(ctx, Call{To: target})
		assert.Equal(t, RiskLow, res.RiskLevel)
	})

	t.Run("rpc error is invalid with the message", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		backend.GasErr = errors.New("execution reverted")
		res := NewLocal(backend, network).Simulate(ctx, Call{To: target})
		assert.False(t, res.IsValid)
		assert.Equal(t, RiskHigh, res.RiskLevel)
		assert.Contains(t, res.Error, "execution reverted")
		assert.Contains(t, res.Recommendation, "contract rejected")
	})

	t.Run("repeatable gas estimate", func(t *testing.T) {
		backend := testutil.NewFakeBackend()
		sim := NewLocal(backend, network)
		a := sim.Simulate(ctx, Call{To: target})
		b := sim.Simulate(ctx, Call{To: target})
		assert.Equal(t, a.GasEstimate, b.GasEstimate)
	})
}

type fixedSimulator struct{ calls int }

func (f *fixedSimulator) Simulate(ctx context.Context, call Call) Result {
	f.calls++
	return Result{IsValid: true, GasEstimate: 1, RiskLevel: RiskLow, Strategy: StrategyLocal}
}

func TestRemoteSimulate(t *testing.T) {
	ctx := context.Background()

	t.Run("translates the service response", func(t *testing.T) {
		var got remoteRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/account/acme/project/demo/simulate", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("X-Access-Key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write([]byte(`{"transaction":{"status":true,"gas_used":450000},"simulation":{"id":"sim-1","gas_price":"2"}}`))
		}))
		defer srv.Close()

		fb := &fixedSimulator{}
		r := NewRemote(RemoteConfig{BaseURL: srv.URL, Account: "acme", Project: "demo", AccessKey: "secret", NetworkID: "1043"}, fb, quietLogger())
		res := r.Simulate(ctx, Call{From: sender, To: target, Data: []byte{0xab}})

		assert.Equal(t, 0, fb.calls)
		assert.True(t, res.IsValid)
		assert.Equal(t, uint64(450000), res.GasEstimate)
		assert.Equal(t, RiskMedium, res.RiskLevel)
		assert.Equal(t, StrategyRemote, res.Strategy)
		assert.Equal(t, "https://dashboard.tenderly.co/acme/demo/simulator/sim-1", res.SimulationURL)
		assert.Equal(t, "900000", res.GasCost.String())
		assert.Equal(t, "0xab", got.Input)
		assert.Equal(t, "1043", got.NetworkID)
	})

	t.Run("reverted call carries the error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"transaction":{"status":false,"gas_used":30000,"error_message":"ERC20: transfer amount exceeds balance"}}`))
		}))
		defer srv.Close()

		r := NewRemote(RemoteConfig{BaseURL: srv.URL, Account: "a", Project: "p", AccessKey: "k"}, &fixedSimulator{}, quietLogger())
		res := r.Simulate(ctx, Call{To: target})
		assert.False(t, res.IsValid)
		assert.Equal(t, RiskHigh, res.RiskLevel)
		assert.Equal(t, "ERC20: transfer amount exceeds balance", res.Error)
	})

	t.Run("falls back on non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		fb := &fixedSimulator{}
		r := NewRemote(RemoteConfig{BaseURL: srv.URL, Account: "a", Project: "p", AccessKey: "k"}, fb, quietLogger())
		res := r.Simulate(ctx, Call{To: target})

		assert.Equal(t, 1, fb.calls)
		assert.True(t, res.Degraded)
		assert.Equal(t, StrategyLocal, res.Strategy)
		require.NotEmpty(t, res.Logs)
		assert.Contains(t, res.Logs[0], "429")
	})

	t.Run("falls back on transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		fb := &fixedSimulator{}
		r := NewRemote(RemoteConfig{BaseURL: srv.URL, Account: "a", Project: "p", AccessKey: "k"}, fb, quietLogger())
		res := r.Simulate(ctx, Call{To: target})
		assert.Equal(t, 1, fb.calls)
		assert.True(t, res.Degraded)
	})

	t.Run("falls back on malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		fb := &fixedSimulator{}
		r := NewRemote(RemoteConfig{BaseURL: srv.URL, Account: "a", Project: "p", AccessKey: "k"}, fb, quietLogger())
		r.Simulate(ctx, Call{To: target})
		assert.Equal(t, 1, fb.calls)
	})
}

func TestNewSelectsStrategy(t *testing.T) {
	local := NewLocal(testutil.NewFakeBackend(), nil)

	_, isLocal := New(local, RemoteConfig{}, quietLogger()).(*Local)
	assert.True(t, isLocal)

	_, isRemote := New(local, RemoteConfig{Account: "a", Project: "p", AccessKey: "k"}, quietLogger()).(*Remote)
	assert.True(t, isRemote)
}

package tx

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/intent"
)

var (
	fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	caller   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice    = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func fixedMapper(opts ...MapperOption) *Mapper {
	return NewMapper(append([]MapperOption{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func unpack(t *testing.T, contractABI chain.Contract, method string, data []byte) []interface{} {
	t.Helper()
	m, ok := contractABI.ABI.Methods[method]
	require.True(t, ok)
	require.Equal(t, m.ID, data[:4])
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return args
}

func TestMapTransfer(t *testing.T) {
	in := intent.Intent{Action: intent.ActionTransfer, Amount: "10", Token: "USDC", Recipient: alice.Hex()}

	p, err := fixedMapper().Map(in, caller)
	require.NoError(t, err)

	usdc, _ := chain.LookupToken("USDC")
	assert.Equal(t, usdc.Address, p.To)
	assert.Equal(t, "transfer", p.FunctionName)
	assert.Equal(t, []string{alice.Hex(), "10000000"}, p.Params)
	assert.Equal(t, "10 USDC → 0x1111…1111", p.TokenFlow)

	args := unpack(t, chain.Contract{ABI: chain.ERC20}, "transfer", p.Data)
	assert.Equal(t, alice, args[0])
	assert.Equal(t, "10000000", args[1].(*big.Int).String())
}

func TestMapSwap(t *testing.T) {
	in := intent.Intent{Action: intent.ActionSwap, Amount: "50", Token: "ETH", TargetToken: "BDAG"}

	p, err := fixedMapper().Map(in, caller)
	require.NoError(t, err)

	assert.Equal(t, chain.DEX.Address, p.To)
	assert.Equal(t, "swapExactTokensForTokens", p.FunctionName)
	assert.Equal(t, "50 ETH → BDAG", p.TokenFlow)

	eth, _ := chain.LookupToken("ETH")
	bdag, _ := chain.LookupToken("BDAG")
	args := unpack(t, chain.DEX, "swapExactTokensForTokens", p.Data)

	assert.Equal(t, "50000000000000000000", args[0].(*big.Int).String())
	assert.Equal(t, "0", args[1].(*big.Int).String())
	assert.Equal(t, []common.Address{eth.Address, bdag.Address}, args[2])
	assert.Equal(t, caller, args[3])
	assert.Equal(t, fixedNow.Add(20*time.Minute).Unix(), args[4].(*big.Int).Int64())
}

func TestMapSwapSlippage(t *testing.T) {
	in := intent.Intent{Action: intent.ActionSwap, Amount: "100", Token: "USDC", TargetToken: "DAI"}

	p, err := fixedMapper(WithSlippageBps(50)).Map(in, caller)
	require.NoError(t, err)

	args := unpack(t, chain.DEX, "swapExactTokensForTokens", p.Data)
	// 100 USDC at 0.5% slippage, rescaled from 6 to 18 decimals
	assert.Equal(t, "99500000000000000000", args[1].(*big.Int).String())
}

func TestMapStakeUnstake(t *testing.T) {
	m := fixedMapper()

	t.Run("stake", func(t *testing.T) {
		p, err := m.Map(intent.Intent{Action: intent.ActionStake, Amount: "10", Token: "USDC"}, caller)
		require.NoError(t, err)
		assert.Equal(t, chain.Vault.Address, p.To)
		assert.Equal(t, "stake", p.FunctionName)
		assert.Equal(t, "10 USDC → Vault", p.TokenFlow)
		assert.Equal(t, []string{"10000000"}, p.Params)
	})

	t.Run("unstake", func(t *testing.T) {
		p, err := m.Map(intent.Intent{Action: intent.ActionUnstake, Amount: "1.5", Token: "ETH"}, caller)
		require.NoError(t, err)
		assert.Equal(t, "unstake", p.FunctionName)
		assert.Equal(t, "Vault → 1.5 ETH", p.TokenFlow)
		args := unpack(t, chain.Vault, "unstake", p.Data)
		assert.Equal(t, "1500000000000000000", args[0].(*big.Int).String())
	})

	t.Run("default token", func(t *testing.T) {
		p, err := m.Map(intent.Intent{Action: intent.ActionStake, Amount: "3"}, caller)
		require.NoError(t, err)
		assert.Equal(t, "3 BDAG → Vault", p.TokenFlow)
	})
}

func TestMapMint(t *testing.T) {
	p, err := fixedMapper().Map(intent.Intent{Action: intent.ActionMint}, caller)
	require.NoError(t, err)

	assert.Equal(t, chain.NFT.Address, p.To)
	args := unpack(t, chain.NFT, "mint", p.Data)
	assert.Equal(t, caller, args[0])
	assert.Contains(t, args[1], "ipfs://chatchain/metadata/")

	t.Run("uri differs per call", func(t *testing.T) {
		n := int64(0)
		m := NewMapper(WithClock(func() time.Time { n++; return time.Unix(0, n) }))
		a, err := m.Map(intent.Intent{Action: intent.ActionMint}, caller)
		require.NoError(t, err)
		b, err := m.Map(intent.Intent{Action: intent.ActionMint}, caller)
		require.NoError(t, err)
		assert.NotEqual(t, a.Params[1], b.Params[1])
	})

	t.Run("no wallet yet", func(t *testing.T) {
		p, err := fixedMapper().Map(intent.Intent{Action: intent.ActionMint}, common.Address{})
		require.NoError(t, err)
		assert.Equal(t, "NFT → your wallet", p.TokenFlow)
	})
}

func TestMapDelegate(t *testing.T) {
	t.Run("default validator", func(t *testing.T) {
		p, err := fixedMapper().Map(intent.Intent{Action: intent.ActionDelegate}, caller)
		require.NoError(t, err)
		args := unpack(t, chain.Governance, "delegate", p.Data)
		assert.Equal(t, chain.DefaultValidator, args[0])
	})

	t.Run("named validator", func(t *testing.T) {
		p, err := fixedMapper().Map(intent.Intent{Action: intent.ActionDelegate, Recipient: alice.Hex()}, caller)
		require.NoError(t, err)
		assert.Equal(t, []string{alice.Hex()}, p.Params)
	})
}

func TestMapDeterministic(t *testing.T) {
	m := fixedMapper()
	in := intent.Intent{Action: intent.ActionSwap, Amount: "1", Token: "USDC", TargetToken: "ETH"}

	a, err := m.Map(in, caller)
	require.NoError(t, err)
	b, err := m.Map(in, caller)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMapErrors(t *testing.T) {
	m := fixedMapper()

	tests := []struct {
		name string
		in   intent.Intent
		want error
	}{
		{"unknown action", intent.Intent{Action: intent.ActionUnknown, Error: "nope"}, ErrUnsupportedAction},
		{"error intent", intent.Intent{Action: intent.ActionStake, Error: "nope"}, ErrUnsupportedAction},
		{"unknown token is never substituted", intent.Intent{Action: intent.ActionStake, Amount: "1", Token: "DOGE"}, ErrUnsupportedToken},
		{"unknown swap target", intent.Intent{Action: intent.ActionSwap, Amount: "1", Token: "ETH", TargetToken: "PEPE"}, ErrUnsupportedToken},
		{"swap without target", intent.Intent{Action: intent.ActionSwap, Amount: "1", Token: "ETH"}, ErrMissingParameter},
		{"swap without source", intent.Intent{Action: intent.ActionSwap, Amount: "1", TargetToken: "ETH"}, ErrMissingParameter},
		{"swap eth for weth", intent.Intent{Action: intent.ActionSwap, Amount: "1", Token: "ETH", TargetToken: "WETH"}, ErrUnsupportedPair},
		{"stake without amount", intent.Intent{Action: intent.ActionStake, Token: "ETH"}, ErrMissingParameter},
		{"zero amount", intent.Intent{Action: intent.ActionStake, Amount: "0", Token: "ETH"}, ErrInvalidAmount},
		{"too many decimals", intent.Intent{Action: intent.ActionStake, Amount: "0.0000001", Token: "USDC"}, ErrInvalidAmount},
		{"transfer without recipient", intent.Intent{Action: intent.ActionTransfer, Amount: "1", Token: "USDC"}, ErrMissingParameter},
		{"transfer without amount", intent.Intent{Action: intent.ActionTransfer, Token: "USDC", Recipient: alice.Hex()}, ErrMissingParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Map(tt.in, caller)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsMappingError(err))
		})
	}
}

package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupToken(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		tok, ok := LookupToken("usdc")
		require.True(t, ok)
		assert.Equal(t, "USDC", tok.Symbol)
		assert.Equal(t, uint8(6), tok.Decimals)
	})

	t.Run("eth resolves to wrapped address", func(t *testing.T) {
		eth, ok := LookupToken("ETH")
		require.True(t, ok)
		weth, _ := LookupToken("WETH")
		assert.Equal(t, weth.Address, eth.Address)
		assert.Equal(t, uint8(18), eth.Decimals)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, ok := LookupToken("DOGE")
		assert.False(t, ok)
	})

	t.Run("every listed symbol resolves", func(t *testing.T) {
		for _, sym := range TokenSymbols {
			_, ok := LookupToken(sym)
			assert.True(t, ok, sym)
		}
	})
}

func TestContractABIs(t *testing.T) {
	cases := map[string]struct {
		contract Contract
		methods  []string
	}{
		"vault":      {Vault, []string{"stake", "unstake"}},
		"dex":        {DEX, []string{"swapExactTokensForTokens"}},
		"nft":        {NFT, []string{"mint"}},
		"governance": {Governance, []string{"delegate"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for _, m := range tc.methods {
				_, ok := tc.contract.ABI.Methods[m]
				assert.True(t, ok, "missing method %s", m)
			}
		})
	}

	_, ok := ERC20.Methods["transfer"]
	assert.True(t, ok)
}

func TestKnownDestinations(t *testing.T) {
	usdc, _ := LookupToken("USDC")
	assert.True(t, IsKnownDestination(Vault.Address))
	assert.True(t, IsKnownDestination(usdc.Address))
	assert.False(t, IsKnownDestination(common.HexToAddress("0x1111111111111111111111111111111111111111")))

	assert.Len(t, KnownDestinations(), 9, "eth and weth share an address")

	assert.Equal(t, "Vault", ContractName(Vault.Address))
	assert.Equal(t, "USDC", ContractName(usdc.Address))
	assert.Equal(t, "0x1111…1111", ContractName(common.HexToAddress("0x1111111111111111111111111111111111111111")))
}

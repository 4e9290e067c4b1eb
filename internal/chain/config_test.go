package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChains(t *testing.T) {
	chains := DefaultChains()

	t.Run("default network is present", func(t *testing.T) {
		bdag := chains[DefaultNetwork]
		require.NotNil(t, bdag)

		assert.Equal(t, "BlockDAG Primordial Testnet", bdag.Name)
		assert.Equal(t, int64(1043), bdag.ChainID.Int64())
		assert.Equal(t, "BDAG", bdag.NativeCurrency)
		assert.NotEmpty(t, bdag.FaucetURL)
		assert.True(t, bdag.IsTestnet)
	})

	t.Run("chain id representations agree", func(t *testing.T) {
		for name, cfg := range chains {
			assert.Equal(t, cfg.ChainIDInt, cfg.ChainID.Int64(), "chain %s", name)
			assert.NotEmpty(t, cfg.RPCURLs, "chain %s", name)
		}
	})

	t.Run("chain id hex", func(t *testing.T) {
		assert.Equal(t, "0x413", chains[DefaultNetwork].ChainIDHex())
		assert.Equal(t, "0xaa36a7", chains["sepolia"].ChainIDHex())
	})
}

func TestLookupChain(t *testing.T) {
	t.Run("known", func(t *testing.T) {
		cfg, err := LookupChain("sepolia")
		require.NoError(t, err)
		assert.Equal(t, int64(11155111), cfg.ChainIDInt)
	})

	t.Run("unknown lists known names", func(t *testing.T) {
		_, err := LookupChain("nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blockdag-testnet")
	})
}

func TestWithRPCURL(t *testing.T) {
	base := DefaultChains()[DefaultNetwork]

	override := base.WithRPCURL("http://localhost:8545")
	assert.Equal(t, "http://localhost:8545", override.RPCURLs[0])
	assert.Len(t, override.RPCURLs, len(base.RPCURLs)+1)
	assert.Len(t, base.RPCURLs, 1, "original must not change")

	same := base.WithRPCURL("")
	assert.Equal(t, base.RPCURLs, same.RPCURLs)
}

package chain

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultNetwork is the network used when none is configured.
const DefaultNetwork = "blockdag-testnet"

// ChainConfig holds configuration for an EVM network.
// Invariant: ChainID and ChainIDInt must always represent the same value.
type ChainConfig struct {
	Name           string   `yaml:"name"`
	ChainID        *big.Int `yaml:"-"`
	ChainIDInt     int64    `yaml:"chain_id"`
	RPCURLs        []string `yaml:"rpc_urls"`
	ExplorerURL    string   `yaml:"explorer_url"`
	FaucetURL      string   `yaml:"faucet_url"`
	NativeCurrency string   `yaml:"native_currency"`
	IsTestnet      bool     `yaml:"is_testnet"`
}

// ChainIDHex returns the chain id in the 0x-prefixed form wallets expect.
func (c *ChainConfig) ChainIDHex() string {
	return hexutil.EncodeBig(c.ChainID)
}

// WithRPCURL returns a copy of the config that dials rpcURL first.
func (c *ChainConfig) WithRPCURL(rpcURL string) *ChainConfig {
	cp := *c
	if rpcURL == "" {
		return &cp
	}
	cp.RPCURLs = append([]string{rpcURL}, c.RPCURLs...)
	return &cp
}

// TxURL links a transaction hash on the network's explorer.
func (c *ChainConfig) TxURL(hash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/tx/" + hash
}

// DefaultChains returns the networks the service knows how to talk to.
func DefaultChains() map[string]*ChainConfig {
	return map[string]*ChainConfig{
		"blockdag-testnet": {
			Name:           "BlockDAG Primordial Testnet",
			ChainID:        big.NewInt(1043),
			ChainIDInt:     1043,
			RPCURLs:        []string{"https://rpc.primordial.bdagscan.com"},
			ExplorerURL:    "https://primordial.bdagscan.com",
			FaucetURL:      "https://primordial.bdagscan.com/faucet",
			NativeCurrency: "BDAG",
			IsTestnet:      true,
		},
		"sepolia": {
			Name:           "Sepolia Testnet",
			ChainID:        big.NewInt(11155111),
			ChainIDInt:     11155111,
			RPCURLs:        []string{"https://rpc.sepolia.org", "https://sepolia.drpc.org"},
			ExplorerURL:    "https://sepolia.etherscan.io",
			FaucetURL:      "https://sepoliafaucet.com",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
		"base-sepolia": {
			Name:           "Base Sepolia Testnet",
			ChainID:        big.NewInt(84532),
			ChainIDInt:     84532,
			RPCURLs:        []string{"https://sepolia.base.org"},
			ExplorerURL:    "https://sepolia.basescan.org",
			FaucetURL:      "https://www.alchemy.com/faucets/base-sepolia",
			NativeCurrency: "ETH",
			IsTestnet:      true,
		},
	}
}

// LookupChain returns the named network or an error listing the known ones.
func LookupChain(name string) (*ChainConfig, error) {
	chains := DefaultChains()
	cfg, ok := chains[name]
	if !ok {
		names := make([]string, 0, len(chains))
		for n := range chains {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown chain %q (known: %v)", name, names)
	}
	return cfg, nil
}

package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC-20 known to the registry.
type Token struct {
	Symbol   string
	Name     string
	Address  common.Address
	Decimals uint8
}

// Contract is a deployed contract with its parsed ABI.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

const (
	vaultABI = `[
		{"type":"function","name":"stake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"unstake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
	]`
	dexABI = `[
		{"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable","inputs":[
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMin","type":"uint256"},
			{"name":"path","type":"address[]"},
			{"name":"to","type":"address"},
			{"name":"deadline","type":"uint256"}
		],"outputs":[{"name":"amounts","type":"uint256[]"}]}
	]`
	nftABI = `[
		{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"}],"outputs":[{"name":"tokenId","type":"uint256"}]}
	]`
	governanceABI = `[
		{"type":"function","name":"delegate","stateMutability":"nonpayable","inputs":[{"name":"delegatee","type":"address"}],"outputs":[]}
	]`
	erc20ABI = `[
		{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

// Mock deployments on the demo network.
var (
	Vault      = mustContract("Vault", "0x5FbDB2315678afecb367f032d93F642f64180aa3", vaultABI)
	DEX        = mustContract("DEX", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512", dexABI)
	NFT        = mustContract("NFT", "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0", nftABI)
	Governance = mustContract("Governance", "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9", governanceABI)

	// ERC20 is the shared token ABI; token addresses come from the token table.
	ERC20 = mustABI(erc20ABI)

	// DefaultValidator receives delegations when the user names none.
	DefaultValidator = common.HexToAddress("0x8A791620dd6260079BF849Dc5567aDC3F2FdC318")
)

// ETH has no contract of its own on the demo network and resolves to the
// wrapped token address.
var tokens = map[string]Token{
	"USDC": {Symbol: "USDC", Name: "USD Coin", Address: common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"), Decimals: 6},
	"USDT": {Symbol: "USDT", Name: "Tether USD", Address: common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707"), Decimals: 6},
	"DAI":  {Symbol: "DAI", Name: "Dai Stablecoin", Address: common.HexToAddress("0x0165878A594ca255338adfa4d48449f69242Eb8F"), Decimals: 18},
	"WETH": {Symbol: "WETH", Name: "Wrapped Ether", Address: common.HexToAddress("0xa513E6E4b8f2a923D98304ec87F64353C4D5C853"), Decimals: 18},
	"ETH":  {Symbol: "ETH", Name: "Ether", Address: common.HexToAddress("0xa513E6E4b8f2a923D98304ec87F64353C4D5C853"), Decimals: 18},
	"BDAG": {Symbol: "BDAG", Name: "BlockDAG", Address: common.HexToAddress("0x2279B7A0a67DB372996a5FaB50D91eAA73d2eBe6"), Decimals: 18},
}

// TokenSymbols lists the supported symbols in the order the text matcher
// prefers them.
var TokenSymbols = []string{"USDC", "ETH", "BDAG", "WETH", "DAI", "USDT"}

// LookupToken finds a token by symbol, case-insensitively.
func LookupToken(symbol string) (Token, bool) {
	t, ok := tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// Contracts returns the non-token contracts in the registry.
func Contracts() []Contract {
	return []Contract{Vault, DEX, NFT, Governance}
}

// KnownDestinations lists every registry contract and token address.
func KnownDestinations() []common.Address {
	seen := make(map[common.Address]bool)
	var out []common.Address
	for _, c := range Contracts() {
		if !seen[c.Address] {
			seen[c.Address] = true
			out = append(out, c.Address)
		}
	}
	for _, sym := range TokenSymbols {
		addr := tokens[sym].Address
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// IsKnownDestination reports whether addr is a registry contract or token.
func IsKnownDestination(addr common.Address) bool {
	for _, known := range KnownDestinations() {
		if known == addr {
			return true
		}
	}
	return false
}

// ContractName returns a display name for a registry address, or the short
// hex form for anything else.
func ContractName(addr common.Address) string {
	for _, c := range Contracts() {
		if c.Address == addr {
			return c.Name
		}
	}
	for _, sym := range TokenSymbols {
		if tokens[sym].Address == addr {
			return tokens[sym].Symbol
		}
	}
	return ShortAddress(addr)
}

// ShortAddress renders an address as 0x1234…abcd.
func ShortAddress(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}

func mustContract(name, addr, def string) Contract {
	return Contract{Name: name, Address: common.HexToAddress(addr), ABI: mustABI(def)}
}

// Package tx maps intents onto contract calls and builds relayed transactions.
package tx

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/intent"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrUnsupportedToken  = errors.New("unsupported token")
	ErrUnsupportedPair   = errors.New("unsupported token pair")
	ErrMissingParameter  = errors.New("missing parameter")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// IsMappingError reports whether err came from Map rejecting the intent.
func IsMappingError(err error) bool {
	return errors.Is(err, ErrUnsupportedAction) || errors.Is(err, ErrUnsupportedToken) ||
		errors.Is(err, ErrUnsupportedPair) || errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidAmount)
}

// PreparedTransaction is an encoded contract call ready to be signed.
type PreparedTransaction struct {
	Contract     string
	To           common.Address
	Data         []byte
	Value        *big.Int
	FunctionName string
	// Params are the call arguments rendered for display, in ABI order.
	Params      []string
	Description string
	TokenFlow   string
}

// DefaultDeadline is how long a swap quote stays valid.
const DefaultDeadline = 20 * time.Minute

// Mapper turns intents into calls against the static contract registry.
// It holds no mutable state; only the clock affects its output.
type Mapper struct {
	now          func() time.Time
	deadline     time.Duration
	slippageBps  uint64
	defaultToken string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MapperOption {
	return func(m *Mapper) { m.now = now }
}

// WithSlippageBps sets the minimum-output tolerance for swaps in basis
// points. Zero accepts any output.
func WithSlippageBps(bps uint64) MapperOption {
	return func(m *Mapper) { m.slippageBps = bps }
}

// WithDeadline sets the swap deadline window.
func WithDeadline(d time.Duration) MapperOption {
	return func(m *Mapper) { m.deadline = d }
}

// WithDefaultToken sets the token staked when the user names none.
func WithDefaultToken(symbol string) MapperOption {
	return func(m *Mapper) { m.defaultToken = symbol }
}

// NewMapper returns a mapper with a 20 minute swap deadline, no slippage
// floor and BDAG as the default stake token.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		now:          time.Now,
		deadline:     DefaultDeadline,
		defaultToken: "BDAG",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map encodes the call for in. from is the caller's address and may be the
// zero address when the wallet is not connected yet.
func (m *Mapper) Map(in intent.Intent, from common.Address) (*PreparedTransaction, error) {
	if in.Failed() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, in.Action)
	}

	switch in.Action {
	case intent.ActionStake, intent.ActionUnstake:
		return m.vault(in)
	case intent.ActionSwap:
		return m.swap(in, from)
	case intent.ActionMint:
		return m.mint(from)
	case intent.ActionDelegate:
		return m.delegate(in)
	case intent.ActionTransfer:
		return m.transfer(in)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, in.Action)
}

func (m *Mapper) vault(in intent.Intent) (*PreparedTransaction, error) {
	symbol := in.Token
	if symbol == "" {
		symbol = m.defaultToken
	}
	tok, err := lookupToken(symbol)
	if err != nil {
		return nil, err
	}
	amount, err := baseUnits(in.Amount, tok)
	if err != nil {
		return nil, err
	}

	method := string(in.Action)
	data, err := chain.Vault.ABI.Pack(method, amount)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	p := &PreparedTransaction{
		Contract:     chain.Vault.Name,
		To:           chain.Vault.Address,
		Data:         data,
		Value:        new(big.Int),
		FunctionName: method,
		Params:       []string{amount.String()},
	}
	if in.Action == intent.ActionStake {
		p.Description = fmt.Sprintf("Stake %s %s in the staking vault.", in.Amount, tok.Symbol)
		p.TokenFlow = fmt.Sprintf("%s %s → %s", in.Amount, tok.Symbol, chain.Vault.Name)
	} else {
		p.Description = fmt.Sprintf("Unstake %s %s from the staking vault.", in.Amount, tok.Symbol)
		p.TokenFlow = fmt.Sprintf("%s → %s %s", chain.Vault.Name, in.Amount, tok.Symbol)
	}
	return p, nil
}

func (m *Mapper) swap(in intent.Intent, from common.Address) (*PreparedTransaction, error) {
	if in.Token == "" {
		return nil, fmt.Errorf("%w: token to swap", ErrMissingParameter)
	}
	if in.TargetToken == "" {
		return nil, fmt.Errorf("%w: token to receive", ErrMissingParameter)
	}
	src, err := lookupToken(in.Token)
	if err != nil {
		return nil, err
	}
	dst, err := lookupToken(in.TargetToken)
	if err != nil {
		return nil, err
	}
	if src.Address == dst.Address {
		return nil, fmt.Errorf("%w: %s and %s", ErrUnsupportedPair, src.Symbol, dst.Symbol)
	}
	amountIn, err := baseUnits(in.Amount, src)
	if err != nil {
		return nil, err
	}

	minOut := m.minimumOut(amountIn, src.Decimals, dst.Decimals)
	path := []common.Address{src.Address, dst.Address}
	deadline := big.NewInt(m.now().Add(m.deadline).Unix())

	data, err := chain.DEX.ABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, from, deadline)
	if err != nil {
		return nil, fmt.Errorf("encode swap: %w", err)
	}

	return &PreparedTransaction{
		Contract:     chain.DEX.Name,
		To:           chain.DEX.Address,
		Data:         data,
		Value:        new(big.Int),
		FunctionName: "swapExactTokensForTokens",
		Params: []string{
			amountIn.String(),
			minOut.String(),
			fmt.Sprintf("[%s,%s]", src.Address.Hex(), dst.Address.Hex()),
			from.Hex(),
			deadline.String(),
		},
		Description: fmt.Sprintf("Swap %s %s for %s on the DEX. The quote expires in %d minutes.", in.Amount, src.Symbol, dst.Symbol, int(m.deadline.Minutes())),
		TokenFlow:   fmt.Sprintf("%s %s → %s", in.Amount, src.Symbol, dst.Symbol),
	}, nil
}

// minimumOut assumes a 1:1 quote and applies the slippage tolerance,
// rescaled to the output token's decimals.
func (m *Mapper) minimumOut(amountIn *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if m.slippageBps == 0 || m.slippageBps >= 10_000 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(int64(10_000-m.slippageBps)))
	out.Div(out, big.NewInt(10_000))

	switch {
	case toDecimals > fromDecimals:
		out.Mul(out, pow10(toDecimals-fromDecimals))
	case fromDecimals > toDecimals:
		out.Div(out, pow10(fromDecimals-toDecimals))
	}
	return out
}

func (m *Mapper) mint(from common.Address) (*PreparedTransaction, error) {
	uri := fmt.Sprintf("ipfs://chatchain/metadata/%d.json", m.now().UnixNano())

	data, err := chain.NFT.ABI.Pack("mint", from, uri)
	if err != nil {
		return nil, fmt.Errorf("encode mint: %w", err)
	}

	owner := "your wallet"
	if from != (common.Address{}) {
		owner = chain.ShortAddress(from)
	}
	return &PreparedTransaction{
		Contract:     chain.NFT.Name,
		To:           chain.NFT.Address,
		Data:         data,
		Value:        new(big.Int),
		FunctionName: "mint",
		Params:       []string{from.Hex(), uri},
		Description:  "Mint a new NFT to your wallet.",
		TokenFlow:    "NFT → " + owner,
	}, nil
}

func (m *Mapper) delegate(in intent.Intent) (*PreparedTransaction, error) {
	validator := chain.DefaultValidator
	if in.Recipient != "" {
		if !common.IsHexAddress(in.Recipient) {
			return nil, fmt.Errorf("%w: validator address %q", ErrMissingParameter, in.Recipient)
		}
		validator = common.HexToAddress(in.Recipient)
	}

	data, err := chain.Governance.ABI.Pack("delegate", validator)
	if err != nil {
		return nil, fmt.Errorf("encode delegate: %w", err)
	}

	return &PreparedTransaction{
		Contract:     chain.Governance.Name,
		To:           chain.Governance.Address,
		Data:         data,
		Value:        new(big.Int),
		FunctionName: "delegate",
		Params:       []string{validator.Hex()},
		Description:  fmt.Sprintf("Delegate your voting power to %s.", validator.Hex()),
		TokenFlow:    "Voting power → " + chain.ShortAddress(validator),
	}, nil
}

func (m *Mapper) transfer(in intent.Intent) (*PreparedTransaction, error) {
	if in.Token == "" {
		return nil, fmt.Errorf("%w: token to send", ErrMissingParameter)
	}
	if in.Recipient == "" || !common.IsHexAddress(in.Recipient) {
		return nil, fmt.Errorf("%w: recipient address", ErrMissingParameter)
	}
	tok, err := lookupToken(in.Token)
	if err != nil {
		return nil, err
	}
	amount, err := baseUnits(in.Amount, tok)
	if err != nil {
		return nil, err
	}
	recipient := common.HexToAddress(in.Recipient)

	data, err := chain.ERC20.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	return &PreparedTransaction{
		Contract:     tok.Symbol,
		To:           tok.Address,
		Data:         data,
		Value:        new(big.Int),
		FunctionName: "transfer",
		Params:       []string{recipient.Hex(), amount.String()},
		Description:  fmt.Sprintf("Send %s %s to %s.", in.Amount, tok.Symbol, recipient.Hex()),
		TokenFlow:    fmt.Sprintf("%s %s → %s", in.Amount, tok.Symbol, chain.ShortAddress(recipient)),
	}, nil
}

func lookupToken(symbol string) (chain.Token, error) {
	tok, ok := chain.LookupToken(symbol)
	if !ok {
		return chain.Token{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, strings.ToUpper(symbol))
	}
	return tok, nil
}

func baseUnits(amount intent.Amount, tok chain.Token) (*big.Int, error) {
	if amount == "" {
		return nil, fmt.Errorf("%w: amount", ErrMissingParameter)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	v, err := chain.ToBaseUnits(amount.String(), tok.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return v, nil
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

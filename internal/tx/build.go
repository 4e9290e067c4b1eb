package tx

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yolodolo42/chatchain/internal/chain"
)

// Request captures a state-changing transaction the relayer will send.
type Request struct {
	From        common.Address
	To          common.Address
	ValueWei    *big.Int
	Data        []byte
	Nonce       *uint64  // optional override
	GasLimit    *uint64  // optional override
	MaxFeePerG  *big.Int // optional override
	MaxPriority *big.Int // optional override
}

// Policy enforces safety constraints before sending.
type Policy struct {
	MaxPerTxWei *big.Int
	AllowTo     []common.Address
	DenyTo      []common.Address
}

// RegistryPolicy only lets the relayer call registry contracts and caps the
// native value per transaction.
func RegistryPolicy(maxPerTxWei *big.Int) Policy {
	return Policy{
		MaxPerTxWei: maxPerTxWei,
		AllowTo:     chain.KnownDestinations(),
	}
}

// SuggestedFees carries gas estimates so the caller can render them.
type SuggestedFees struct {
	GasLimit         uint64
	MaxFeePerGas     *big.Int
	MaxPriorityFee   *big.Int
	EstimatedCostWei *big.Int
}

// Validate applies simple allow/deny and spend limits.
func Validate(req Request, policy Policy) error {
	if req.ValueWei == nil {
		return fmt.Errorf("value missing")
	}

	for _, a := range policy.DenyTo {
		if a == req.To {
			return fmt.Errorf("destination denied by policy")
		}
	}
	if len(policy.AllowTo) > 0 {
		allowed := false
		for _, a := range policy.AllowTo {
			if a == req.To {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("destination not in allowlist")
		}
	}
	if policy.MaxPerTxWei != nil && req.ValueWei.Cmp(policy.MaxPerTxWei) > 0 {
		return fmt.Errorf("value exceeds max per tx limit")
	}
	return nil
}

// BuildUnsignedTx estimates and prepares an unsigned EIP-1559 transaction.
func BuildUnsignedTx(ctx context.Context, backend chain.Backend, chainID *big.Int, req Request) (*types.Transaction, SuggestedFees, error) {
	if req.ValueWei == nil {
		return nil, SuggestedFees{}, fmt.Errorf("value missing")
	}

	var nonce uint64
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		n, err := backend.PendingNonceAt(ctx, req.From)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("get nonce: %w", err)
		}
		nonce = n
	}

	maxFee := req.MaxFeePerG
	maxPrio := req.MaxPriority
	if maxFee == nil || maxPrio == nil {
		tip, err := backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("suggest tip: %w", err)
		}
		fee, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("suggest gas price: %w", err)
		}
		if maxPrio == nil {
			maxPrio = tip
		}
		if maxFee == nil {
			maxFee = fee
		}
	}
	// the fee cap can never be below the tip
	if maxFee.Cmp(maxPrio) < 0 {
		maxFee = new(big.Int).Set(maxPrio)
	}

	var gasLimit uint64
	if req.GasLimit != nil {
		gasLimit = *req.GasLimit
	} else {
		call := ethereum.CallMsg{
			From:      req.From,
			To:        &req.To,
			GasFeeCap: maxFee,
			GasTipCap: maxPrio,
			Value:     req.ValueWei,
			Data:      req.Data,
		}
		gl, err := backend.EstimateGas(ctx, call)
		if err != nil {
			return nil, SuggestedFees{}, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = gl
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: maxPrio,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &req.To,
		Value:     req.ValueWei,
		Data:      req.Data,
	})

	total := new(big.Int).Mul(maxFee, new(big.Int).SetUint64(gasLimit))
	total.Add(total, req.ValueWei)

	return tx, SuggestedFees{
		GasLimit:         gasLimit,
		MaxFeePerGas:     maxFee,
		MaxPriorityFee:   maxPrio,
		EstimatedCostWei: total,
	}, nil
}

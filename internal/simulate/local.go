package simulate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatchain/internal/chain"
)

// Local simulates against a chain RPC: gas estimate, gas price and the
// sender's balance.
type Local struct {
	backend   chain.Backend
	network   *chain.ChainConfig
	threshold uint64
}

// LocalOption configures a Local simulator.
type LocalOption func(*Local)

// WithGasThreshold overrides DefaultGasThreshold.
func WithGasThreshold(gas uint64) LocalOption {
	return func(l *Local) {
		if gas > 0 {
			l.threshold = gas
		}
	}
}

// NewLocal returns a simulator over backend. network is used for remediation
// hints and may be nil.
func NewLocal(backend chain.Backend, network *chain.ChainConfig, opts ...LocalOption) *Local {
	l := &Local{backend: backend, network: network, threshold: DefaultGasThreshold}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Threshold returns the gas level above which valid calls are MEDIUM risk.
func (l *Local) Threshold() uint64 {
	return l.threshold
}

// Simulate implements Simulator.
func (l *Local) Simulate(ctx context.Context, call Call) Result {
	value := valueOrZero(call.Value)
	to := call.To
	msg := ethereum.CallMsg{From: call.From, To: &to, Value: value, Data: call.Data}

	gas, err := l.backend.EstimateGas(ctx, msg)
	if err != nil {
		return l.failed(fmt.Errorf("estimate gas: %w", err))
	}
	price, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return l.failed(fmt.Errorf("gas price: %w", err))
	}

	cost := new(big.Int).Mul(price, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)

	res := Result{
		IsValid:     true,
		GasEstimate: gas,
		GasPrice:    price,
		GasCost:     cost,
		Strategy:    StrategyLocal,
	}

	var remediation string
	if call.From != (common.Address{}) {
		balance, err := l.backend.BalanceAt(ctx, call.From, nil)
		if err != nil {
			return l.failed(fmt.Errorf("balance: %w", err))
		}
		sufficient := balance.Cmp(cost) >= 0
		res.BalanceCheck = &BalanceCheck{Balance: balance, Required: cost, Sufficient: sufficient}
		if !sufficient {
			insufficient := fmt.Errorf("insufficient funds for gas * price + value: have %s, need %s", balance, cost)
			res.IsValid = false
			res.Error = insufficient.Error()
			remediation = chain.Remediation(insufficient, l.network)
		}
	}

	res.RiskLevel = Classify(res.IsValid, gas, l.threshold)
	res.Recommendation = Recommend(res.IsValid, res.RiskLevel, remediation)
	return res
}

func (l *Local) failed(err error) Result {
	return Result{
		IsValid:        false,
		RiskLevel:      RiskHigh,
		Error:          err.Error(),
		Recommendation: Recommend(false, RiskHigh, chain.Remediation(err, l.network)),
		Strategy:       StrategyLocal,
	}
}

// Package simulate runs advisory pre-flight checks on prepared calls.
package simulate

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RiskLevel grades how likely a call is to cause trouble.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DefaultGasThreshold is the gas estimate above which a valid call is MEDIUM.
const DefaultGasThreshold = 300_000

// Strategy names reported in Result.Strategy.
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// Call is the transaction to simulate. From may be the zero address.
type Call struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// BalanceCheck compares the sender's balance with what the call costs.
type BalanceCheck struct {
	Balance    *big.Int
	Required   *big.Int
	Sufficient bool
}

// Result is the outcome of a simulation. It is advisory only.
type Result struct {
	IsValid        bool
	GasEstimate    uint64
	GasPrice       *big.Int
	GasCost        *big.Int
	RiskLevel      RiskLevel
	Recommendation string
	Error          string
	Logs           []string
	SimulationURL  string
	BalanceCheck   *BalanceCheck
	Strategy       string
	// Degraded is set when the remote service failed and the local path answered.
	Degraded bool
}

// Simulator predicts the outcome of a call. Failures are reported through the
// Result, never as an error.
type Simulator interface {
	Simulate(ctx context.Context, call Call) Result
}

// Classify grades a simulation outcome.
func Classify(valid bool, gas, threshold uint64) RiskLevel {
	switch {
	case !valid:
		return RiskHigh
	case gas > threshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Recommend returns the advice shown next to a simulation. remediation, when
// set, is appended to the advice for invalid calls.
func Recommend(valid bool, risk RiskLevel, remediation string) string {
	if !valid {
		msg := "This transaction is likely to fail. Review the error before submitting."
		if remediation != "" {
			msg += " " + remediation
		}
		return msg
	}
	if risk == RiskMedium {
		return "This transaction should succeed but uses more gas than usual. Double-check the details before confirming."
	}
	return "This transaction looks safe to submit."
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

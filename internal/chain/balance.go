package chain

import (
	"fmt"
	"math/big"
	"regexp"
)

var decimalRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ToBaseUnits converts a decimal string such as "1.5" into integer base units
// at the given precision. Values with more fractional digits than decimals
// are rejected rather than rounded.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	if !decimalRe.MatchString(amount) {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatBalance formats a balance with decimals as a human-readable string
func FormatBalance(balance *big.Int, decimals uint8) string {
	if balance == nil {
		return "0"
	}

	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	balFloat := new(big.Float).SetInt(balance)
	result := new(big.Float).Quo(balFloat, divisor)

	if decimals > 6 {
		return result.Text('f', 6)
	}
	return result.Text('f', int(decimals))
}

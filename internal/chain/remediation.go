package chain

import (
	"fmt"
	"strings"
)

// Remediation maps a chain or wallet error to a user-facing next step. It
// returns an empty string when the error has no known fix.
func Remediation(err error, network *ChainConfig) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "insufficient funds"):
		if network != nil && network.FaucetURL != "" {
			return fmt.Sprintf("Your wallet does not have enough %s to cover gas and value. Get test funds from %s.", network.NativeCurrency, network.FaucetURL)
		}
		return "Your wallet does not have enough funds to cover gas and value."
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return "The request was rejected in your wallet. Confirm the transaction to continue."
	case strings.Contains(msg, "chain id mismatch"), strings.Contains(msg, "invalid chain id"), strings.Contains(msg, "wrong network"):
		if network != nil {
			return fmt.Sprintf("Switch your wallet to %s (chain id %d).", network.Name, network.ChainIDInt)
		}
		return "Switch your wallet to the configured network."
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "already known"):
		return "A transaction with this nonce was already sent. Refresh your wallet and retry."
	case strings.Contains(msg, "execution reverted"):
		return "The contract rejected this call. Check the amount and your token balance."
	case strings.Contains(msg, "failed to connect"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "deadline exceeded"):
		if network != nil {
			return fmt.Sprintf("The %s RPC endpoint is unreachable. Try again shortly.", network.Name)
		}
		return "The RPC endpoint is unreachable. Try again shortly."
	}
	return ""
}

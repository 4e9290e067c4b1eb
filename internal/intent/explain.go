package intent

import "fmt"

// Explain renders an intent as one sentence for the chat transcript.
func Explain(in Intent) string {
	if in.Failed() {
		if in.Error != "" {
			return in.Error
		}
		return unparseableMessage
	}

	amount := in.Amount.String()
	if amount == "" {
		amount = "some"
	}
	token := in.Token
	if token == "" {
		token = "tokens"
	}

	switch in.Action {
	case ActionStake:
		return fmt.Sprintf("You want to stake %s %s in the staking vault.", amount, token)
	case ActionUnstake:
		return fmt.Sprintf("You want to unstake %s %s from the staking vault.", amount, token)
	case ActionSwap:
		target := in.TargetToken
		if target == "" {
			target = "another token"
		}
		return fmt.Sprintf("You want to swap %s %s for %s.", amount, token, target)
	case ActionMint:
		return "You want to mint a new NFT to your wallet."
	case ActionDelegate:
		if in.Recipient != "" {
			return fmt.Sprintf("You want to delegate your voting power to %s.", in.Recipient)
		}
		return "You want to delegate your voting power to the default validator."
	case ActionTransfer:
		to := in.Recipient
		if to == "" {
			to = "a recipient you have not named yet"
		}
		return fmt.Sprintf("You want to send %s %s to %s.", amount, token, to)
	}
	return unparseableMessage
}

const unparseableMessage = `I couldn't work out what you want to do. Try "swap 100 USDC for ETH", "stake 1 ETH" or "send 10 USDC to 0x…".`

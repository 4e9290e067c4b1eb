// Package intent turns free-form chat text into a structured request.
package intent

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Action is the kind of on-chain operation a user asked for.
type Action string

const (
	ActionStake    Action = "stake"
	ActionUnstake  Action = "unstake"
	ActionSwap     Action = "swap"
	ActionMint     Action = "mint"
	ActionDelegate Action = "delegate"
	ActionTransfer Action = "transfer"
	ActionUnknown  Action = "unknown"
)

// Actions lists every action a parser may return.
var Actions = []Action{ActionStake, ActionUnstake, ActionSwap, ActionMint, ActionDelegate, ActionTransfer, ActionUnknown}

// ParseAction validates an action name.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a, true
		}
	}
	return ActionUnknown, false
}

var decimalRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Amount is an exact non-negative decimal. It is a JSON number on the wire
// and accepts either a number or a numeric string on input.
type Amount string

// ParseAmount validates s as a plain decimal.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if !decimalRe.MatchString(s) {
		return "", fmt.Errorf("invalid amount %q", s)
	}
	return Amount(s), nil
}

func (a Amount) String() string { return string(a) }

// Rat returns the exact value, or nil for an empty amount.
func (a Amount) Rat() *big.Rat {
	if a == "" {
		return nil
	}
	r, ok := new(big.Rat).SetString(string(a))
	if !ok {
		return nil
	}
	return r
}

// IsZero reports whether the amount is absent or equal to zero.
func (a Amount) IsZero() bool {
	r := a.Rat()
	return r == nil || r.Sign() == 0
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	return []byte(a), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*a = ""
		return nil
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Intent is the structured form of a chat request. A non-empty Error means
// the text could not be understood; Action is then ActionUnknown.
type Intent struct {
	Action      Action `json:"action"`
	Amount      Amount `json:"amount,omitempty"`
	Token       string `json:"token,omitempty"`
	TargetToken string `json:"targetToken,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the intent carries no usable action.
func (in Intent) Failed() bool {
	return in.Error != "" || in.Action == ActionUnknown || in.Action == ""
}

// Source says which strategy produced a Result.
type Source string

const (
	SourceLocal Source = "local"
	SourceLLM   Source = "llm"
)

// Result is a parsed intent plus how much to trust it.
type Result struct {
	Intent      Intent
	Source      Source
	Confidence  float64
	Explanation string
	// Degraded is set when the model path failed and the local rules answered.
	Degraded bool
}

// Parser turns text into an intent. Implementations never fail; problems are
// reported through Intent.Error.
type Parser interface {
	Parse(ctx context.Context, text string) Result
}

// Confidence levels reported with each result.
const (
	ConfidenceLLM         = 0.95
	ConfidenceWithAmount  = 0.8
	ConfidenceActionOnly  = 0.6
	ConfidenceUnparseable = 0.0
)

func localConfidence(in Intent) float64 {
	switch {
	case in.Failed():
		return ConfidenceUnparseable
	case in.Amount != "":
		return ConfidenceWithAmount
	default:
		return ConfidenceActionOnly
	}
}

package intent

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatchain/internal/chain"
)

var (
	addressRe = regexp.MustCompile(`\b0x[0-9a-fA-F]{40}\b`)
	amountRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// keyword groups in the order they are tried; the first hit wins.
var actionKeywords = []struct {
	action   Action
	keywords []string
}{
	{ActionStake, []string{"stake"}},
	{ActionSwap, []string{"swap", "exchange", "trade"}},
	{ActionMint, []string{"mint", "nft"}},
	{ActionDelegate, []string{"delegate", "voting"}},
	{ActionTransfer, []string{"transfer", "send"}},
}

var targetPrepositions = map[string]bool{"for": true, "to": true, "into": true}

// LocalParser recognises intents with keyword and pattern rules. It is
// deterministic and never leaves the process.
type LocalParser struct{}

// NewLocalParser returns the rule-based parser.
func NewLocalParser() *LocalParser {
	return &LocalParser{}
}

// Parse implements Parser.
func (p *LocalParser) Parse(_ context.Context, text string) Result {
	in := Match(text)
	return Result{
		Intent:      in,
		Source:      SourceLocal,
		Confidence:  localConfidence(in),
		Explanation: Explain(in),
	}
}

// Match applies the keyword rules to text.
func Match(text string) Intent {
	lower := strings.ToLower(text)

	action := ActionUnknown
	for _, group := range actionKeywords {
		if containsAny(lower, group.keywords) {
			action = group.action
			break
		}
	}
	if action == ActionStake && strings.Contains(lower, "unstake") {
		action = ActionUnstake
	}
	if action == ActionUnknown {
		return Intent{Action: ActionUnknown, Error: unparseableMessage}
	}

	in := Intent{Action: action}

	address := addressRe.FindString(text)
	withoutAddresses := addressRe.ReplaceAllString(lower, " ")

	if m := amountRe.FindString(withoutAddresses); m != "" {
		in.Amount = Amount(m)
	}

	source, target := findTokens(withoutAddresses)
	in.Token = source
	if action == ActionSwap {
		in.TargetToken = target
	}

	if address != "" && (action == ActionTransfer || action == ActionDelegate) {
		in.Recipient = common.HexToAddress(address).Hex()
	}

	return in
}

// findTokens returns the first token symbol in the text and the token named
// after a "for", "to" or "into".
func findTokens(lower string) (source, target string) {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	targetIdx := -1
	for i := 0; i+1 < len(words); i++ {
		if !targetPrepositions[words[i]] {
			continue
		}
		if sym := tokenSymbol(words[i+1]); sym != "" {
			target = sym
			targetIdx = i + 1
			break
		}
	}

	for i, w := range words {
		if i == targetIdx {
			continue
		}
		if sym := tokenSymbol(w); sym != "" {
			source = sym
			break
		}
	}
	return source, target
}

// tokenSymbol maps a word like "usdc" or "100usdc" to a registry symbol.
func tokenSymbol(word string) string {
	w := strings.TrimLeft(word, "0123456789")
	for _, sym := range chain.TokenSymbols {
		if w == strings.ToLower(sym) {
			return sym
		}
	}
	return ""
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

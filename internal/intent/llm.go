package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yolodolo42/chatchain/internal/llm"
)

// SubmitIntentTool is the tool the model is forced to call with its answer.
const SubmitIntentTool = "submit_intent"

const systemPrompt = `You convert a single chat message into a blockchain action for a demo wallet.
Call submit_intent exactly once.
Allowed actions: stake, unstake, swap, mint, delegate, transfer, unknown.
Supported tokens: USDC, USDT, DAI, WETH, ETH, BDAG. Use upper-case symbols.
amount is the number the user typed, without units. Never invent amounts, tokens or addresses.
For swaps, token is what the user gives and targetToken what they receive.
For transfers and delegations, recipient is the 0x address in the message, if any.
If the request is not one of the allowed actions, use action "unknown" and explain why in error.`

const degradedNote = " (The AI assistant is unavailable, so this was read with basic rules.)"

const defaultLLMTimeout = 15 * time.Second

func intentTool() llm.Tool {
	actions := make([]string, len(Actions))
	for i, a := range Actions {
		actions[i] = string(a)
	}
	return llm.NewTool(SubmitIntentTool, "Submit the structured intent extracted from the user's message.", llm.JSONSchema{
		Type: "object",
		Properties: map[string]llm.Property{
			"action":      {Type: "string", Enum: actions, Description: "The requested action"},
			"amount":      {Type: "number", Description: "Amount of token, as typed by the user"},
			"token":       {Type: "string", Description: "Symbol of the token being spent, staked or sent"},
			"targetToken": {Type: "string", Description: "Symbol of the token received in a swap"},
			"recipient":   {Type: "string", Description: "0x address receiving a transfer or delegation"},
			"error":       {Type: "string", Description: "Why the request could not be handled, for action unknown"},
		},
		Required: []string{"action"},
	})
}

// LLMParser asks a language model for the intent and falls back to the local
// rules whenever the model cannot give a usable answer.
type LLMParser struct {
	provider llm.Provider
	fallback *LocalParser
	logger   *slog.Logger
	timeout  time.Duration
}

// LLMOption configures an LLMParser.
type LLMOption func(*LLMParser)

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *slog.Logger) LLMOption {
	return func(p *LLMParser) { p.logger = l }
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) LLMOption {
	return func(p *LLMParser) { p.timeout = d }
}

// NewLLMParser wraps provider. A nil provider makes every call fall back.
func NewLLMParser(provider llm.Provider, opts ...LLMOption) *LLMParser {
	p := &LLMParser{
		provider: provider,
		fallback: NewLocalParser(),
		logger:   slog.Default(),
		timeout:  defaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// New picks the parsing strategy once: the model when a provider is
// configured, the local rules otherwise.
func New(provider llm.Provider, opts ...LLMOption) Parser {
	if provider == nil {
		return NewLocalParser()
	}
	return NewLLMParser(provider, opts...)
}

// Parse implements Parser.
func (p *LLMParser) Parse(ctx context.Context, text string) Result {
	in, err := p.extract(ctx, text)
	if err != nil {
		p.logger.Warn("llm intent extraction failed, using local rules", "error", err)
		res := p.fallback.Parse(ctx, text)
		res.Degraded = true
		res.Explanation += degradedNote
		return res
	}
	return Result{
		Intent:      in,
		Source:      SourceLLM,
		Confidence:  ConfidenceLLM,
		Explanation: Explain(in),
	}
}

func (p *LLMParser) extract(ctx context.Context, text string) (Intent, error) {
	if p.provider == nil {
		return Intent{}, errors.New("no llm provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := &llm.ChatRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		MaxTokens:    512,
	}
	if p.provider.SupportsTools() {
		req.Tools = []llm.Tool{intentTool()}
		req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceForce, Name: SubmitIntentTool}
	} else {
		req.SystemPrompt += "\nReply with only a JSON object with the fields action, amount, token, targetToken, recipient and error."
	}

	resp, err := p.provider.Chat(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("%s: %w", p.provider.Name(), err)
	}

	var raw json.RawMessage
	if tc, ok := resp.FindToolCall(SubmitIntentTool); ok {
		raw = tc.Input
	} else {
		raw = llm.ExtractJSON(resp.Content)
	}
	if raw == nil {
		return Intent{}, errors.New("model returned no intent")
	}
	return decodeModelIntent(raw)
}

type modelIntent struct {
	Action      string `json:"action"`
	Amount      Amount `json:"amount"`
	Token       string `json:"token"`
	TargetToken string `json:"targetToken"`
	Recipient   string `json:"recipient"`
	Error       string `json:"error"`
}

func decodeModelIntent(raw json.RawMessage) (Intent, error) {
	var m modelIntent
	if err := json.Unmarshal(raw, &m); err != nil {
		return Intent{}, fmt.Errorf("decode model intent: %w", err)
	}

	action, ok := ParseAction(m.Action)
	if !ok {
		return Intent{}, fmt.Errorf("model returned unknown action %q", m.Action)
	}

	in := Intent{
		Action:      action,
		Amount:      m.Amount,
		Token:       strings.ToUpper(strings.TrimSpace(m.Token)),
		TargetToken: strings.ToUpper(strings.TrimSpace(m.TargetToken)),
		Error:       strings.TrimSpace(m.Error),
	}
	if m.Recipient != "" {
		if !common.IsHexAddress(m.Recipient) {
			return Intent{}, fmt.Errorf("model returned invalid recipient %q", m.Recipient)
		}
		in.Recipient = common.HexToAddress(m.Recipient).Hex()
	}

	if action == ActionUnknown {
		if in.Error == "" {
			in.Error = unparseableMessage
		}
		return Intent{Action: ActionUnknown, Error: in.Error}, nil
	}
	in.Error = ""
	return in, nil
}

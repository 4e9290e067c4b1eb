package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/metrics"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/tx"
)

// InterpretRequest asks for a parse without recording anything.
type InterpretRequest struct {
	Message       string
	WalletAddress string
	Context       string
}

// Interpretation is a parsed prompt and, when it maps cleanly, the call it
// would produce.
type Interpretation struct {
	Parse          intent.Result
	Transaction    *tx.PreparedTransaction
	RequiresWallet bool
	Explanation    string
}

// Interpret parses message and prepares a transaction for it. Mapping
// problems are folded into the explanation rather than returned.
func (a *Agent) Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyPrompt
	}
	from, err := parseAddress("walletAddress", req.WalletAddress)
	if err != nil {
		return nil, err
	}

	res := a.parse(ctx, text)
	out := &Interpretation{Parse: res, Explanation: res.Explanation}
	if res.Intent.Failed() {
		return out, nil
	}

	prepared, err := a.mapper.Map(res.Intent, from)
	if err != nil {
		a.logger.Info("intent could not be mapped", "action", res.Intent.Action, "error", err)
		out.Explanation += " " + mappingMessage(err)
		return out, nil
	}
	out.Transaction = prepared
	out.RequiresWallet = true
	return out, nil
}

// SubmitRequest is one chat turn.
type SubmitRequest struct {
	Prompt      string
	SessionID   string
	UserAddress string
}

// Turn is a recorded chat turn with its prepared and simulated transaction.
type Turn struct {
	SessionID  string
	Log        store.IntentLog
	Parse      intent.Result
	Prepared   *tx.PreparedTransaction
	Simulation simulate.Result
	Messages   []store.ChatMessage
}

// Submit runs the full pipeline for prompt: parse, map, simulate, then record
// the intent log and both sides of the chat. A prompt that cannot become a
// transaction returns a *TurnError carrying the recorded messages.
func (a *Agent) Submit(ctx context.Context, req SubmitRequest) (*Turn, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	from, err := parseAddress("userAddress", req.UserAddress)
	if err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	userMsg, err := a.store.CreateChatMessage(ctx, store.ChatMessage{
		SessionID: sessionID,
		Content:   prompt,
		IsUser:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("record prompt: %w", err)
	}
	messages := []store.ChatMessage{userMsg}

	res := a.parse(ctx, prompt)
	if res.Intent.Failed() {
		return nil, a.rejectTurn(ctx, sessionID, messages, res.Explanation, errors.New(res.Explanation))
	}

	prepared, err := a.mapper.Map(res.Intent, from)
	if err != nil {
		return nil, a.rejectTurn(ctx, sessionID, messages, mappingMessage(err), err)
	}

	sim := a.Simulate(ctx, simulate.Call{
		From:  from,
		To:    prepared.To,
		Data:  prepared.Data,
		Value: prepared.Value,
	})

	entry, err := a.store.CreateIntentLog(ctx, store.IntentLog{
		SessionID:       sessionID,
		UserAddress:     userAddress(from),
		Prompt:          prompt,
		Intent:          res.Intent,
		ResponseText:    res.Explanation,
		ContractAddress: prepared.To.Hex(),
		FunctionName:    prepared.FunctionName,
		GasEstimate:     strconv.FormatUint(sim.GasEstimate, 10),
		RiskLevel:       string(sim.RiskLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("record intent: %w", err)
	}

	reply, err := a.store.CreateChatMessage(ctx, store.ChatMessage{
		SessionID:          sessionID,
		Content:            replyText(res.Explanation, prepared, sim),
		RelatedIntentLogID: entry.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("record reply: %w", err)
	}

	a.logger.Info("intent recorded",
		"intent_id", entry.ID,
		"session_id", sessionID,
		"action", res.Intent.Action,
		"source", res.Source,
		"risk", sim.RiskLevel,
	)

	return &Turn{
		SessionID:  sessionID,
		Log:        entry,
		Parse:      res,
		Prepared:   prepared,
		Simulation: sim,
		Messages:   append(messages, reply),
	}, nil
}

// Simulate runs the configured simulator and records metrics.
func (a *Agent) Simulate(ctx context.Context, call simulate.Call) simulate.Result {
	res := a.simulator.Simulate(ctx, call)
	metrics.Simulations.WithLabelValues(res.Strategy, string(res.RiskLevel)).Inc()
	if res.Degraded {
		metrics.SimulationFallbacks.Inc()
	}
	if res.IsValid {
		metrics.SimulationGas.Observe(float64(res.GasEstimate))
	}
	return res
}

func (a *Agent) parse(ctx context.Context, text string) intent.Result {
	res := a.parser.Parse(ctx, text)
	metrics.IntentsParsed.WithLabelValues(string(res.Intent.Action), string(res.Source)).Inc()
	if res.Degraded {
		metrics.ParserFallbacks.Inc()
	}
	return res
}

func (a *Agent) rejectTurn(ctx context.Context, sessionID string, messages []store.ChatMessage, reply string, cause error) error {
	msg, err := a.store.CreateChatMessage(ctx, store.ChatMessage{
		SessionID: sessionID,
		Content:   reply,
	})
	if err != nil {
		a.logger.Warn("failed to record reply", "session_id", sessionID, "error", err)
	} else {
		messages = append(messages, msg)
	}
	return &TurnError{Err: cause, SessionID: sessionID, Messages: messages}
}

func mappingMessage(err error) string {
	switch {
	case errors.Is(err, tx.ErrUnsupportedToken):
		return "That token is not available on this network."
	case errors.Is(err, tx.ErrUnsupportedAction):
		return "That action is not supported yet."
	case errors.Is(err, tx.ErrUnsupportedPair):
		return "Those two tokens cannot be swapped for each other."
	case errors.Is(err, tx.ErrMissingParameter):
		return fmt.Sprintf("Some details are missing: %v.", err)
	case errors.Is(err, tx.ErrInvalidAmount):
		return fmt.Sprintf("The amount is not valid: %v.", err)
	}
	return fmt.Sprintf("I could not prepare that transaction: %v.", err)
}

func replyText(explanation string, p *tx.PreparedTransaction, sim simulate.Result) string {
	var b strings.Builder
	b.WriteString(explanation)
	fmt.Fprintf(&b, " Ready to go: %s", p.Description)
	if sim.IsValid {
		fmt.Fprintf(&b, " Estimated gas: %d.", sim.GasEstimate)
	}
	if sim.Recommendation != "" {
		b.WriteString(" ")
		b.WriteString(sim.Recommendation)
	}
	return b.String()
}

func userAddress(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

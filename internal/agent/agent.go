// Package agent runs the chat-to-transaction pipeline: parse, map, simulate,
// record and, once confirmed, submit and track.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/tx"
)

// Deps are the collaborators every Agent needs.
type Deps struct {
	Parser    intent.Parser
	Mapper    *tx.Mapper
	Simulator simulate.Simulator
	Store     store.Repository
	Backend   chain.Backend
	Network   *chain.ChainConfig
	Logger    *slog.Logger
}

// Agent orchestrates one chat turn at a time. It is safe for concurrent use.
// Logs live in the store; only one SendForIntent per intent runs at a time.
type Agent struct {
	parser    intent.Parser
	mapper    *tx.Mapper
	simulator simulate.Simulator
	store     store.Repository
	backend   chain.Backend
	network   *chain.ChainConfig
	logger    *slog.Logger

	relayer      *tx.Relayer
	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time

	// claims holds the ids of intents a SendForIntent call is working on.
	claims sync.Map

	// stop cancels background receipt tracking on Close.
	stop     context.CancelFunc
	stopCtx  context.Context
	tracking sync.WaitGroup
}

// Option customises an Agent.
type Option func(*Agent)

// WithRelayer lets SendForIntent sign and broadcast when the caller supplies
// no transaction.
func WithRelayer(r *tx.Relayer) Option {
	return func(a *Agent) { a.relayer = r }
}

// WithPolling sets the receipt polling budget used after submission.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(a *Agent) {
		a.pollAttempts = attempts
		a.pollInterval = interval
	}
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New wires an Agent. Parser, Mapper, Simulator, Store and Backend are required.
func New(deps Deps, opts ...Option) (*Agent, error) {
	switch {
	case deps.Parser == nil:
		return nil, fmt.Errorf("agent: parser is required")
	case deps.Mapper == nil:
		return nil, fmt.Errorf("agent: mapper is required")
	case deps.Simulator == nil:
		return nil, fmt.Errorf("agent: simulator is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("agent: store is required")
	case deps.Backend == nil:
		return nil, fmt.Errorf("agent: backend is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	network := deps.Network
	if network == nil {
		var err error
		if network, err = chain.LookupChain(chain.DefaultNetwork); err != nil {
			return nil, err
		}
	}

	stopCtx, stop := context.WithCancel(context.Background())
	a := &Agent{
		parser:       deps.Parser,
		mapper:       deps.Mapper,
		simulator:    deps.Simulator,
		store:        deps.Store,
		backend:      deps.Backend,
		network:      network,
		logger:       logger.With("component", "agent"),
		pollAttempts: chain.DefaultPollAttempts,
		pollInterval: chain.DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		stop:         stop,
		stopCtx:      stopCtx,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Network describes the chain the agent sends to.
func (a *Agent) Network() *chain.ChainConfig {
	return a.network
}

// HasRelayer reports whether a server-held key can submit transactions.
func (a *Agent) HasRelayer() bool {
	return a.relayer != nil
}

// Close stops receipt tracking and waits for in-flight trackers to finish
// their last write.
func (a *Agent) Close() {
	a.stop()
	a.tracking.Wait()
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrInvalidInput, field, s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q is not a transaction hash", ErrInvalidInput, s)
	}
	return common.BytesToHash(b), nil
}

func parseHex(field, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not 0x-prefixed hex", ErrInvalidInput, field)
	}
	return b, nil
}

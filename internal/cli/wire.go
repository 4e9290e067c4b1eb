package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/auth"
	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/config"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/llm"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/tx"
	"github.com/yolodolo42/chatchain/internal/wallet"
)

// runtime is the assembled pipeline shared by serve and chat.
type runtime struct {
	agent   *agent.Agent
	store   store.Repository
	network *chain.ChainConfig
	// parser describes the parsing strategy, e.g. "local" or "anthropic/claude-...".
	parser  string
	relayer string
	closers []func()
}

// Close stops receipt tracking before releasing the store and RPC client.
func (r *runtime) Close() {
	if r.agent != nil {
		r.agent.Close()
	}
	r.runClosers()
}

// buildRuntime wires the configured backend, parser, simulator, store and
// optional relayer into an agent. backend may be nil, in which case an RPC
// client for the configured network is dialed lazily.
func buildRuntime(ctx context.Context, cfg config.Config, keys *auth.Manager, backend chain.Backend, logger *slog.Logger) (*runtime, error) {
	network, err := cfg.Network()
	if err != nil {
		return nil, err
	}
	rt := &runtime{network: network, parser: "local"}

	if backend == nil {
		client := chain.NewClient(network)
		rt.closers = append(rt.closers, client.Close)
		backend = client
	}

	parser, desc, err := buildParser(ctx, cfg, keys, logger)
	if err != nil {
		rt.runClosers()
		return nil, err
	}
	rt.parser = desc

	local := simulate.NewLocal(backend, network, simulate.WithGasThreshold(cfg.Simulation.GasThreshold))
	simulator := simulate.New(local, cfg.Remote(network), logger)

	repo, err := openStore(cfg.Store)
	if err != nil {
		rt.runClosers()
		return nil, err
	}
	rt.store = repo
	rt.closers = append(rt.closers, func() {
		if err := repo.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	})

	opts := []agent.Option{agent.WithPolling(cfg.Receipts.PollAttempts, cfg.Receipts.PollInterval)}
	if cfg.Relayer.PrivateKey != "" {
		relayer, err := buildRelayer(cfg, backend, network)
		if err != nil {
			rt.runClosers()
			return nil, err
		}
		rt.relayer = relayer.Address().Hex()
		opts = append(opts, agent.WithRelayer(relayer))
	}

	ag, err := agent.New(agent.Deps{
		Parser:    parser,
		Mapper:    tx.NewMapper(cfg.MapperOptions()...),
		Simulator: simulator,
		Store:     repo,
		Backend:   backend,
		Network:   network,
		Logger:    logger,
	}, opts...)
	if err != nil {
		rt.runClosers()
		return nil, err
	}
	rt.agent = ag
	return rt, nil
}

func (r *runtime) runClosers() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// buildParser uses the hosted model when a provider key can be resolved and
// the local rules otherwise.
func buildParser(ctx context.Context, cfg config.Config, keys *auth.Manager, logger *slog.Logger) (intent.Parser, string, error) {
	if keys == nil {
		return intent.NewLocalParser(), "local", nil
	}
	var preferred llm.ProviderID
	if cfg.LLM.Provider != "" {
		id, err := llm.ParseProviderID(cfg.LLM.Provider)
		if err != nil {
			return nil, "", err
		}
		preferred = id
	}

	id, key, ok := keys.Resolve(preferred)
	if !ok {
		logger.Info("no LLM credentials found, using local intent rules")
		return intent.NewLocalParser(), "local", nil
	}

	model := ""
	if id == preferred {
		model = cfg.LLM.Model
	}
	provider, err := llm.NewProvider(ctx, id, key, model)
	if err != nil {
		return nil, "", err
	}
	parser := intent.New(provider,
		intent.WithLogger(logger.With("component", "intent")),
		intent.WithTimeout(cfg.LLM.Timeout),
	)
	if model == "" {
		model = provider.DefaultModel()
	}
	return parser, fmt.Sprintf("%s/%s", id, model), nil
}

func openStore(cfg config.StoreConfig) (store.Repository, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.DSN)
	case config.DriverMemory, "":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func buildRelayer(cfg config.Config, backend chain.Backend, network *chain.ChainConfig) (*tx.Relayer, error) {
	signer, err := wallet.NewKeySigner(cfg.Relayer.PrivateKey)
	if err != nil {
		return nil, errors.New("relayer.private_key is not a valid private key")
	}
	maxWei, err := cfg.RelayerMaxValue()
	if err != nil {
		return nil, err
	}
	return tx.NewRelayer(backend, signer, network.ChainID, tx.RegistryPolicy(maxWei)), nil
}

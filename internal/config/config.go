// Package config turns viper settings into the typed runtime configuration.
package config

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/llm"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/tx"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// DefaultRelayerMaxWei caps relayed native value at 0.1 of the native token.
const DefaultRelayerMaxWei = "100000000000000000"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Chain      ChainSettings    `mapstructure:"chain"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Relayer    RelayerConfig    `mapstructure:"relayer"`
	Store      StoreConfig      `mapstructure:"store"`
	Receipts   ReceiptConfig    `mapstructure:"receipts"`
	Mapper     MapperConfig     `mapstructure:"mapper"`
}

type ServerConfig struct {
	Addr           string          `mapstructure:"addr"`
	Environment    string          `mapstructure:"environment"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ChainSettings struct {
	Name   string `mapstructure:"name"`
	RPCURL string `mapstructure:"rpc_url"`
}

// LLMConfig selects the hosted model. API keys are resolved by auth.Manager.
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SimulationConfig struct {
	GasThreshold uint64         `mapstructure:"gas_threshold"`
	Tenderly     TenderlyConfig `mapstructure:"tenderly"`
}

type TenderlyConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Account   string `mapstructure:"account"`
	Project   string `mapstructure:"project"`
	AccessKey string `mapstructure:"access_key"`
}

type RelayerConfig struct {
	PrivateKey  string `mapstructure:"private_key"`
	MaxValueWei string `mapstructure:"max_value_wei"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ReceiptConfig struct {
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MapperConfig tunes transaction building. SlippageBps 0 leaves
// amountOutMin at zero.
type MapperConfig struct {
	SlippageBps  uint64        `mapstructure:"slippage_bps"`
	Deadline     time.Duration `mapstructure:"deadline"`
	DefaultToken string        `mapstructure:"default_token"`
}

// SetDefaults registers defaults and the environment names deployments
// already use.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit.rps", 2.0)
	v.SetDefault("server.rate_limit.burst", 10)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("chain.name", chain.DefaultNetwork)
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", 20*time.Second)
	v.SetDefault("simulation.gas_threshold", simulate.DefaultGasThreshold)
	v.SetDefault("simulation.tenderly.base_url", simulate.DefaultRemoteBaseURL)
	v.SetDefault("relayer.max_value_wei", DefaultRelayerMaxWei)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "chatchain.db")
	v.SetDefault("receipts.poll_attempts", chain.DefaultPollAttempts)
	v.SetDefault("receipts.poll_interval", chain.DefaultPollInterval)
	v.SetDefault("mapper.slippage_bps", 0)
	v.SetDefault("mapper.deadline", tx.DefaultDeadline)
	v.SetDefault("mapper.default_token", "BDAG")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bind(v, "server.addr", "SERVER_ADDR")
	bind(v, "server.environment", "SERVER_ENVIRONMENT", "APP_ENV")
	bind(v, "chain.rpc_url", "CHAIN_RPC_URL", "RPC_URL")
	bind(v, "simulation.tenderly.account", "SIMULATION_TENDERLY_ACCOUNT", "TENDERLY_ACCOUNT")
	bind(v, "simulation.tenderly.project", "SIMULATION_TENDERLY_PROJECT", "TENDERLY_PROJECT")
	bind(v, "simulation.tenderly.access_key", "SIMULATION_TENDERLY_ACCESS_KEY", "TENDERLY_ACCESS_KEY")
	bind(v, "relayer.private_key", "RELAYER_PRIVATE_KEY")
}

func bind(v *viper.Viper, key string, envs ...string) {
	_ = v.BindEnv(append([]string{key}, envs...)...)
}

// Load reads v into a Config and validates it. PORT, when set, overrides
// the listen address.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if port := v.GetString("port"); port != "" {
		cfg.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot start with.
func (c Config) Validate() error {
	if _, err := chain.LookupChain(c.Chain.Name); err != nil {
		return err
	}
	if c.LLM.Provider != "" {
		id, err := llm.ParseProviderID(c.LLM.Provider)
		if err != nil {
			return err
		}
		if c.LLM.Model != "" {
			if err := llm.ValidateModelID(c.LLM.Model, llm.ModelsFor(id)); err != nil {
				return fmt.Errorf("llm.model: %w", err)
			}
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := c.RelayerMaxValue(); err != nil {
		return err
	}
	if c.Receipts.PollAttempts <= 0 || c.Receipts.PollInterval <= 0 {
		return fmt.Errorf("receipts.poll_attempts and receipts.poll_interval must be positive")
	}
	if c.Mapper.SlippageBps >= 10_000 {
		return fmt.Errorf("mapper.slippage_bps must be below 10000, got %d", c.Mapper.SlippageBps)
	}
	if c.Mapper.Deadline <= 0 {
		return fmt.Errorf("mapper.deadline must be positive")
	}
	if _, ok := chain.LookupToken(c.Mapper.DefaultToken); !ok {
		return fmt.Errorf("mapper.default_token %q is not a registry token", c.Mapper.DefaultToken)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// MapperOptions returns the tx.Mapper settings.
func (c Config) MapperOptions() []tx.MapperOption {
	return []tx.MapperOption{
		tx.WithSlippageBps(c.Mapper.SlippageBps),
		tx.WithDeadline(c.Mapper.Deadline),
		tx.WithDefaultToken(c.Mapper.DefaultToken),
	}
}

// Network returns the configured chain with any RPC override dialed first.
func (c Config) Network() (*chain.ChainConfig, error) {
	network, err := chain.LookupChain(c.Chain.Name)
	if err != nil {
		return nil, err
	}
	return network.WithRPCURL(c.Chain.RPCURL), nil
}

// Remote returns the remote simulator settings; it is disabled unless the
// account, project and access key are all set.
func (c Config) Remote(network *chain.ChainConfig) simulate.RemoteConfig {
	return simulate.RemoteConfig{
		BaseURL:   c.Simulation.Tenderly.BaseURL,
		Account:   c.Simulation.Tenderly.Account,
		Project:   c.Simulation.Tenderly.Project,
		AccessKey: c.Simulation.Tenderly.AccessKey,
		NetworkID: network.ChainID.String(),
		Threshold: c.Simulation.GasThreshold,
	}
}

// RelayerMaxValue parses the relayer value cap.
func (c Config) RelayerMaxValue() (*big.Int, error) {
	maxWei, ok := new(big.Int).SetString(c.Relayer.MaxValueWei, 10)
	if !ok || maxWei.Sign() < 0 {
		return nil, fmt.Errorf("invalid relayer.max_value_wei %q", c.Relayer.MaxValueWei)
	}
	return maxWei, nil
}

// LogLevel maps log.level onto slog.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return level, nil
}

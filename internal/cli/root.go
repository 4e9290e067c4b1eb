package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yolodolo42/chatchain/internal/config"
)

const appDir = ".chatchain"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "chatchain",
		Short: "Chat-driven transaction backend for EVM testnets",
		Long: `chatchain turns plain-language requests into prepared, simulated
contract calls and tracks them once a wallet or the relayer sends them.

Run 'chatchain serve' for the HTTP API or 'chatchain chat' for a terminal
session over the same pipeline.`,
		SilenceUsage: true,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.chatchain/config.yaml)")
	rootCmd.PersistentFlags().String("chain", "", "network to use (blockdag-testnet, sepolia, base-sepolia)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("chain.name", rootCmd.PersistentFlags().Lookup("chain"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir, err := dataDir(); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Silently ignore missing config file - it's optional
	_ = viper.ReadInConfig()
}

// dataDir returns ~/.chatchain, creating it when needed.
func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, appDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create config directory: %w", err)
	}
	return dir, nil
}

// loadConfig builds the typed config and the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}

// fileLogger writes JSON logs to name under the data dir, discarding them
// when the file cannot be opened.
func fileLogger(cfg config.Config, name string) (*slog.Logger, func()) {
	level, _ := cfg.LogLevel()
	opts := &slog.HandlerOptions{Level: level}

	dir, err := dataDir()
	if err != nil {
		return slog.New(slog.NewJSONHandler(io.Discard, opts)), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return slog.New(slog.NewJSONHandler(io.Discard, opts)), func() {}
	}
	return slog.New(slog.NewJSONHandler(f, opts)), func() { _ = f.Close() }
}

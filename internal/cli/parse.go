package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/config"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/simulate"
)

var parseCmd = &cobra.Command{
	Use:   `parse "<request>"`,
	Short: "Parse a request and print the prepared transaction as JSON",
	Example: `  chatchain parse "swap 10 USDC for ETH"
  chatchain parse --simulate --wallet 0x... "stake 5 BDAG"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().String("wallet", "", "sender address for the prepared call")
	parseCmd.Flags().Bool("simulate", false, "also simulate the call against the configured network")
}

type parseOutput struct {
	Intent      intent.Intent   `json:"intent"`
	Source      intent.Source   `json:"source"`
	Confidence  float64         `json:"confidence"`
	Degraded    bool            `json:"degraded,omitempty"`
	Explanation string          `json:"explanation"`
	Transaction *parsedTx       `json:"transaction,omitempty"`
	Simulation  *parsedSimulate `json:"simulation,omitempty"`
}

type parsedTx struct {
	To           string   `json:"to"`
	Data         string   `json:"data"`
	Value        string   `json:"value"`
	Contract     string   `json:"contract"`
	FunctionName string   `json:"functionName"`
	Params       []string `json:"params"`
	Description  string   `json:"description"`
}

type parsedSimulate struct {
	IsValid        bool   `json:"isValid"`
	GasEstimate    uint64 `json:"gasEstimate"`
	RiskLevel      string `json:"riskLevel"`
	Recommendation string `json:"recommendation"`
	Error          string `json:"error,omitempty"`
	Strategy       string `json:"strategy"`
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	// Nothing is recorded; keep the sqlite file untouched.
	cfg.Store.Driver = config.DriverMemory

	logger, closeLog := fileLogger(cfg, "parse.log")
	defer closeLog()

	keys, err := authManager()
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cmd.Context(), cfg, keys, nil, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	wallet, _ := cmd.Flags().GetString("wallet")
	withSim, _ := cmd.Flags().GetBool("simulate")
	return interpret(cmd.Context(), rt.agent, strings.Join(args, " "), wallet, withSim, cmd.OutOrStdout(), logger)
}

func interpret(ctx context.Context, ag *agent.Agent, text, wallet string, withSim bool, w io.Writer, logger *slog.Logger) error {
	res, err := ag.Interpret(ctx, agent.InterpretRequest{Message: text, WalletAddress: wallet})
	if err != nil {
		return err
	}

	out := parseOutput{
		Intent:      res.Parse.Intent,
		Source:      res.Parse.Source,
		Confidence:  res.Parse.Confidence,
		Degraded:    res.Parse.Degraded,
		Explanation: res.Explanation,
	}
	if p := res.Transaction; p != nil {
		out.Transaction = &parsedTx{
			To:           p.To.Hex(),
			Data:         hexutil.Encode(p.Data),
			Value:        p.Value.String(),
			Contract:     p.Contract,
			FunctionName: p.FunctionName,
			Params:       p.Params,
			Description:  p.Description,
		}
		if withSim {
			sim := ag.Simulate(ctx, simulate.Call{
				From:  common.HexToAddress(wallet),
				To:    p.To,
				Data:  p.Data,
				Value: p.Value,
			})
			logger.Debug("simulated", "strategy", sim.Strategy, "gas", sim.GasEstimate)
			out.Simulation = &parsedSimulate{
				IsValid:        sim.IsValid,
				GasEstimate:    sim.GasEstimate,
				RiskLevel:      string(sim.RiskLevel),
				Recommendation: sim.Recommendation,
				Error:          sim.Error,
				Strategy:       sim.Strategy,
			}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

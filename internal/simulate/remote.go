package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultRemoteBaseURL is the Tenderly API endpoint.
const DefaultRemoteBaseURL = "https://api.tenderly.co"

// RemoteConfig identifies a Tenderly project.
type RemoteConfig struct {
	BaseURL   string
	Account   string
	Project   string
	AccessKey string
	NetworkID string
	Threshold uint64
}

// Enabled reports whether enough credentials are set to call the service.
func (c RemoteConfig) Enabled() bool {
	return c.Account != "" && c.Project != "" && c.AccessKey != ""
}

// Remote simulates through a Tenderly-compatible API and hands the call to a
// fallback simulator whenever the service cannot answer.
type Remote struct {
	cfg      RemoteConfig
	client   *http.Client
	fallback Simulator
	logger   *slog.Logger
}

// NewRemote returns a remote simulator. fallback must not be nil.
func NewRemote(cfg RemoteConfig, fallback Simulator, logger *slog.Logger) *Remote {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRemoteBaseURL
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultGasThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		cfg:      cfg,
		client:   &http.Client{Timeout: 15 * time.Second},
		fallback: fallback,
		logger:   logger,
	}
}

type remoteRequest struct {
	NetworkID      string `json:"network_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Input          string `json:"input"`
	Value          string `json:"value"`
	Gas            uint64 `json:"gas"`
	Save           bool   `json:"save"`
	SaveIfFails    bool   `json:"save_if_fails"`
	SimulationType string `json:"simulation_type"`
}

type remoteResponse struct {
	Transaction struct {
		Status       bool   `json:"status"`
		GasUsed      uint64 `json:"gas_used"`
		ErrorMessage string `json:"error_message"`
	} `json:"transaction"`
	Simulation struct {
		ID       string `json:"id"`
		GasPrice string `json:"gas_price"`
	} `json:"simulation"`
}

// Simulate implements Simulator.
func (r *Remote) Simulate(ctx context.Context, call Call) Result {
	res, err := r.simulate(ctx, call)
	if err != nil {
		r.logger.Warn("remote simulation failed, using local", "error", err)
		fb := r.fallback.Simulate(ctx, call)
		fb.Degraded = true
		fb.Logs = append(fb.Logs, "remote simulation unavailable: "+err.Error())
		return fb
	}
	return res
}

func (r *Remote) simulate(ctx context.Context, call Call) (Result, error) {
	body, err := json.Marshal(remoteRequest{
		NetworkID:      r.cfg.NetworkID,
		From:           call.From.Hex(),
		To:             call.To.Hex(),
		Input:          hexutil.Encode(call.Data),
		Value:          valueOrZero(call.Value).String(),
		Gas:            8_000_000,
		Save:           true,
		SaveIfFails:    true,
		SimulationType: "quick",
	})
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/api/v1/account/%s/project/%s/simulate", strings.TrimRight(r.cfg.BaseURL, "/"), r.cfg.Account, r.cfg.Project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Key", r.cfg.AccessKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("simulation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode simulation response: %w", err)
	}

	res := Result{
		IsValid:     out.Transaction.Status,
		GasEstimate: out.Transaction.GasUsed,
		Error:       out.Transaction.ErrorMessage,
		Strategy:    StrategyRemote,
		Logs:        []string{},
	}
	if out.Simulation.ID != "" {
		res.SimulationURL = fmt.Sprintf("https://dashboard.tenderly.co/%s/%s/simulator/%s", r.cfg.Account, r.cfg.Project, out.Simulation.ID)
	}
	if price, err := strconv.ParseUint(out.Simulation.GasPrice, 10, 64); err == nil && price > 0 {
		res.GasPrice = new(big.Int).SetUint64(price)
		res.GasCost = new(big.Int).Mul(res.GasPrice, new(big.Int).SetUint64(res.GasEstimate))
		res.GasCost.Add(res.GasCost, valueOrZero(call.Value))
	}
	if !res.IsValid && res.Error == "" {
		res.Error = "execution reverted"
	}

	res.RiskLevel = Classify(res.IsValid, res.GasEstimate, r.cfg.Threshold)
	res.Recommendation = Recommend(res.IsValid, res.RiskLevel, "")
	return res, nil
}

// New chooses the simulation strategy once: remote with local fallback when
// credentials are configured, local otherwise.
func New(local *Local, remote RemoteConfig, logger *slog.Logger) Simulator {
	if !remote.Enabled() {
		return local
	}
	if remote.Threshold == 0 {
		remote.Threshold = local.Threshold()
	}
	return NewRemote(remote, local, logger)
}

package server

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/chain"
	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/tx"
)

// Request payloads

type AIParseRequest struct {
	_             struct{} `json:"-" additionalProperties:"true"`
	Message       string   `json:"message" doc:"The user's chat message"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	Context       string   `json:"context,omitempty"`
}

type ParseIntentRequest struct {
	_           struct{} `json:"-" additionalProperties:"true"`
	Prompt      string   `json:"prompt"`
	SessionID   string   `json:"sessionId,omitempty"`
	UserAddress string   `json:"userAddress,omitempty"`
}

type SimulateRequest struct {
	_     struct{} `json:"-" additionalProperties:"true"`
	To    string   `json:"to" doc:"Destination address"`
	Data  string   `json:"data" doc:"0x-prefixed calldata"`
	Value string   `json:"value,omitempty" doc:"Value in wei, decimal or 0x-hex"`
	From  string   `json:"from,omitempty"`
}

type ExecuteRequest struct {
	_             struct{} `json:"-" additionalProperties:"true"`
	To            string   `json:"to"`
	Data          string   `json:"data,omitempty"`
	WalletAddress string   `json:"walletAddress,omitempty"`
	Signature     string   `json:"signature" doc:"Wallet-signed raw transaction, 0x-hex"`
}

type SendTxRequest struct {
	_        struct{} `json:"-" additionalProperties:"true"`
	IntentID string   `json:"intentId"`
	TxHash   string   `json:"txHash,omitempty"`
	SignedTx string   `json:"signedTx,omitempty"`
}

// Response payloads

type TransactionResponse struct {
	Contract     string   `json:"contract"`
	To           string   `json:"to"`
	Data         string   `json:"data"`
	Value        string   `json:"value"`
	FunctionName string   `json:"functionName"`
	Params       []string `json:"params"`
	Description  string   `json:"description"`
	TokenFlow    string   `json:"tokenFlow"`
}

type AIParseResponse struct {
	Intent         intent.Action        `json:"intent"`
	Confidence     float64              `json:"confidence"`
	Parameters     intent.Intent        `json:"parameters"`
	Transaction    *TransactionResponse `json:"transaction,omitempty"`
	RequiresWallet bool                 `json:"requiresWallet"`
	Explanation    string               `json:"explanation"`
	Source         intent.Source        `json:"source"`
	Degraded       bool                 `json:"degraded,omitempty"`
}

type ChatMessageResponse struct {
	ID                 string    `json:"id"`
	SessionID          string    `json:"sessionId"`
	Content            string    `json:"content"`
	IsUser             bool      `json:"isUser"`
	RelatedIntentLogID string    `json:"relatedIntentLogId,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

type TxPreview struct {
	To             string   `json:"to"`
	FunctionName   string   `json:"functionName"`
	Params         []string `json:"params"`
	GasEstimate    string   `json:"gasEstimate"`
	TokenFlow      string   `json:"tokenFlow"`
	Description    string   `json:"description"`
	RiskLevel      string   `json:"riskLevel"`
	Recommendation string   `json:"recommendation"`
	Data           string   `json:"data"`
	Value          string   `json:"value"`
}

type SimulationSummary struct {
	IsValid     bool   `json:"isValid"`
	Error       string `json:"error,omitempty"`
	GasEstimate string `json:"gasEstimate"`
}

type ParseIntentResponse struct {
	IntentID   string                `json:"intentId"`
	SessionID  string                `json:"sessionId"`
	Messages   []ChatMessageResponse `json:"messages"`
	TxPreview  TxPreview             `json:"txPreview"`
	Simulation SimulationSummary     `json:"simulation"`
}

type BalanceCheckResponse struct {
	Balance    string `json:"balance"`
	Required   string `json:"required"`
	Sufficient bool   `json:"sufficient"`
}

type SimulateResponse struct {
	Success        bool                  `json:"success"`
	GasEstimate    string                `json:"gasEstimate"`
	GasPrice       string                `json:"gasPrice"`
	GasCost        string                `json:"gasCost"`
	Error          string                `json:"error,omitempty"`
	Logs           []string              `json:"logs"`
	SimulationURL  string                `json:"simulationUrl,omitempty"`
	BalanceCheck   *BalanceCheckResponse `json:"balanceCheck,omitempty"`
	RiskLevel      string                `json:"riskLevel"`
	Recommendation string                `json:"recommendation"`
	Strategy       string                `json:"strategy"`
}

type ExecuteResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	ExplorerURL     string `json:"explorerUrl,omitempty"`
}

type SendTxResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

type TxStatusResponse struct {
	Hash        string    `json:"hash"`
	Status      string    `json:"status"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
	GasUsed     *uint64   `json:"gasUsed,omitempty"`
	IntentID    string    `json:"intentId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type IntentLogResponse struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"sessionId,omitempty"`
	UserAddress     string        `json:"userAddress,omitempty"`
	Prompt          string        `json:"prompt"`
	Intent          intent.Intent `json:"intent"`
	ResponseText    string        `json:"responseText"`
	ContractAddress string        `json:"contractAddress"`
	FunctionName    string        `json:"functionName"`
	GasEstimate     string        `json:"gasEstimate"`
	RiskLevel       string        `json:"riskLevel"`
	TxHash          string        `json:"txHash,omitempty"`
	Status          string        `json:"status"`
	BlockNumber     *uint64       `json:"blockNumber,omitempty"`
	GasUsed         *uint64       `json:"gasUsed,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type HistoryResponse struct {
	Transactions []IntentLogResponse `json:"transactions"`
	Pagination   Pagination          `json:"pagination"`
}

type IntentListResponse struct {
	Intents []IntentLogResponse `json:"intents"`
	Total   int                 `json:"total"`
}

type ChatResponse struct {
	SessionID string                `json:"sessionId"`
	Messages  []ChatMessageResponse `json:"messages"`
}

type AnalyticsResponse struct {
	TotalIntents int            `json:"totalIntents"`
	ByAction     map[string]int `json:"byAction"`
	ByStatus     map[string]int `json:"byStatus"`
	SuccessRate  float64        `json:"successRate"`
	Sessions     int            `json:"sessions"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkResponse matches the wallet_addEthereumChain parameters.
type NetworkResponse struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
	FaucetURL         string         `json:"faucetUrl,omitempty"`
	IsTestnet         bool           `json:"isTestnet"`
}

// Mapping helpers

func transactionResponse(p *tx.PreparedTransaction) *TransactionResponse {
	if p == nil {
		return nil
	}
	return &TransactionResponse{
		Contract:     p.Contract,
		To:           p.To.Hex(),
		Data:         hexutil.Encode(p.Data),
		Value:        weiString(p.Value),
		FunctionName: p.FunctionName,
		Params:       p.Params,
		Description:  p.Description,
		TokenFlow:    p.TokenFlow,
	}
}

func chatMessages(msgs []store.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessageResponse{
			ID:                 m.ID,
			SessionID:          m.SessionID,
			Content:            m.Content,
			IsUser:             m.IsUser,
			RelatedIntentLogID: m.RelatedIntentLogID,
			Timestamp:          m.CreatedAt,
		})
	}
	return out
}

func parseIntentResponse(turn *agent.Turn) ParseIntentResponse {
	sim := turn.Simulation
	return ParseIntentResponse{
		IntentID:  turn.Log.ID,
		SessionID: turn.SessionID,
		Messages:  chatMessages(turn.Messages),
		TxPreview: TxPreview{
			To:             turn.Prepared.To.Hex(),
			FunctionName:   turn.Prepared.FunctionName,
			Params:         turn.Prepared.Params,
			GasEstimate:    strconv.FormatUint(sim.GasEstimate, 10),
			TokenFlow:      turn.Prepared.TokenFlow,
			Description:    turn.Prepared.Description,
			RiskLevel:      string(sim.RiskLevel),
			Recommendation: sim.Recommendation,
			Data:           hexutil.Encode(turn.Prepared.Data),
			Value:          weiString(turn.Prepared.Value),
		},
		Simulation: SimulationSummary{
			IsValid:     sim.IsValid,
			Error:       sim.Error,
			GasEstimate: strconv.FormatUint(sim.GasEstimate, 10),
		},
	}
}

func simulateResponse(res simulate.Result) SimulateResponse {
	out := SimulateResponse{
		Success:        res.IsValid,
		GasEstimate:    strconv.FormatUint(res.GasEstimate, 10),
		GasPrice:       weiString(res.GasPrice),
		GasCost:        weiString(res.GasCost),
		Error:          res.Error,
		Logs:           res.Logs,
		SimulationURL:  res.SimulationURL,
		RiskLevel:      string(res.RiskLevel),
		Recommendation: res.Recommendation,
		Strategy:       res.Strategy,
	}
	if out.Logs == nil {
		out.Logs = []string{}
	}
	if bc := res.BalanceCheck; bc != nil {
		out.BalanceCheck = &BalanceCheckResponse{
			Balance:    weiString(bc.Balance),
			Required:   weiString(bc.Required),
			Sufficient: bc.Sufficient,
		}
	}
	return out
}

func intentLogResponse(l store.IntentLog) IntentLogResponse {
	return IntentLogResponse{
		ID:              l.ID,
		SessionID:       l.SessionID,
		UserAddress:     l.UserAddress,
		Prompt:          l.Prompt,
		Intent:          l.Intent,
		ResponseText:    l.ResponseText,
		ContractAddress: l.ContractAddress,
		FunctionName:    l.FunctionName,
		GasEstimate:     l.GasEstimate,
		RiskLevel:       l.RiskLevel,
		TxHash:          l.TxHash,
		Status:          string(l.Status),
		BlockNumber:     l.BlockNumber,
		GasUsed:         l.GasUsed,
		Timestamp:       l.CreatedAt,
	}
}

func intentLogs(logs []store.IntentLog) []IntentLogResponse {
	out := make([]IntentLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, intentLogResponse(l))
	}
	return out
}

func networkResponse(c *chain.ChainConfig) NetworkResponse {
	out := NetworkResponse{
		ChainID:   c.ChainIDHex(),
		ChainName: c.Name,
		RPCURLs:   c.RPCURLs,
		NativeCurrency: NativeCurrency{
			Name:     c.NativeCurrency,
			Symbol:   c.NativeCurrency,
			Decimals: 18,
		},
		BlockExplorerURLs: []string{},
		FaucetURL:         c.FaucetURL,
		IsTestnet:         c.IsTestnet,
	}
	if c.ExplorerURL != "" {
		out.BlockExplorerURLs = append(out.BlockExplorerURLs, c.ExplorerURL)
	}
	return out
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

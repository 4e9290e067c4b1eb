package server

import (
	"context"
	"math/big"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/simulate"
	"github.com/yolodolo42/chatchain/internal/store"
)

var inputErrors = []int{http.StatusBadRequest, http.StatusInternalServerError}

func (h *handlers) registerAI(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "ai-parse-intent",
		Method:      http.MethodPost,
		Path:        "/api/ai/parse-intent",
		Summary:     "Interpret a chat message",
		Tags:        []string{"ai"},
		Errors:      append(inputErrors, http.StatusTooManyRequests),
	}, func(ctx context.Context, input *struct {
		Body AIParseRequest
	}) (*struct{ Body AIParseResponse }, error) {
		out, err := h.svc.Interpret(ctx, agent.InterpretRequest{
			Message:       input.Body.Message,
			WalletAddress: input.Body.WalletAddress,
			Context:       input.Body.Context,
		})
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body AIParseResponse }{Body: AIParseResponse{
			Intent:         out.Parse.Intent.Action,
			Confidence:     out.Parse.Confidence,
			Parameters:     out.Parse.Intent,
			Transaction:    transactionResponse(out.Transaction),
			RequiresWallet: out.RequiresWallet,
			Explanation:    out.Explanation,
			Source:         out.Parse.Source,
			Degraded:       out.Parse.Degraded,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "parse-intent",
		Method:      http.MethodPost,
		Path:        "/parse-intent",
		Summary:     "Record a chat turn and preview its transaction",
		Tags:        []string{"ai"},
		Errors:      append(inputErrors, http.StatusTooManyRequests),
	}, func(ctx context.Context, input *struct {
		Body ParseIntentRequest
	}) (*struct{ Body ParseIntentResponse }, error) {
		turn, err := h.svc.Submit(ctx, agent.SubmitRequest{
			Prompt:      input.Body.Prompt,
			SessionID:   input.Body.SessionID,
			UserAddress: input.Body.UserAddress,
		})
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body ParseIntentResponse }{Body: parseIntentResponse(turn)}, nil
	})
}

func (h *handlers) registerTx(api huma.API) {
	simulateHandler := func(ctx context.Context, input *struct {
		Body SimulateRequest
	}) (*struct{ Body SimulateResponse }, error) {
		call, err := simulationCall(input.Body)
		if err != nil {
			return nil, err
		}
		return &struct{ Body SimulateResponse }{Body: simulateResponse(h.svc.Simulate(ctx, call))}, nil
	}
	for _, op := range []huma.Operation{
		{OperationID: "simulate-tx", Path: "/api/tx/simulate"},
		{OperationID: "simulate", Path: "/simulate"},
	} {
		op.Method = http.MethodPost
		op.Summary = "Simulate a call"
		op.Tags = []string{"tx"}
		op.Errors = inputErrors
		huma.Register(api, op, simulateHandler)
	}

	huma.Register(api, huma.Operation{
		OperationID: "execute-tx",
		Method:      http.MethodPost,
		Path:        "/api/tx/execute",
		Summary:     "Broadcast a wallet-signed transaction",
		Tags:        []string{"tx"},
		Errors:      append(inputErrors, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		Body ExecuteRequest
	}) (*struct{ Body ExecuteResponse }, error) {
		sub, err := h.svc.Execute(ctx, agent.ExecuteRequest{
			To:            input.Body.To,
			Data:          input.Body.Data,
			WalletAddress: input.Body.WalletAddress,
			SignedTx:      input.Body.Signature,
		})
		if err != nil {
			return nil, h.errs.handle(err)
		}
		hash := sub.TxHash.Hex()
		return &struct{ Body ExecuteResponse }{Body: ExecuteResponse{
			Success:         true,
			TransactionHash: hash,
			Status:          string(sub.Status),
			ExplorerURL:     h.svc.Network().TxURL(hash),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-tx",
		Method:      http.MethodPost,
		Path:        "/send-tx",
		Summary:     "Confirm a recorded intent",
		Tags:        []string{"tx"},
		Errors:      append(inputErrors, http.StatusNotFound, http.StatusBadGateway),
	}, func(ctx context.Context, input *struct {
		Body SendTxRequest
	}) (*struct{ Body SendTxResponse }, error) {
		sub, err := h.svc.SendForIntent(ctx, agent.SendRequest{
			IntentID: input.Body.IntentID,
			TxHash:   input.Body.TxHash,
			SignedTx: input.Body.SignedTx,
		})
		if err != nil {
			return nil, h.errs.handle(err)
		}
		hash := sub.TxHash.Hex()
		return &struct{ Body SendTxResponse }{Body: SendTxResponse{
			Success:     true,
			TxHash:      hash,
			Status:      string(sub.Status),
			Method:      sub.Method,
			ExplorerURL: h.svc.Network().TxURL(hash),
			Warning:     sub.Warning,
		}}, nil
	})

	statusHandler := func(ctx context.Context, input *struct {
		Hash string `path:"hash"`
	}) (*struct{ Body TxStatusResponse }, error) {
		view, err := h.svc.TxStatus(ctx, input.Hash)
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body TxStatusResponse }{Body: TxStatusResponse{
			Hash:        view.Hash,
			Status:      string(view.Status),
			BlockNumber: view.BlockNumber,
			GasUsed:     view.GasUsed,
			IntentID:    view.IntentID,
			Timestamp:   view.Timestamp,
		}}, nil
	}
	for _, op := range []huma.Operation{
		{OperationID: "tx-status", Path: "/api/tx/status/{hash}"},
		{OperationID: "tx-status-legacy", Path: "/tx-status/{hash}"},
	} {
		op.Method = http.MethodGet
		op.Summary = "Transaction status"
		op.Tags = []string{"tx"}
		op.Errors = append(inputErrors, http.StatusNotFound, http.StatusBadGateway)
		huma.Register(api, op, statusHandler)
	}

	huma.Register(api, huma.Operation{
		OperationID: "tx-history",
		Method:      http.MethodGet,
		Path:        "/api/tx/history/{address}",
		Summary:     "Intents recorded for an address",
		Tags:        []string{"tx"},
		Errors:      inputErrors,
	}, func(ctx context.Context, input *struct {
		Address string `path:"address"`
		Page    int    `query:"page" default:"1" minimum:"1"`
		Limit   int    `query:"limit" default:"10" minimum:"1" maximum:"100"`
	}) (*struct{ Body HistoryResponse }, error) {
		page, err := h.svc.History(ctx, input.Address, input.Page, input.Limit)
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body HistoryResponse }{Body: HistoryResponse{
			Transactions: intentLogs(page.Transactions),
			Pagination: Pagination{
				Page:  page.Page,
				Limit: page.Limit,
				Total: page.Total,
				Pages: page.Pages,
			},
		}}, nil
	})
}

func (h *handlers) registerLogs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-intents",
		Method:      http.MethodGet,
		Path:        "/intents",
		Summary:     "List recorded intents",
		Tags:        []string{"logs"},
		Errors:      inputErrors,
	}, func(ctx context.Context, input *struct {
		UserAddress string `query:"userAddress"`
		SessionID   string `query:"sessionId"`
		Status      string `query:"status"`
		Limit       int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Offset      int    `query:"offset" minimum:"0"`
	}) (*struct{ Body IntentListResponse }, error) {
		logs, total, err := h.svc.Intents(ctx, store.IntentLogFilter{
			UserAddress: input.UserAddress,
			SessionID:   input.SessionID,
			Status:      store.Status(input.Status),
			Limit:       input.Limit,
			Offset:      input.Offset,
		})
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body IntentListResponse }{Body: IntentListResponse{Intents: intentLogs(logs), Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intent",
		Method:      http.MethodGet,
		Path:        "/intents/{id}",
		Summary:     "Get a recorded intent",
		Tags:        []string{"logs"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{ Body IntentLogResponse }, error) {
		l, err := h.svc.Intent(ctx, input.ID)
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body IntentLogResponse }{Body: intentLogResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-chat",
		Method:      http.MethodGet,
		Path:        "/chat/{sessionId}",
		Summary:     "Chat transcript for a session",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"sessionId"`
	}) (*struct{ Body ChatResponse }, error) {
		msgs, err := h.svc.Chat(ctx, input.SessionID)
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body ChatResponse }{Body: ChatResponse{SessionID: input.SessionID, Messages: chatMessages(msgs)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analytics",
		Method:      http.MethodGet,
		Path:        "/analytics",
		Summary:     "Totals over every recorded intent",
		Tags:        []string{"logs"},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body AnalyticsResponse }, error) {
		stats, err := h.svc.Analytics(ctx)
		if err != nil {
			return nil, h.errs.handle(err)
		}
		return &struct{ Body AnalyticsResponse }{Body: AnalyticsResponse{
			TotalIntents: stats.TotalIntents,
			ByAction:     stats.ByAction,
			ByStatus:     stats.ByStatus,
			SuccessRate:  stats.SuccessRate,
			Sessions:     stats.Sessions,
		}}, nil
	})
}

func (h *handlers) registerMeta(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Tags:        []string{"meta"},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body HealthResponse }, error) {
		return &struct{ Body HealthResponse }{Body: HealthResponse{
			Status:    "ok",
			Timestamp: h.now().UTC(),
			Version:   h.version,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "network",
		Method:      http.MethodGet,
		Path:        "/api/network",
		Summary:     "Parameters for the wallet switch-or-add flow",
		Tags:        []string{"meta"},
	}, func(ctx context.Context, _ *struct{}) (*struct{ Body NetworkResponse }, error) {
		return &struct{ Body NetworkResponse }{Body: networkResponse(h.svc.Network())}, nil
	})
}

func simulationCall(req SimulateRequest) (simulate.Call, error) {
	var call simulate.Call
	if !common.IsHexAddress(req.To) {
		return call, newAPIError(http.StatusBadRequest, "to must be a 0x-prefixed address")
	}
	call.To = common.HexToAddress(req.To)

	if req.From != "" {
		if !common.IsHexAddress(req.From) {
			return call, newAPIError(http.StatusBadRequest, "from must be a 0x-prefixed address")
		}
		call.From = common.HexToAddress(req.From)
	}

	if req.Data != "" && req.Data != "0x" {
		data, err := hexutil.Decode(req.Data)
		if err != nil {
			return call, newAPIError(http.StatusBadRequest, "data must be 0x-prefixed hex")
		}
		call.Data = data
	}

	if v := strings.TrimSpace(req.Value); v != "" {
		value, ok := new(big.Int).SetString(v, 0)
		if !ok || value.Sign() < 0 {
			return call, newAPIError(http.StatusBadRequest, "value must be a non-negative wei amount")
		}
		call.Value = value
	}
	return call, nil
}

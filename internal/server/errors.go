package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yolodolo42/chatchain/internal/agent"
	"github.com/yolodolo42/chatchain/internal/store"
	"github.com/yolodolo42/chatchain/internal/tx"
)

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status      int
	Message     string                `json:"error" example:"intent already processed"`
	Messages    []ChatMessageResponse `json:"messages,omitempty"`
	Remediation string                `json:"remediation,omitempty"`
	Details     []string              `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) *apiError {
	return &apiError{status: status, Message: message}
}

// installErrorEnvelope routes huma's own errors through apiError and turns
// schema validation failures into 400s.
func installErrorEnvelope() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		e := newAPIError(status, msg)
		for _, err := range errs {
			if err != nil {
				e.Details = append(e.Details, err.Error())
			}
		}
		return e
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return huma.NewError(status, msg, errs...)
	}
}

// errorMapper converts service errors into HTTP errors.
type errorMapper struct {
	logger *slog.Logger
	// verbose exposes internal error text; set outside production.
	verbose bool
}

func (m errorMapper) handle(err error) huma.StatusError {
	if err == nil {
		return nil
	}

	var turnErr *agent.TurnError
	if errors.As(err, &turnErr) {
		e := newAPIError(http.StatusBadRequest, err.Error())
		e.Messages = chatMessages(turnErr.Messages)
		return e
	}
	var chainErr *agent.ChainError
	if errors.As(err, &chainErr) {
		e := newAPIError(http.StatusBadGateway, chainErr.Error())
		e.Remediation = chainErr.Remediation
		return e
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, agent.ErrTxNotFound):
		return newAPIError(http.StatusNotFound, err.Error())
	case errors.Is(err, agent.ErrAlreadyProcessed):
		return newAPIError(http.StatusBadRequest, "intent already processed")
	case errors.Is(err, agent.ErrEmptyPrompt),
		errors.Is(err, agent.ErrInvalidInput),
		errors.Is(err, agent.ErrNoSigner),
		errors.Is(err, agent.ErrTxMismatch),
		errors.Is(err, store.ErrInvalidTransition),
		tx.IsMappingError(err):
		return newAPIError(http.StatusBadRequest, err.Error())
	}

	m.logger.Error("request failed", "error", err)
	if m.verbose {
		return newAPIError(http.StatusInternalServerError, err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "internal error")
}

func isProduction(env string) bool {
	env = strings.ToLower(env)
	return env == "production" || env == "prod"
}

package agent

import (
	"errors"

	"github.com/yolodolo42/chatchain/internal/store"
)

var (
	ErrEmptyPrompt      = errors.New("prompt is required")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadyProcessed = errors.New("intent already processed")
	ErrNoSigner         = errors.New("no transaction supplied and no relayer configured")
	ErrTxMismatch       = errors.New("signed transaction does not match the request")
	ErrTxNotFound       = errors.New("transaction not found")
)

// TurnError is returned by Submit when the prompt could not be turned into a
// transaction. Messages holds the chat lines already recorded for the turn.
type TurnError struct {
	Err       error
	SessionID string
	Messages  []store.ChatMessage
}

func (e *TurnError) Error() string { return e.Err.Error() }
func (e *TurnError) Unwrap() error { return e.Err }

// ChainError wraps a failure reported by the chain or the wallet, with the
// next step the user should take.
type ChainError struct {
	Err         error
	Remediation string
}

func (e *ChainError) Error() string { return e.Err.Error() }
func (e *ChainError) Unwrap() error { return e.Err }

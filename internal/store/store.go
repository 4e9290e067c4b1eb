// Package store persists intent logs and chat transcripts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yolodolo42/chatchain/internal/intent"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("intent log changed concurrently")
)

// Status is the lifecycle state of a logged intent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// rank orders statuses; a log may only move to a higher rank.
var rank = map[Status]int{
	StatusPending:   0,
	StatusSubmitted: 1,
	StatusSuccess:   2,
	StatusFailed:    2,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CheckTransition allows forward moves only. Repeating the current status is
// a no-op and allowed; leaving a terminal status is not.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}
	if from.Terminal() || rank[to] < rank[from] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IntentLog records one interpreted request and what happened to it.
type IntentLog struct {
	ID              string
	SessionID       string
	UserAddress     string
	Prompt          string
	Intent          intent.Intent
	ResponseText    string
	ContractAddress string
	FunctionName    string
	GasEstimate     string
	RiskLevel       string
	TxHash          string
	Status          Status
	BlockNumber     *uint64
	GasUsed         *uint64
	CreatedAt       time.Time
}

// IntentLogPatch lists the fields an update may change. Nil fields are kept.
// A non-nil ExpectStatus makes the update fail with ErrConflict unless the
// stored status still equals it.
type IntentLogPatch struct {
	ExpectStatus *Status
	TxHash       *string
	Status       *Status
	BlockNumber  *uint64
	GasUsed      *uint64
}

// IntentLogFilter narrows ListIntentLogs. Zero values match everything;
// Limit 0 means no limit.
type IntentLogFilter struct {
	UserAddress string
	SessionID   string
	Status      Status
	Limit       int
	Offset      int
}

// ChatMessage is one line of a chat session.
type ChatMessage struct {
	ID                 string
	SessionID          string
	Content            string
	IsUser             bool
	RelatedIntentLogID string
	CreatedAt          time.Time
}

// Repository is the persistence boundary for logs and chat.
type Repository interface {
	CreateIntentLog(ctx context.Context, entry IntentLog) (IntentLog, error)
	GetIntentLog(ctx context.Context, id string) (IntentLog, error)
	FindIntentLogByTxHash(ctx context.Context, txHash string) (IntentLog, error)
	// ListIntentLogs returns matching logs newest first and the total match count.
	ListIntentLogs(ctx context.Context, filter IntentLogFilter) ([]IntentLog, int, error)
	UpdateIntentLog(ctx context.Context, id string, patch IntentLogPatch) (IntentLog, error)
	CreateChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	// ListChatMessages returns a session's messages oldest first.
	ListChatMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)
	Close() error
}

// Option configures a repository.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock replaces the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDs replaces the id generator.
func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) prepareLog(entry IntentLog) (IntentLog, error) {
	if entry.ID == "" {
		entry.ID = o.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = o.now()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	if !entry.Status.Valid() {
		return IntentLog{}, fmt.Errorf("unknown status %q", entry.Status)
	}
	return entry, nil
}

func (o options) prepareMessage(msg ChatMessage) (ChatMessage, error) {
	if msg.SessionID == "" {
		return ChatMessage{}, errors.New("session id is required")
	}
	if msg.ID == "" {
		msg.ID = o.newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = o.now()
	}
	return msg, nil
}

func applyPatch(entry IntentLog, patch IntentLogPatch) (IntentLog, error) {
	if patch.ExpectStatus != nil && entry.Status != *patch.ExpectStatus {
		return IntentLog{}, fmt.Errorf("%w: intent log %s is %s, want %s", ErrConflict, entry.ID, entry.Status, *patch.ExpectStatus)
	}
	if patch.TxHash != nil && entry.TxHash != "" && !strings.EqualFold(entry.TxHash, *patch.TxHash) {
		return IntentLog{}, fmt.Errorf("%w: intent log %s already has tx %s", ErrConflict, entry.ID, entry.TxHash)
	}
	if patch.Status != nil {
		if err := CheckTransition(entry.Status, *patch.Status); err != nil {
			return IntentLog{}, err
		}
		entry.Status = *patch.Status
	}
	if patch.TxHash != nil {
		entry.TxHash = *patch.TxHash
	}
	if patch.BlockNumber != nil {
		v := *patch.BlockNumber
		entry.BlockNumber = &v
	}
	if patch.GasUsed != nil {
		v := *patch.GasUsed
		entry.GasUsed = &v
	}
	return entry, nil
}

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local Repository. Its contents vanish on restart.
type Memory struct {
	mu    sync.RWMutex
	opts  options
	seq   int
	logs  map[string]*memLog
	chats map[string][]ChatMessage
}

type memLog struct {
	seq   int
	entry IntentLog
}

var _ Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory repository.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:  buildOptions(opts),
		logs:  make(map[string]*memLog),
		chats: make(map[string][]ChatMessage),
	}
}

func (m *Memory) CreateIntentLog(_ context.Context, entry IntentLog) (IntentLog, error) {
	entry, err := m.opts.prepareLog(entry)
	if err != nil {
		return IntentLog{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.logs[entry.ID]; exists {
		return IntentLog{}, fmt.Errorf("intent log %s already exists", entry.ID)
	}
	m.seq++
	m.logs[entry.ID] = &memLog{seq: m.seq, entry: copyLog(entry)}
	return copyLog(entry), nil
}

func (m *Memory) GetIntentLog(_ context.Context, id string) (IntentLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.logs[id]
	if !ok {
		return IntentLog{}, fmt.Errorf("intent log %s: %w", id, ErrNotFound)
	}
	return copyLog(l.entry), nil
}

func (m *Memory) FindIntentLogByTxHash(_ context.Context, txHash string) (IntentLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.logs {
		if l.entry.TxHash != "" && strings.EqualFold(l.entry.TxHash, txHash) {
			return copyLog(l.entry), nil
		}
	}
	return IntentLog{}, fmt.Errorf("intent log for tx %s: %w", txHash, ErrNotFound)
}

func (m *Memory) ListIntentLogs(_ context.Context, filter IntentLogFilter) ([]IntentLog, int, error) {
	m.mu.RLock()
	matched := make([]*memLog, 0, len(m.logs))
	for _, l := range m.logs {
		if matches(l.entry, filter) {
			matched = append(matched, l)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := len(matched)
	start, end := window(total, filter.Limit, filter.Offset)
	out := make([]IntentLog, 0, end-start)
	for _, l := range matched[start:end] {
		out = append(out, copyLog(l.entry))
	}
	return out, total, nil
}

func (m *Memory) UpdateIntentLog(_ context.Context, id string, patch IntentLogPatch) (IntentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.logs[id]
	if !ok {
		return IntentLog{}, fmt.Errorf("intent log %s: %w", id, ErrNotFound)
	}
	updated, err := applyPatch(l.entry, patch)
	if err != nil {
		return IntentLog{}, err
	}
	l.entry = updated
	return copyLog(updated), nil
}

func (m *Memory) CreateChatMessage(_ context.Context, msg ChatMessage) (ChatMessage, error) {
	msg, err := m.opts.prepareMessage(msg)
	if err != nil {
		return ChatMessage{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[msg.SessionID] = append(m.chats[msg.SessionID], msg)
	return msg, nil
}

func (m *Memory) ListChatMessages(_ context.Context, sessionID string) ([]ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := append([]ChatMessage(nil), m.chats[sessionID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (m *Memory) Close() error { return nil }

func matches(l IntentLog, f IntentLogFilter) bool {
	if f.UserAddress != "" && !strings.EqualFold(l.UserAddress, f.UserAddress) {
		return false
	}
	if f.SessionID != "" && l.SessionID != f.SessionID {
		return false
	}
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	return true
}

// window converts limit/offset into slice bounds within [0, total].
func window(total, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}

func copyLog(l IntentLog) IntentLog {
	if l.BlockNumber != nil {
		v := *l.BlockNumber
		l.BlockNumber = &v
	}
	if l.GasUsed != nil {
		v := *l.GasUsed
		l.GasUsed = &v
	}
	return l
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yolodolo42/chatchain/internal/intent"
)

// SQLite persists logs and chat messages in a sqlite database.
type SQLite struct {
	db   *sql.DB
	opts options
}

var _ Repository = (*SQLite)(nil)

// OpenSQLite opens (or creates) a database at dsn.
// Tests may pass ":memory:" to avoid touching disk.
func OpenSQLite(dsn string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, opts: buildOptions(opts)}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS intent_logs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	user_address TEXT NOT NULL DEFAULT '',
	prompt TEXT NOT NULL DEFAULT '',
	intent_json TEXT NOT NULL,
	response_text TEXT NOT NULL DEFAULT '',
	contract_address TEXT NOT NULL DEFAULT '',
	function_name TEXT NOT NULL DEFAULT '',
	gas_estimate TEXT NOT NULL DEFAULT '',
	risk_level TEXT NOT NULL DEFAULT '',
	tx_hash TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	block_number INTEGER,
	gas_used INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS intent_logs_tx_hash ON intent_logs (tx_hash);
CREATE INDEX IF NOT EXISTS intent_logs_user ON intent_logs (user_address);
CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	content TEXT NOT NULL,
	is_user INTEGER NOT NULL,
	related_intent_log_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_session ON chat_messages (session_id);
`)
	if err != nil {
		return fmt.Errorf("create store tables: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const logColumns = `id, session_id, user_address, prompt, intent_json, response_text,
	contract_address, function_name, gas_estimate, risk_level, tx_hash, status,
	block_number, gas_used, created_at`

func (s *SQLite) CreateIntentLog(ctx context.Context, entry IntentLog) (IntentLog, error) {
	entry, err := s.opts.prepareLog(entry)
	if err != nil {
		return IntentLog{}, err
	}
	raw, err := json.Marshal(entry.Intent)
	if err != nil {
		return IntentLog{}, fmt.Errorf("marshal intent: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO intent_logs (`+logColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, entry.UserAddress, entry.Prompt, string(raw), entry.ResponseText,
		entry.ContractAddress, entry.FunctionName, entry.GasEstimate, entry.RiskLevel, entry.TxHash,
		string(entry.Status), nullUint(entry.BlockNumber), nullUint(entry.GasUsed), entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return IntentLog{}, fmt.Errorf("persist intent log: %w", err)
	}
	return copyLog(entry), nil
}

func (s *SQLite) GetIntentLog(ctx context.Context, id string) (IntentLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM intent_logs WHERE id = ?`, id)
	entry, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IntentLog{}, fmt.Errorf("intent log %s: %w", id, ErrNotFound)
	}
	return entry, err
}

func (s *SQLite) FindIntentLogByTxHash(ctx context.Context, txHash string) (IntentLog, error) {
	if txHash == "" {
		return IntentLog{}, fmt.Errorf("intent log for empty tx: %w", ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM intent_logs WHERE lower(tx_hash) = lower(?) ORDER BY created_at DESC LIMIT 1`,
		txHash,
	)
	entry, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IntentLog{}, fmt.Errorf("intent log for tx %s: %w", txHash, ErrNotFound)
	}
	return entry, err
}

func (s *SQLite) ListIntentLogs(ctx context.Context, filter IntentLogFilter) ([]IntentLog, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserAddress != "" {
		clauses = append(clauses, "lower(user_address) = lower(?)")
		args = append(args, filter.UserAddress)
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intent_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count intent logs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + logColumns + ` FROM intent_logs` + where +
		` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list intent logs: %w", err)
	}
	defer rows.Close()

	out := []IntentLog{}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list intent logs: %w", err)
	}
	return out, total, nil
}

func (s *SQLite) UpdateIntentLog(ctx context.Context, id string, patch IntentLogPatch) (IntentLog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IntentLog{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+logColumns+` FROM intent_logs WHERE id = ?`, id)
	current, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return IntentLog{}, fmt.Errorf("intent log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return IntentLog{}, err
	}

	updated, err := applyPatch(current, patch)
	if err != nil {
		return IntentLog{}, err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE intent_logs SET tx_hash = ?, status = ?, block_number = ?, gas_used = ? WHERE id = ?`,
		updated.TxHash, string(updated.Status), nullUint(updated.BlockNumber), nullUint(updated.GasUsed), id,
	)
	if err != nil {
		return IntentLog{}, fmt.Errorf("update intent log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return IntentLog{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

func (s *SQLite) CreateChatMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error) {
	msg, err := s.opts.prepareMessage(msg)
	if err != nil {
		return ChatMessage{}, err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, content, is_user, related_intent_log_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Content, msg.IsUser, msg.RelatedIntentLogID, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("persist chat message: %w", err)
	}
	return msg, nil
}

func (s *SQLite) ListChatMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, content, is_user, related_intent_log_id, created_at
FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	out := []ChatMessage{}
	for rows.Next() {
		var (
			msg     ChatMessage
			created int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Content, &msg.IsUser, &msg.RelatedIntentLogID, &created); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (IntentLog, error) {
	var (
		entry       IntentLog
		rawIntent   string
		status      string
		blockNumber sql.NullInt64
		gasUsed     sql.NullInt64
		created     int64
	)
	err := row.Scan(
		&entry.ID, &entry.SessionID, &entry.UserAddress, &entry.Prompt, &rawIntent, &entry.ResponseText,
		&entry.ContractAddress, &entry.FunctionName, &entry.GasEstimate, &entry.RiskLevel, &entry.TxHash,
		&status, &blockNumber, &gasUsed, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return IntentLog{}, err
	}
	if err != nil {
		return IntentLog{}, fmt.Errorf("scan intent log: %w", err)
	}

	var in intent.Intent
	if err := json.Unmarshal([]byte(rawIntent), &in); err != nil {
		return IntentLog{}, fmt.Errorf("decode intent for %s: %w", entry.ID, err)
	}
	entry.Intent = in
	entry.Status = Status(status)
	if blockNumber.Valid {
		v := uint64(blockNumber.Int64)
		entry.BlockNumber = &v
	}
	if gasUsed.Valid {
		v := uint64(gasUsed.Int64)
		entry.GasUsed = &v
	}
	entry.CreatedAt = time.Unix(0, created).UTC()
	return entry, nil
}

func nullUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

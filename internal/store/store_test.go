package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatchain/internal/intent"
	"github.com/yolodolo42/chatchain/internal/testutil"
)

// stepClock returns a clock advancing one second per call and a sequential id source.
func stepClock() []Option {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks, ids int
	return []Option{
		WithClock(func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		}),
		WithIDs(func() string {
			ids++
			return fmt.Sprintf("id-%02d", ids)
		}),
	}
}

func repositories(t *testing.T) map[string]func() Repository {
	return map[string]func() Repository{
		"memory": func() Repository { return NewMemory(stepClock()...) },
		"sqlite": func() Repository {
			s, err := OpenSQLite(":memory:", stepClock()...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func sampleLog(user string) IntentLog {
	return IntentLog{
		SessionID:       "session-1",
		UserAddress:     user,
		Prompt:          "stake 100 BDAG",
		Intent:          intent.Intent{Action: intent.ActionStake, Amount: "100", Token: "BDAG"},
		ResponseText:    "Stake 100 BDAG in the vault",
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		FunctionName:    "stake",
		GasEstimate:     "65000",
		RiskLevel:       "low",
	}
}

func ptr[T any](v T) *T { return &v }

func TestRepository(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) {
				repo := open()
				ctx := context.Background()

				created, err := repo.CreateIntentLog(ctx, sampleLog("0xabc"))
				require.NoError(t, err)
				assert.Equal(t, "id-01", created.ID)
				assert.Equal(t, StatusPending, created.Status)
				assert.False(t, created.CreatedAt.IsZero())

				got, err := repo.GetIntentLog(ctx, created.ID)
				require.NoError(t, err)
				assert.Equal(t, created, got)
				assert.Equal(t, intent.Amount("100"), got.Intent.Amount)
				assert.Nil(t, got.BlockNumber)
			})

			t.Run("missing log", func(t *testing.T) {
				repo := open()
				_, err := repo.GetIntentLog(context.Background(), "nope")
				assert.ErrorIs(t, err, ErrNotFound)

				_, err = repo.UpdateIntentLog(context.Background(), "nope", IntentLogPatch{Status: ptr(StatusSubmitted)})
				assert.ErrorIs(t, err, ErrNotFound)

				_, err = repo.FindIntentLogByTxHash(context.Background(), "0xdead")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("update merges fields", func(t *testing.T) {
				repo := open()
				ctx := context.Background()
				created, err := repo.CreateIntentLog(ctx, sampleLog("0xabc"))
				require.NoError(t, err)

				submitted, err := repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{
					TxHash: ptr("0xBEEF"),
					Status: ptr(StatusSubmitted),
				})
				require.NoError(t, err)
				assert.Equal(t, "0xBEEF", submitted.TxHash)
				assert.Equal(t, created.Prompt, submitted.Prompt)
				assert.Equal(t, created.CreatedAt, submitted.CreatedAt)

				done, err := repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{
					Status:      ptr(StatusSuccess),
					BlockNumber: ptr(uint64(42)),
					GasUsed:     ptr(uint64(51000)),
				})
				require.NoError(t, err)
				assert.Equal(t, "0xBEEF", done.TxHash)
				require.NotNil(t, done.BlockNumber)
				assert.Equal(t, uint64(42), *done.BlockNumber)

				byHash, err := repo.FindIntentLogByTxHash(ctx, "0xbeef")
				require.NoError(t, err)
				assert.Equal(t, done, byHash)
			})

			t.Run("transitions are forward only", func(t *testing.T) {
				repo := open()
				ctx := context.Background()
				created, err := repo.CreateIntentLog(ctx, sampleLog("0xabc"))
				require.NoError(t, err)

				_, err = repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{Status: ptr(StatusFailed)})
				require.NoError(t, err)

				_, err = repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{Status: ptr(StatusPending)})
				assert.ErrorIs(t, err, ErrInvalidTransition)
				_, err = repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{Status: ptr(StatusSuccess)})
				assert.ErrorIs(t, err, ErrInvalidTransition)

				got, err := repo.GetIntentLog(ctx, created.ID)
				require.NoError(t, err)
				assert.Equal(t, StatusFailed, got.Status)
			})

			t.Run("expected status guards the claim", func(t *testing.T) {
				repo := open()
				ctx := context.Background()
				created, err := repo.CreateIntentLog(ctx, sampleLog("0xabc"))
				require.NoError(t, err)

				claim := IntentLogPatch{ExpectStatus: ptr(StatusPending), TxHash: ptr("0x01"), Status: ptr(StatusSubmitted)}
				_, err = repo.UpdateIntentLog(ctx, created.ID, claim)
				require.NoError(t, err)

				again := IntentLogPatch{ExpectStatus: ptr(StatusPending), TxHash: ptr("0x02"), Status: ptr(StatusSubmitted)}
				_, err = repo.UpdateIntentLog(ctx, created.ID, again)
				assert.ErrorIs(t, err, ErrConflict)

				// submitted -> submitted may not swap the hash either
				_, err = repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{TxHash: ptr("0x02"), Status: ptr(StatusSubmitted)})
				assert.ErrorIs(t, err, ErrConflict)

				got, err := repo.GetIntentLog(ctx, created.ID)
				require.NoError(t, err)
				assert.Equal(t, "0x01", got.TxHash)
			})

			t.Run("list filters and paginates newest first", func(t *testing.T) {
				repo := open()
				ctx := context.Background()
				for i := 0; i < 5; i++ {
					_, err := repo.CreateIntentLog(ctx, sampleLog("0xAbC"))
					require.NoError(t, err)
				}
				_, err := repo.CreateIntentLog(ctx, sampleLog("0xother"))
				require.NoError(t, err)

				page, total, err := repo.ListIntentLogs(ctx, IntentLogFilter{UserAddress: "0xabc", Limit: 2, Offset: 1})
				require.NoError(t, err)
				assert.Equal(t, 5, total)
				require.Len(t, page, 2)
				assert.Equal(t, "id-04", page[0].ID)
				assert.Equal(t, "id-03", page[1].ID)

				all, total, err := repo.ListIntentLogs(ctx, IntentLogFilter{})
				require.NoError(t, err)
				assert.Equal(t, 6, total)
				assert.Len(t, all, 6)
				assert.Equal(t, "id-06", all[0].ID)

				past, total, err := repo.ListIntentLogs(ctx, IntentLogFilter{Offset: 10})
				require.NoError(t, err)
				assert.Equal(t, 6, total)
				assert.Empty(t, past)

				pending, _, err := repo.ListIntentLogs(ctx, IntentLogFilter{Status: StatusSuccess})
				require.NoError(t, err)
				assert.Empty(t, pending)
			})

			t.Run("chat messages keep order", func(t *testing.T) {
				repo := open()
				ctx := context.Background()
				_, err := repo.CreateChatMessage(ctx, ChatMessage{SessionID: "s", Content: "stake 1 BDAG", IsUser: true})
				require.NoError(t, err)
				_, err = repo.CreateChatMessage(ctx, ChatMessage{SessionID: "s", Content: "Ready to stake", RelatedIntentLogID: "id-x"})
				require.NoError(t, err)
				_, err = repo.CreateChatMessage(ctx, ChatMessage{SessionID: "other", Content: "hi", IsUser: true})
				require.NoError(t, err)

				msgs, err := repo.ListChatMessages(ctx, "s")
				require.NoError(t, err)
				require.Len(t, msgs, 2)
				assert.True(t, msgs[0].IsUser)
				assert.Equal(t, "Ready to stake", msgs[1].Content)
				assert.Equal(t, "id-x", msgs[1].RelatedIntentLogID)

				empty, err := repo.ListChatMessages(ctx, "unknown")
				require.NoError(t, err)
				assert.Empty(t, empty)

				_, err = repo.CreateChatMessage(ctx, ChatMessage{Content: "orphan"})
				assert.Error(t, err)
			})
		})
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusSuccess, true},
		{StatusSubmitted, StatusFailed, true},
		{StatusSubmitted, StatusSubmitted, true},
		{StatusSuccess, StatusSuccess, true},
		{StatusSubmitted, StatusPending, false},
		{StatusSuccess, StatusFailed, false},
		{StatusPending, Status("bogus"), false},
	}
	for _, tt := range tests {
		err := CheckTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemory()
	ctx := context.Background()
	created, err := repo.CreateIntentLog(ctx, sampleLog("0xabc"))
	require.NoError(t, err)

	updated, err := repo.UpdateIntentLog(ctx, created.ID, IntentLogPatch{BlockNumber: ptr(uint64(7))})
	require.NoError(t, err)
	*updated.BlockNumber = 99

	got, err := repo.GetIntentLog(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), *got.BlockNumber)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t), "chatchain.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	created, err := s.CreateIntentLog(context.Background(), sampleLog("0xabc"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetIntentLog(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Prompt, got.Prompt)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

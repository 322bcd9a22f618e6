package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/plan"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, StatusIdle, conv.Status)

	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}

func TestGetMissing(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.GetOrCreate(ctx, "conv-1")
	require.NoError(t, err)
	conv.Company = "Acme Corp"
	require.NoError(t, m.Update(ctx, conv))

	again, err := m.GetOrCreate(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", again.Company)
}

func TestGetLoadsFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := NewManager(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewManager(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	conv, err := a.Create(ctx)
	require.NoError(t, err)
	conv.Company = "Acme Corp"
	conv.CredentialIndex = 2
	require.NoError(t, a.Update(ctx, conv))

	// b has an empty local cache, so this exercises the Redis path
	got, err := b.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", got.Company)
	assert.Equal(t, 2, got.CredentialIndex)
}

func TestAddTurnAndHistory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.AddTurn(ctx, conv.ID, Turn{Role: "user", Content: "research Acme Corp", Category: "research_request"}))
	require.NoError(t, m.AddTurn(ctx, conv.ID, Turn{Role: "assistant", Content: "On it."}))

	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.NotEmpty(t, got.Turns[0].ID)
	assert.False(t, got.Turns[0].Timestamp.IsZero())

	lines := got.HistoryLines(10)
	assert.Equal(t, []string{"user: research Acme Corp", "assistant: On it."}, lines)
	assert.Len(t, got.RecentTurns(1), 1)
	assert.Equal(t, "assistant", got.RecentTurns(1)[0].Role)
}

func TestTurnHistoryTrimmed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)
	for i := 0; i < maxTurnsPerConv+5; i++ {
		require.NoError(t, m.AddTurn(ctx, conv.ID, Turn{Role: "user", Content: "x"}))
	}

	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, maxTurnsPerConv)
}

func TestExpiredConversation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)
	conv.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.Update(ctx, conv))

	_, err = m.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrExpired)

	// Expired conversations are removed on access
	_, err = m.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, conv.ID))

	_, err = m.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupExpired(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	live, err := m.Create(ctx)
	require.NoError(t, err)
	dead, err := m.Create(ctx)
	require.NoError(t, err)
	dead.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.Update(ctx, dead))

	cleaned, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, err = m.Get(ctx, live.ID)
	assert.NoError(t, err)
	_, err = m.Get(ctx, dead.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	conv := &Conversation{Status: StatusIdle}

	require.NoError(t, conv.Transition(StatusResearching))
	require.NoError(t, conv.Transition(StatusComplete))
	require.NoError(t, conv.Transition(StatusIdle))
	require.NoError(t, conv.Transition(StatusResearching))
	require.NoError(t, conv.Transition(StatusError))
	require.NoError(t, conv.Transition(StatusIdle))

	// Same-state transitions are no-ops
	require.NoError(t, conv.Transition(StatusIdle))

	err := conv.Transition(StatusComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal status transition")
	assert.Equal(t, StatusIdle, conv.Status, "failed transition leaves status unchanged")
}

func TestResearchDone(t *testing.T) {
	conv := &Conversation{Status: StatusComplete}
	assert.False(t, conv.ResearchDone(), "complete without a plan is not done")

	conv.Plan = plan.New("run-1", "Acme Corp", "Praxian AI")
	assert.True(t, conv.ResearchDone())

	conv.Status = StatusResearching
	assert.False(t, conv.ResearchDone())
}

func TestCredentialAffinityRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	conv, err := m.Create(ctx)
	require.NoError(t, err)

	pref := backend.NewPreferenceAt(conv.CredentialIndex)
	assert.Equal(t, 0, pref.Index())

	conv.CredentialIndex = 3
	require.NoError(t, m.Update(ctx, conv))

	got, err := m.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, backend.NewPreferenceAt(got.CredentialIndex).Index())
}

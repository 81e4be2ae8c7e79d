package filler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/calmora/remindq/internal/domain/queue"
	"github.com/calmora/remindq/internal/domain/rule"
	"github.com/calmora/remindq/internal/services/filler/repo"
)

type fakeRuleRepo struct {
	rules []*rule.Rule
	err   error
}

func (f *fakeRuleRepo) FetchEnabled(context.Context) ([]*rule.Rule, error) {
	return f.rules, f.err
}

type fakeQueueRepo struct {
	entries   map[string]*queue.Entry
	upsertErr error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: make(map[string]*queue.Entry)}
}

func entryKey(ruleID uuid.UUID, fireAt time.Time) string {
	return ruleID.String() + "|" + fireAt.UTC().Format(time.RFC3339Nano)
}

func (f *fakeQueueRepo) UpsertIgnoreConflict(_ context.Context, e *queue.Entry) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	key := entryKey(e.RuleID, e.FireAt)
	if _, ok := f.entries[key]; ok {
		return false, nil
	}
	cp := *e
	cp.ID = uuid.New()
	f.entries[key] = &cp
	return true, nil
}

func (f *fakeQueueRepo) DeletePendingAfter(_ context.Context, ruleID uuid.UUID, cutoff time.Time) (int64, error) {
	var n int64
	for k, e := range f.entries {
		if e.RuleID == ruleID && e.Status == queue.StatusPending && e.FireAt.After(cutoff) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeQueueRepo) WakeSnoozed(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeQueueRepo) FetchPending(context.Context, time.Time, int) ([]*queue.Entry, error) {
	return nil, nil
}
func (f *fakeQueueRepo) FetchRetrying(context.Context, int, int) ([]*queue.Entry, error) {
	return nil, nil
}
func (f *fakeQueueRepo) Advance(context.Context, uuid.UUID, queue.Status, int) (bool, error) {
	return true, nil
}
func (f *fakeQueueRepo) Snooze(context.Context, uuid.UUID, time.Time) error { return nil }
func (f *fakeQueueRepo) Cancel(context.Context, uuid.UUID) error            { return nil }

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, *rule.Rule) (string, time.Time, bool, error) {
	return "", time.Time{}, false, errors.New("entity lookup down")
}

func ptrTime(t time.Time) *time.Time { return &t }

func newTestUC(rules *fakeRuleRepo, q *fakeQueueRepo) *Usecase {
	return NewUC(
		repo.RuleRepo{R: rules},
		repo.QueueRepo{Q: q},
		rule.NewRegistry(rule.EmbeddedResolver{}),
		passthroughTx{},
		zap.NewNop(),
	)
}

func testRule(due time.Time, offsets ...rule.Offset) *rule.Rule {
	return &rule.Rule{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		App:         "notes",
		EntityID:    "note-1",
		EntityTitle: "Buy milk",
		DueAt:       ptrTime(due),
		Offsets:     offsets,
		Channel:     queue.ChannelTelegram,
		Enabled:     true,
	}
}

func TestFill_InsertsEntryBeforeDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(60 * time.Minute)
	rl := testRule(due, rule.Offset{Minutes: 30, Label: "30 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 1, Inserted: 1}, s)

	require.Len(t, q.entries, 1)
	for _, e := range q.entries {
		require.Equal(t, rl.ID, e.RuleID)
		require.Equal(t, due.Add(-30*time.Minute), e.FireAt)
		require.Equal(t, queue.StatusPending, e.Status)
		require.Equal(t, "🔔 Buy milk", e.Title)
		require.Equal(t, "Reminder: due in 30 min", e.Body)
		require.Equal(t, queue.ChannelTelegram, e.Channel)
	}
}

func TestFill_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := testRule(now.Add(2*time.Hour), rule.Offset{Minutes: 15, Label: "15 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	first, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)

	second, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, second.Inserted)
	require.Equal(t, 1, second.Skipped)
	require.Len(t, q.entries, 1)
}

func TestFill_HorizonBounds(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := testRule(now.Add(30*24*time.Hour), rule.Offset{Minutes: 60, Label: "1 h"})
	past := testRule(now.Add(-time.Hour), rule.Offset{Minutes: 30, Label: "30 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl, past}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, s.Inserted)
	require.Equal(t, 2, s.Skipped)
	require.Empty(t, q.entries)
}

func TestFill_HorizonBoundaryInclusive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// fireAt lands exactly on now+horizon, which is still eligible.
	rl := testRule(now.Add(defaultHorizon+30*time.Minute), rule.Offset{Minutes: 30, Label: "30 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, s.Inserted)
}

func TestFill_FireAtNowIsNotEligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := testRule(now.Add(30*time.Minute), rule.Offset{Minutes: 30, Label: "30 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, s.Inserted)
	require.Equal(t, 1, s.Skipped)
}

func TestFill_ReconcileKeepsSafetyWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := testRule(now.Add(3*time.Hour), rule.Offset{Minutes: 60, Label: "1 h"})
	rl.OffsetsSelected = true

	q := newFakeQueueRepo()
	// Imminent entry, inside the 2m safety window: must survive the reconcile.
	imminent := &queue.Entry{RuleID: rl.ID, UserID: rl.UserID, FireAt: now.Add(time.Minute), Status: queue.StatusPending}
	q.entries[entryKey(rl.ID, imminent.FireAt)] = imminent
	// Stale entry from a previous offset selection, outside the window.
	stale := &queue.Entry{RuleID: rl.ID, UserID: rl.UserID, FireAt: now.Add(30 * time.Minute), Status: queue.StatusPending}
	q.entries[entryKey(rl.ID, stale.FireAt)] = stale

	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, s.Deleted)
	require.Equal(t, 1, s.Inserted)

	_, kept := q.entries[entryKey(rl.ID, imminent.FireAt)]
	require.True(t, kept)
	_, staleKept := q.entries[entryKey(rl.ID, stale.FireAt)]
	require.False(t, staleKept)
}

func TestFill_UnresolvableRuleSkipped(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := testRule(time.Time{}, rule.Offset{Minutes: 30, Label: "30 min"})
	rl.DueAt = nil

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, Summary{Total: 1, Skipped: 1}, s)
}

func TestFill_OneRuleFailingDoesNotAbort(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	broken := testRule(now.Add(time.Hour), rule.Offset{Minutes: 30, Label: "30 min"})
	broken.App = "flaky"
	good := testRule(now.Add(time.Hour), rule.Offset{Minutes: 30, Label: "30 min"})

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{broken, good}}, q)
	uc.Resolvers.Register("flaky", failingResolver{})

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, s.Errors)
	require.Equal(t, 1, s.Inserted)
}

func TestFill_RulesFetchFailureIsFatal(t *testing.T) {
	uc := newTestUC(&fakeRuleRepo{err: errors.New("db down")}, newFakeQueueRepo())

	_, err := uc.Fill(context.Background(), time.Now())
	require.Error(t, err)
}

func TestFill_MultipleOffsets(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(2 * time.Hour)
	rl := testRule(due,
		rule.Offset{Minutes: 30, Label: "30 min"},
		rule.Offset{Minutes: 60, Label: "1 h"},
	)

	q := newFakeQueueRepo()
	uc := newTestUC(&fakeRuleRepo{rules: []*rule.Rule{rl}}, q)

	s, err := uc.Fill(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 2, s.Inserted)
	require.Len(t, q.entries, 2)
}

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeQueueActions struct {
	snoozed   map[uuid.UUID]time.Time
	canceled  map[uuid.UUID]bool
	snoozeErr error
}

func newFakeQueueActions() *fakeQueueActions {
	return &fakeQueueActions{
		snoozed:  make(map[uuid.UUID]time.Time),
		canceled: make(map[uuid.UUID]bool),
	}
}

func (f *fakeQueueActions) Snooze(_ context.Context, id uuid.UUID, fireAt time.Time) error {
	if f.snoozeErr != nil {
		return f.snoozeErr
	}
	f.snoozed[id] = fireAt
	return nil
}

func (f *fakeQueueActions) Cancel(_ context.Context, id uuid.UUID) error {
	f.canceled[id] = true
	return nil
}

type fakeReplier struct {
	answers []string
	edits   []string
}

func (f *fakeReplier) AnswerCallback(_ context.Context, _, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeReplier) EditMessageText(_ context.Context, _, _ int64, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestHandler(q *fakeQueueActions, r *fakeReplier) *Handler {
	return &Handler{
		Queue:   q,
		Replier: r,
		Secret:  "hunter2",
		Clock:   fixedClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		Log:     zap.NewNop(),
		Loc:     time.UTC,
	}
}

func callbackBody(data string) string {
	return fmt.Sprintf(`{
		"callback_query": {
			"id": "cb-1",
			"data": %q,
			"message": {"message_id": 42, "text": "🔔 Buy milk", "chat": {"id": 777}}
		}
	}`, data)
}

func post(h *Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOK(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	var resp struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.OK
}

func TestWebhook_BadSecretRejected(t *testing.T) {
	q := newFakeQueueActions()
	h := newTestHandler(q, &fakeReplier{})
	entryID := uuid.New()

	rec := post(h, callbackBody("cancel:"+entryID.String()), "wrong")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, q.canceled)
}

func TestWebhook_MissingSecretRejected(t *testing.T) {
	h := newTestHandler(newFakeQueueActions(), &fakeReplier{})
	rec := post(h, `{}`, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_PreflightPassesWithoutSecret(t *testing.T) {
	h := newTestHandler(newFakeQueueActions(), &fakeReplier{})
	req := httptest.NewRequest(http.MethodOptions, "/telegram/webhook", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhook_SnoozeSetsFireAtFromClock(t *testing.T) {
	q := newFakeQueueActions()
	r := &fakeReplier{}
	h := newTestHandler(q, r)
	entryID := uuid.New()

	rec := post(h, callbackBody("snooze:30:"+entryID.String()), "hunter2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeOK(t, rec))

	want := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	require.Equal(t, want, q.snoozed[entryID])

	require.Len(t, r.answers, 1)
	require.Equal(t, "⏸ Snoozed for 30 min", r.answers[0])
	require.Len(t, r.edits, 1)
	require.Contains(t, r.edits[0], "🔔 Buy milk")
	require.Contains(t, r.edits[0], "10/03/2026 12:30")
}

func TestWebhook_SnoozeInvalidMinutes(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		t.Run(raw, func(t *testing.T) {
			q := newFakeQueueActions()
			h := newTestHandler(q, &fakeReplier{})

			rec := post(h, callbackBody("snooze:"+raw+":"+uuid.NewString()), "hunter2")
			require.Equal(t, http.StatusOK, rec.Code)
			require.False(t, decodeOK(t, rec))
			require.Empty(t, q.snoozed)
		})
	}
}

func TestWebhook_SnoozeRepoFailureReported(t *testing.T) {
	q := newFakeQueueActions()
	q.snoozeErr = fmt.Errorf("db down")
	r := &fakeReplier{}
	h := newTestHandler(q, r)

	rec := post(h, callbackBody("snooze:30:"+uuid.NewString()), "hunter2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decodeOK(t, rec))
	require.Len(t, r.answers, 1)
	require.Equal(t, "❌ Snooze failed", r.answers[0])
	require.Empty(t, r.edits)
}

func TestWebhook_SnoozeInvalidEntryID(t *testing.T) {
	q := newFakeQueueActions()
	h := newTestHandler(q, &fakeReplier{})

	rec := post(h, callbackBody("snooze:30:not-a-uuid"), "hunter2")
	require.False(t, decodeOK(t, rec))
	require.Empty(t, q.snoozed)
}

func TestWebhook_Cancel(t *testing.T) {
	q := newFakeQueueActions()
	r := &fakeReplier{}
	h := newTestHandler(q, r)
	entryID := uuid.New()

	rec := post(h, callbackBody("cancel:"+entryID.String()), "hunter2")
	require.True(t, decodeOK(t, rec))
	require.True(t, q.canceled[entryID])

	require.Len(t, r.answers, 1)
	require.Equal(t, "❌ Reminder cancelled", r.answers[0])
	require.Len(t, r.edits, 1)
	require.Contains(t, r.edits[0], "❌ <i>Reminder cancelled</i>")
}

func TestWebhook_NonCallbackUpdateAcknowledged(t *testing.T) {
	q := newFakeQueueActions()
	h := newTestHandler(q, &fakeReplier{})

	rec := post(h, `{"message": {"text": "hello"}}`, "hunter2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeOK(t, rec))
	require.Empty(t, q.snoozed)
	require.Empty(t, q.canceled)
}

func TestWebhook_UnknownAction(t *testing.T) {
	q := newFakeQueueActions()
	r := &fakeReplier{}
	h := newTestHandler(q, r)

	rec := post(h, callbackBody("boost:"+uuid.NewString()), "hunter2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, q.snoozed)
	require.Empty(t, q.canceled)
	require.Len(t, r.answers, 1)
	require.Equal(t, "❓ Unknown action", r.answers[0])
}

func TestWebhook_MalformedJSON(t *testing.T) {
	h := newTestHandler(newFakeQueueActions(), &fakeReplier{})
	rec := post(h, `{not json`, "hunter2")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	h := newTestHandler(newFakeQueueActions(), &fakeReplier{})
	req := httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSnoozeLabel(t *testing.T) {
	require.Equal(t, "30 min", SnoozeLabel(30))
	require.Equal(t, "1.5 h", SnoozeLabel(90))
	require.Equal(t, "2 h", SnoozeLabel(120))
	require.Equal(t, "tomorrow", SnoozeLabel(1440))
	require.Equal(t, "tomorrow", SnoozeLabel(4320))
}

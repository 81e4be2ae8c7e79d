// Package webhook processes user-initiated snooze/cancel actions arriving as
// Telegram callback queries. It races freely against the dispatcher:
// snooze and cancel are unconditional writes that always win over whatever
// the dispatcher reads next (last-writer-wins, at-most-one-extra-delivery).
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmora/remindq/internal/domain/notify"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// QueueActions is the slice of queue mutations the handler needs.
type QueueActions interface {
	Snooze(ctx context.Context, id uuid.UUID, fireAt time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Replier answers the callback and edits the originating chat message.
type Replier interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

type Handler struct {
	Queue   QueueActions
	Replier Replier
	Secret  string
	Clock   notify.Clock
	Log     *zap.Logger
	Loc     *time.Location
}

type update struct {
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *message `json:"message"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      chat   `json:"chat"`
}

type chat struct {
	ID int64 `json:"id"`
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock.Now()
	}
	return time.Now().UTC()
}

func (h *Handler) loc() *time.Location {
	if h.Loc != nil {
		return h.Loc
	}
	return time.Local
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Authenticity first, before touching the body.
	if h.Secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			h.Log.Warn("webhook rejected, bad secret token")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var up update
	if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Telegram sends other update kinds too (plain messages, edits);
	// only callback queries carry actions.
	if up.CallbackQuery == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	h.handleCallback(r.Context(), w, up.CallbackQuery)
}

func (h *Handler) handleCallback(ctx context.Context, w http.ResponseWriter, cq *callbackQuery) {
	log := h.Log.With(zap.String("callback_data", cq.Data))

	if cq.Data == "" || cq.Message == nil {
		h.answer(ctx, cq.ID, "❌ Invalid action data")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "missing fields"})
		return
	}

	// callback_data formats: "snooze:<minutes>:<uuid>" | "cancel:<uuid>"
	parts := strings.Split(cq.Data, ":")
	switch {
	case parts[0] == "snooze" && len(parts) == 3:
		h.snooze(ctx, w, cq, parts[1], parts[2])
	case parts[0] == "cancel" && len(parts) == 2:
		h.cancel(ctx, w, cq, parts[1])
	default:
		log.Warn("unrecognized callback_data")
		h.answer(ctx, cq.ID, "❓ Unknown action")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *Handler) snooze(ctx context.Context, w http.ResponseWriter, cq *callbackQuery, minutesRaw, idRaw string) {
	minutes, err := strconv.Atoi(minutesRaw)
	if err != nil || minutes <= 0 {
		h.answer(ctx, cq.ID, "❌ Invalid snooze duration")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "invalid minutes"})
		return
	}
	entryID, err := uuid.Parse(idRaw)
	if err != nil {
		h.answer(ctx, cq.ID, "❌ Invalid action data")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "invalid entry id"})
		return
	}

	newFireAt := h.now().Add(time.Duration(minutes) * time.Minute)
	if err := h.Queue.Snooze(ctx, entryID, newFireAt); err != nil {
		h.Log.Error("snooze", zap.String("entry_id", entryID.String()), zap.Error(err))
		h.answer(ctx, cq.ID, "❌ Snooze failed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	h.answer(ctx, cq.ID, "⏸ Snoozed for "+SnoozeLabel(minutes))
	h.edit(ctx, cq, fmt.Sprintf("%s\n\n⏸ <i>Snoozed — next delivery at %s</i>",
		cq.Message.Text, newFireAt.In(h.loc()).Format("02/01/2006 15:04")))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) cancel(ctx context.Context, w http.ResponseWriter, cq *callbackQuery, idRaw string) {
	entryID, err := uuid.Parse(idRaw)
	if err != nil {
		h.answer(ctx, cq.ID, "❌ Invalid action data")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "invalid entry id"})
		return
	}

	if err := h.Queue.Cancel(ctx, entryID); err != nil {
		h.Log.Error("cancel", zap.String("entry_id", entryID.String()), zap.Error(err))
		h.answer(ctx, cq.ID, "❌ Cancel failed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	h.answer(ctx, cq.ID, "❌ Reminder cancelled")
	h.edit(ctx, cq, cq.Message.Text+"\n\n❌ <i>Reminder cancelled</i>")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Reply failures are logged, never surfaced: the queue mutation already
// happened and Telegram retries the webhook on non-2xx.
func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.Replier.AnswerCallback(ctx, callbackID, text); err != nil {
		h.Log.Warn("answer callback", zap.Error(err))
	}
}

func (h *Handler) edit(ctx context.Context, cq *callbackQuery, text string) {
	if err := h.Replier.EditMessageText(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text); err != nil {
		h.Log.Warn("edit message", zap.Error(err))
	}
}

// SnoozeLabel bands a snooze duration into a human label. Fractional hours
// keep their fraction: 90 minutes reads "1.5 h".
func SnoozeLabel(minutes int) string {
	switch {
	case minutes < 60:
		return fmt.Sprintf("%d min", minutes)
	case minutes < 1440:
		return strconv.FormatFloat(float64(minutes)/60, 'f', -1, 64) + " h"
	default:
		return "tomorrow"
	}
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+secretHeader)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

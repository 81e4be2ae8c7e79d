package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/calmora/remindq/internal/domain/deliverylog"
	"github.com/calmora/remindq/internal/domain/notify"
	"github.com/calmora/remindq/internal/domain/queue"
	"github.com/calmora/remindq/internal/domain/settings"
	"github.com/calmora/remindq/internal/obs"
	"github.com/calmora/remindq/internal/services/dispatcher/repo"
)

const (
	defaultCeiling    = 5
	defaultBatchLimit = 25
)

type Summary struct {
	Total       int `json:"total"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	DigestUsers int `json:"digest_users"`
	DigestItems int `json:"digest_items"`
}

type Usecase struct {
	Queue    repo.QueueRepo
	Settings repo.SettingsRepo
	DLog     repo.LogRepo
	Notifier notify.Notifier
	Log      *zap.Logger

	Ceiling    int
	BatchLimit int
}

func NewUC(q repo.QueueRepo, s repo.SettingsRepo, l repo.LogRepo, n notify.Notifier, log *zap.Logger) *Usecase {
	return &Usecase{Queue: q, Settings: s, DLog: l, Notifier: n, Log: log}
}

func (u *Usecase) ceiling() int {
	if u.Ceiling > 0 {
		return u.Ceiling
	}
	return defaultCeiling
}

func (u *Usecase) batchLimit() int {
	if u.BatchLimit > 0 {
		return u.BatchLimit
	}
	return defaultBatchLimit
}

// settingsCache is run-scoped: at most one settings fetch per user per run,
// never shared across runs.
type settingsCache struct {
	repo  repo.SettingsRepo
	known map[uuid.UUID]*settings.Settings
}

func newSettingsCache(r repo.SettingsRepo) *settingsCache {
	return &settingsCache{repo: r, known: make(map[uuid.UUID]*settings.Settings)}
}

func (c *settingsCache) get(ctx context.Context, userID uuid.UUID) (*settings.Settings, error) {
	if s, ok := c.known[userID]; ok {
		return s, nil
	}
	s, err := c.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.known[userID] = s
	return s, nil
}

// Run executes one delivery cycle: wake snoozed entries, process due pending
// entries, retry in-flight entries up to the attempt ceiling, then send one
// digest per user for entries that reached sent this run. Batch fetches
// failing is fatal; per-entry failures are logged and counted.
func (u *Usecase) Run(ctx context.Context, now time.Time) (Summary, error) {
	tr := otel.Tracer("dispatcher.uc")
	ctx, span := tr.Start(ctx, "dispatcher.run",
		trace.WithAttributes(attribute.Int("batch.limit", u.batchLimit())),
	)
	defer span.End()

	// Phase 0: snoozed entries whose fire time passed fold back into
	// pending so this same run picks them up.
	woken, err := u.Queue.WakeSnoozed(ctx, now)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("wake snoozed: %w", err)
	}
	if woken > 0 {
		obs.WithTrace(ctx, u.Log).Debug("woke snoozed entries", zap.Int64("count", woken))
	}

	pending, err := u.Queue.FetchPending(ctx, now, u.batchLimit())
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("fetch pending: %w", err)
	}
	retrying, err := u.Queue.FetchRetrying(ctx, u.ceiling(), u.batchLimit())
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("fetch retrying: %w", err)
	}

	items := append(pending, retrying...)
	cache := newSettingsCache(u.Settings)

	var (
		s        Summary
		justSent []*queue.Entry
	)
	s.Total = len(items)

	for _, it := range items {
		ok, terminal := u.deliver(ctx, now, it, cache)
		if ok {
			s.Sent++
		} else {
			s.Failed++
		}
		if terminal {
			justSent = append(justSent, it)
		}
	}

	// Phase 3: one digest message per user for entries that reached sent
	// this run. Purely additive, entry statuses stay untouched.
	s.DigestItems = len(justSent)
	s.DigestUsers = u.digest(ctx, justSent, cache)

	span.SetAttributes(
		attribute.Int("run.total", s.Total),
		attribute.Int("run.sent", s.Sent),
		attribute.Int("run.failed", s.Failed),
		attribute.Int("run.digest_users", s.DigestUsers),
	)
	return s, nil
}

// deliver performs one attempt for one entry: send, persist the transition,
// append exactly one log record. Returns whether the send succeeded and
// whether the entry reached its terminal sent status in this attempt.
func (u *Usecase) deliver(ctx context.Context, now time.Time, it *queue.Entry, cache *settingsCache) (bool, bool) {
	tr := otel.Tracer("dispatcher.uc")
	ctx, span := tr.Start(ctx, "dispatcher.deliver",
		trace.WithAttributes(attribute.String("entry.id", it.ID.String())),
	)
	defer span.End()

	newCount := it.SendCount + 1
	newStatus := queue.StatusSending
	if newCount >= u.ceiling() {
		// The ceiling terminates the entry even when every attempt
		// failed; the log keeps the failure visible.
		newStatus = queue.StatusSent
	}

	var (
		sendOK   bool
		response string
		errMsg   string
	)

	st, err := cache.get(ctx, it.UserID)
	if err != nil {
		errMsg = fmt.Sprintf("settings lookup: %v", err)
	} else if it.Channel == queue.ChannelTelegram && st.Deliverable() {
		res, err := u.Notifier.Send(ctx, st.TelegramChatID, it.Title+"\n"+it.Body)
		if err != nil {
			errMsg = fmt.Sprintf("send: %v", err)
		} else if !res.OK {
			response = res.Response
			errMsg = "telegram API error: " + res.Response
		} else {
			sendOK = true
			response = res.Response
		}
	} else {
		// An unreachable channel still burns an attempt, so the entry
		// terminates at the ceiling instead of retrying forever.
		errMsg = "channel not configured or disabled"
	}

	advanced, err := u.Queue.Advance(ctx, it.ID, newStatus, newCount)
	if err != nil {
		span.RecordError(err)
		obs.WithTrace(ctx, u.Log).Warn("advance entry",
			zap.String("entry_id", it.ID.String()), zap.Error(err))
	} else if !advanced {
		// A user snoozed or cancelled while we were sending. Their write
		// wins; the attempt that already left is the accepted tolerance.
		obs.WithTrace(ctx, u.Log).Debug("entry transition dropped, user action won",
			zap.String("entry_id", it.ID.String()))
	}

	result := deliverylog.ResultFailed
	if sendOK {
		result = deliverylog.ResultSent
	}
	if err := u.DLog.Append(ctx, &deliverylog.Record{
		QueueID:  it.ID,
		UserID:   it.UserID,
		App:      it.App,
		EntityID: it.EntityID,
		Title:    it.Title,
		Channel:  it.Channel,
		FiredAt:  now,
		Status:   result,
		Response: response,
		ErrorMsg: errMsg,
	}); err != nil {
		span.RecordError(err)
		obs.WithTrace(ctx, u.Log).Warn("append log record",
			zap.String("entry_id", it.ID.String()), zap.Error(err))
	}

	it.SendCount = newCount
	it.Status = newStatus
	return sendOK, newStatus == queue.StatusSent && advanced
}

func (u *Usecase) digest(ctx context.Context, justSent []*queue.Entry, cache *settingsCache) int {
	if len(justSent) == 0 {
		return 0
	}

	byUser := make(map[uuid.UUID][]*queue.Entry)
	order := make([]uuid.UUID, 0, len(justSent))
	for _, it := range justSent {
		if _, seen := byUser[it.UserID]; !seen {
			order = append(order, it.UserID)
		}
		byUser[it.UserID] = append(byUser[it.UserID], it)
	}

	users := 0
	for _, userID := range order {
		items := byUser[userID]
		st, err := cache.get(ctx, userID)
		if err != nil || !st.Deliverable() {
			continue
		}
		if _, err := u.Notifier.Send(ctx, st.TelegramChatID, digestText(items)); err != nil {
			obs.WithTrace(ctx, u.Log).Warn("digest send",
				zap.String("user_id", userID.String()), zap.Error(err))
			continue
		}
		users++
	}
	return users
}

func digestText(items []*queue.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Notification digest (%d)</b>\n", len(items))
	for _, it := range items {
		fmt.Fprintf(&b, "\n• <b>%s</b>\n  %s\n", it.Title, it.Body)
	}
	return b.String()
}

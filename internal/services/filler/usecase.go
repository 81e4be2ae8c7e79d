package filler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/calmora/remindq/internal/domain/queue"
	"github.com/calmora/remindq/internal/domain/rule"
	"github.com/calmora/remindq/internal/obs"
	"github.com/calmora/remindq/internal/repository/postgres"
	"github.com/calmora/remindq/internal/services/filler/repo"
)

const (
	defaultHorizon      = 7 * 24 * time.Hour
	defaultSafetyWindow = 2 * time.Minute
)

type Summary struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`
	Errors   int `json:"errors"`
}

type Usecase struct {
	Rules     repo.RuleRepo
	Queue     repo.QueueRepo
	Resolvers *rule.Registry
	Tx        postgres.Transactor
	Log       *zap.Logger

	Horizon      time.Duration
	SafetyWindow time.Duration
}

func NewUC(rules repo.RuleRepo, q repo.QueueRepo, resolvers *rule.Registry, tx postgres.Transactor, log *zap.Logger) *Usecase {
	return &Usecase{Rules: rules, Queue: q, Resolvers: resolvers, Tx: tx, Log: log}
}

func (u *Usecase) horizon() time.Duration {
	if u.Horizon > 0 {
		return u.Horizon
	}
	return defaultHorizon
}

func (u *Usecase) safety() time.Duration {
	if u.SafetyWindow > 0 {
		return u.SafetyWindow
	}
	return defaultSafetyWindow
}

// Fill materializes queue entries for every enabled rule within the horizon.
// Each rule's outcome is independent: one rule failing is counted and logged,
// never aborting the pass. Only the rules fetch itself is fatal.
func (u *Usecase) Fill(ctx context.Context, now time.Time) (Summary, error) {
	tr := otel.Tracer("filler.uc")
	ctx, span := tr.Start(ctx, "filler.fill")
	defer span.End()

	rules, err := u.Rules.FetchEnabled(ctx)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("fetch rules: %w", err)
	}

	horizon := now.Add(u.horizon())
	s := Summary{Total: len(rules)}

	for _, rl := range rules {
		res, err := u.fillRule(ctx, now, horizon, rl)
		if err != nil {
			s.Errors++
			obs.WithTrace(ctx, u.Log).Warn("fill rule",
				zap.String("rule_id", rl.ID.String()),
				zap.String("app", rl.App),
				zap.Error(err))
			continue
		}
		s.Inserted += res.Inserted
		s.Skipped += res.Skipped
		s.Deleted += res.Deleted
	}

	span.SetAttributes(
		attribute.Int("fill.total", s.Total),
		attribute.Int("fill.inserted", s.Inserted),
		attribute.Int("fill.deleted", s.Deleted),
		attribute.Int("fill.errors", s.Errors),
	)
	return s, nil
}

func (u *Usecase) fillRule(ctx context.Context, now, horizon time.Time, rl *rule.Rule) (Summary, error) {
	title, dueAt, ok, err := u.Resolvers.For(rl.App).Resolve(ctx, rl)
	if err != nil {
		return Summary{}, fmt.Errorf("resolve %s/%s: %w", rl.App, rl.EntityID, err)
	}
	if !ok {
		return Summary{Skipped: 1}, nil
	}

	var res Summary
	work := func(ctx context.Context) error {
		if rl.OffsetsSelected {
			// Reconciles edits to the rule's offset selection. Entries
			// inside the safety window are about to fire (or are in
			// flight) and must not be pulled out from under the dispatcher.
			n, err := u.Queue.DeletePendingAfter(ctx, rl.ID, now.Add(u.safety()))
			if err != nil {
				return fmt.Errorf("reconcile delete: %w", err)
			}
			res.Deleted = int(n)
		}
		for _, off := range rl.Offsets {
			fireAt := dueAt.Add(-off.Duration())
			if !fireAt.After(now) || fireAt.After(horizon) {
				res.Skipped++
				continue
			}
			inserted, err := u.Queue.UpsertIgnoreConflict(ctx, &queue.Entry{
				RuleID:   rl.ID,
				UserID:   rl.UserID,
				App:      rl.App,
				EntityID: rl.EntityID,
				Title:    "🔔 " + title,
				Body:     "Reminder: due in " + off.Label,
				Channel:  rl.Channel,
				FireAt:   fireAt,
				Status:   queue.StatusPending,
			})
			if err != nil {
				return fmt.Errorf("upsert entry: %w", err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Skipped++
			}
		}
		return nil
	}

	if rl.OffsetsSelected && u.Tx != nil {
		err = u.Tx.WithTx(ctx, work)
	} else {
		err = work(ctx)
	}
	if err != nil {
		return Summary{}, err
	}
	return res, nil
}

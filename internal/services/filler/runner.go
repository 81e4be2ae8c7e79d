package filler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/calmora/remindq/internal/config/filler"
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.FillCfg

	mRules    prometheus.Counter
	mInserted prometheus.Counter
	mDeleted  prometheus.Counter
	mErr      prometheus.Counter
	mTickDur  prometheus.Histogram
}

func New(log *zap.Logger, uc *Usecase, cfg *config.FillCfg) *Runner {
	return &Runner{
		Log: log,
		UC:  uc,
		Cfg: cfg,
		mRules: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filler_rules_total", Help: "Enabled rules considered by the fill pass",
		}),
		mInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filler_entries_inserted_total", Help: "Queue entries inserted",
		}),
		mDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filler_entries_deleted_total", Help: "Stale pending entries reconciled away",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filler_errors_total", Help: "Errors in the fill pass",
		}),
		mTickDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "filler_tick_duration_seconds", Help: "Fill pass duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	s, err := r.UC.Fill(ctx, time.Now().UTC())
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("fill error", zap.Error(err))
		return
	}
	r.mRules.Add(float64(s.Total))
	r.mInserted.Add(float64(s.Inserted))
	r.mDeleted.Add(float64(s.Deleted))
	if s.Errors > 0 {
		r.mErr.Add(float64(s.Errors))
	}
	r.Log.Info("fill pass done",
		zap.Int("total", s.Total),
		zap.Int("inserted", s.Inserted),
		zap.Int("skipped", s.Skipped),
		zap.Int("deleted", s.Deleted),
		zap.Int("errors", s.Errors),
	)
	r.mTickDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// TriggerHandler runs one fill pass on demand and returns the summary,
// for external schedulers that POST instead of relying on the ticker.
func (r *Runner) TriggerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s, err := r.UC.Fill(req.Context(), time.Now().UTC())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(struct {
			OK bool `json:"ok"`
			Summary
		}{OK: true, Summary: s})
	}
}

package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/calmora/remindq/internal/config/dispatcher"
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.DispatchCfg

	mProcessed prometheus.Counter
	mSent      prometheus.Counter
	mFailed    prometheus.Counter
	mDigest    prometheus.Counter
	mErr       prometheus.Counter
	mTickDur   prometheus.Histogram
}

func New(log *zap.Logger, uc *Usecase, cfg *config.DispatchCfg) *Runner {
	return &Runner{
		Log: log,
		UC:  uc,
		Cfg: cfg,
		mProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_entries_processed_total", Help: "Queue entries processed",
		}),
		mSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_sent_total", Help: "Successful delivery attempts",
		}),
		mFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_failed_total", Help: "Failed delivery attempts",
		}),
		mDigest: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_digest_users_total", Help: "Per-user digest messages sent",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_errors_total", Help: "Fatal run errors",
		}),
		mTickDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "dispatcher_tick_duration_seconds", Help: "Delivery run duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	s, err := r.UC.Run(ctx, time.Now().UTC())
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("run error", zap.Error(err))
		return
	}
	r.mProcessed.Add(float64(s.Total))
	r.mSent.Add(float64(s.Sent))
	r.mFailed.Add(float64(s.Failed))
	r.mDigest.Add(float64(s.DigestUsers))
	if s.Total > 0 {
		r.Log.Info("delivery run done",
			zap.Int("total", s.Total),
			zap.Int("sent", s.Sent),
			zap.Int("failed", s.Failed),
			zap.Int("digest_users", s.DigestUsers),
			zap.Int("digest_items", s.DigestItems),
		)
	}
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

// TriggerHandler runs one delivery cycle on demand and returns the summary.
func (r *Runner) TriggerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s, err := r.UC.Run(req.Context(), time.Now().UTC())
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

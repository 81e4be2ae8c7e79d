package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/calmora/remindq/internal/config/filler"
	"github.com/calmora/remindq/internal/domain/rule"
	"github.com/calmora/remindq/internal/obs"
	pg "github.com/calmora/remindq/internal/repository/postgres"
	"github.com/calmora/remindq/internal/services/filler"
	"github.com/calmora/remindq/internal/services/filler/repo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting filler",
		zap.Duration("tick", cfg.Fill.Tick),
		zap.Duration("horizon", cfg.Fill.Horizon),
		zap.String("ops_addr", cfg.Fill.OpsAddr),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	resolvers := rule.NewRegistry(rule.EmbeddedResolver{})
	resolvers.Register("tasks", pg.NewTasksResolver(db))

	uc := filler.NewUC(
		repo.RuleRepo{R: pg.NewRuleRepo(db)},
		repo.QueueRepo{Q: pg.NewQueueRepo(db)},
		resolvers,
		pg.NewTransactor(db, l),
		l,
	)
	uc.Horizon = cfg.Fill.Horizon
	uc.SafetyWindow = cfg.Fill.SafetyWindow

	runner := filler.New(l, uc, &cfg.Fill)

	ops := obs.BootstrapOpsServer(cfg.Fill.OpsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l, obs.Route{Pattern: "/run", Handler: runner.TriggerHandler()})

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("filler started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ops.Shutdown(shCtx)
	l.Info("bye")
}

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

	config "github.com/calmora/remindq/internal/config/dispatcher"
	"github.com/calmora/remindq/internal/obs"
	pg "github.com/calmora/remindq/internal/repository/postgres"
	"github.com/calmora/remindq/internal/repository/telegram"
	"github.com/calmora/remindq/internal/services/dispatcher"
	"github.com/calmora/remindq/internal/services/dispatcher/repo"
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
	l.Info("starting dispatcher",
		zap.Duration("tick", cfg.Dispatch.Tick),
		zap.Int("batch_limit", cfg.Dispatch.BatchLimit),
		zap.Int("ceiling", cfg.Dispatch.Ceiling),
		zap.String("ops_addr", cfg.Dispatch.OpsAddr),
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

	var tgOpts []telegram.Option
	if cfg.Telegram.APIBase != "" {
		tgOpts = append(tgOpts, telegram.WithAPIBase(cfg.Telegram.APIBase))
	}
	notifier := telegram.New(cfg.Telegram.BotToken, tgOpts...)

	uc := dispatcher.NewUC(
		repo.QueueRepo{Q: pg.NewQueueRepo(db)},
		repo.SettingsRepo{S: pg.NewSettingsRepo(db)},
		repo.LogRepo{L: pg.NewLogRepo(db)},
		notifier,
		l,
	)
	uc.Ceiling = cfg.Dispatch.Ceiling
	uc.BatchLimit = cfg.Dispatch.BatchLimit

	runner := dispatcher.New(l, uc, &cfg.Dispatch)

	ops := obs.BootstrapOpsServer(cfg.Dispatch.OpsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l, obs.Route{Pattern: "/run", Handler: runner.TriggerHandler()})

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("dispatcher started")

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

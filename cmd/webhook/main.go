package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/calmora/remindq/internal/config/webhook"
	"github.com/calmora/remindq/internal/domain/notify"
	"github.com/calmora/remindq/internal/obs"
	pg "github.com/calmora/remindq/internal/repository/postgres"
	"github.com/calmora/remindq/internal/repository/telegram"
	"github.com/calmora/remindq/internal/services/webhook"
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
	l.Info("starting webhook", zap.String("addr", cfg.HTTP.Addr))

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
	tg := telegram.New(cfg.Telegram.BotToken, tgOpts...)

	handler := &webhook.Handler{
		Queue:   pg.NewQueueRepo(db),
		Replier: tg,
		Secret:  cfg.HTTP.Secret,
		Clock:   notify.SystemClock{},
		Log:     l,
	}
	srv := webhook.NewServer(cfg.HTTP.Addr, handler)

	ops := obs.BootstrapOpsServer(cfg.HTTP.OpsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	errCh := make(chan error, 1)
	go func() {
		l.Info("webhook listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	_ = ops.Shutdown(shCtx)
	l.Info("bye")
}

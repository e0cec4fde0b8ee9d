package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"pricewatch-go/internal/alert"
	"pricewatch-go/internal/broker"
	"pricewatch-go/internal/config"
	"pricewatch-go/internal/metrics"
	"pricewatch-go/internal/notify"
	"pricewatch-go/internal/server"
	"pricewatch-go/internal/source"
	"pricewatch-go/internal/store"
	"pricewatch-go/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.App.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer db.Close()

	src := source.New(cfg.Provider, log)

	slack := notify.NewSlack(cfg.Notify.SlackWebhookURL, log)
	dispatcher := notify.NewDispatcher(slack, cfg.Notify.MaxInFlight, cfg.Notify.QueueSize, log)
	dispatcher.Start(ctx)

	var brk *broker.Alpaca
	if cfg.Paper.Enabled {
		brk = broker.NewAlpaca(cfg.Paper.AlpacaKeyID, cfg.Paper.AlpacaSecret, cfg.Paper.AlpacaBaseURL, log)
	} else {
		brk = broker.NewAlpaca("", "", "", log)
	}

	srv := server.New(src, db, slack, dispatcher, alert.NewEvaluator(), brk, log)
	httpSrv := &http.Server{Addr: cfg.App.ListenAddr, Handler: srv.Router()}

	go func() {
		log.Info().Str("addr", cfg.App.ListenAddr).Str("provider", cfg.Provider.Kind).Msg("api up")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown api server")
	}
	dispatcher.Wait()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fleetdetention/internal/alerts"
	"fleetdetention/internal/api"
	"fleetdetention/internal/buildinfo"
	"fleetdetention/internal/config"
	"fleetdetention/internal/logging"
	"fleetdetention/internal/metrics"
	"fleetdetention/internal/webhooks"
)

var cli struct {
	Config  string           `help:"YAML config file; environment variables override it." type:"path" env:"CONFIG_FILE"`
	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("detention-api"),
		kong.Description("Fleet detention tracking and alerting service"),
		kong.Vars{"version": buildinfo.Version},
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		// logger is not configured yet
		bootLog := logging.New("info", "json")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("version", buildinfo.Version).Str("commit", buildinfo.Commit).Msg("starting")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("exited with error")
		os.Exit(1)
	}
	log.Info().Msg("stopped")
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.RegisterDefault()

	st, closeStore, err := api.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, closeBroker := api.NewEventBroker(ctx, cfg, log)
	defer closeBroker()

	srv := api.NewServer(st, broker, cfg, log)

	notifiers := alerts.Notifiers{api.BrokerNotifier{Broker: broker}}
	var worker *webhooks.Worker
	if cfg.Webhook.URL != "" {
		pub := webhooks.NewPublisher(1024, log)
		notifiers = append(notifiers, pub)
		worker = webhooks.NewWorker(pub.Queue(), webhooks.WorkerConfig{
			URL:         cfg.Webhook.URL,
			Secret:      cfg.Webhook.Secret,
			MaxAttempts: cfg.Webhook.MaxAttempts,
		}, log)
	}

	eval := alerts.NewEvaluator(st, notifiers, log, cfg.EvalInterval)
	eval.Locks = srv.Dispatch

	hour, minute, err := cfg.PurgeClock()
	if err != nil {
		return err
	}
	purger := alerts.NewPurger(st, log, hour, minute)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return eval.Run(gctx) })
	g.Go(func() error { return purger.Run(gctx) })
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	return g.Wait()
}

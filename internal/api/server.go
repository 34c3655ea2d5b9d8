package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"fleetdetention/internal/config"
	"fleetdetention/internal/dispatch"
	"fleetdetention/internal/metrics"
	"fleetdetention/internal/store"
)

type Server struct {
	Store    store.Store
	Dispatch *dispatch.Service
	Broker   EventBroker
	Logger   zerolog.Logger
	Config   config.Config
	// Now is the clock used for snapshots and default departure times.
	Now func() time.Time
}

// NewServer wires the dispatch service to publish lifecycle events on broker.
func NewServer(st store.Store, broker EventBroker, cfg config.Config, logger zerolog.Logger) *Server {
	return &Server{
		Store:    st,
		Dispatch: dispatch.NewService(st, BrokerNotifier{Broker: broker}, logger),
		Broker:   broker,
		Logger:   logger,
		Config:   cfg,
		Now:      time.Now,
	}
}

// OpenStore uses Postgres when a DATABASE_URL is configured and the in-memory
// store otherwise. The returned close func is always safe to call.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	sp, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sp.Ping(ctx); err != nil {
		_ = sp.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.DBMigrate {
		if err := sp.Migrate(ctx); err != nil {
			_ = sp.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}
	return sp, func() { _ = sp.Close() }, nil
}

// NewEventBroker prefers Redis when REDIS_URL is set and falls back to the
// in-process broker if Redis is unreachable.
func NewEventBroker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (EventBroker, func()) {
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(ctx, cfg.RedisURL, logger)
		if err == nil {
			logger.Info().Msg("using redis event broker")
			return rb, func() { _ = rb.Close() }
		}
		logger.Error().Err(err).Msg("redis broker unavailable, using in-process broker")
	}
	return NewBroker(), func() {}
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(httpMetrics)
	r.Use(recovery(s.Logger))

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(s.Config.RateRPS, s.Config.RateBurst))

		r.Get("/debug", s.DebugJSON)
		r.Get("/stop-types", s.StopTypesHandler)
		r.Post("/detention/calculate", s.CalculateHandler)
		r.Get("/board", s.BoardHandler)

		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", s.ListDriversHandler)
			r.Post("/", s.CreateDriverHandler)
			r.Route("/{driverId}", func(r chi.Router) {
				r.Get("/", s.GetDriverHandler)
				r.Put("/appointment", s.SetAppointmentHandler)
				r.Post("/departure", s.DepartureHandler)
				r.Post("/reset", s.ResetHandler)
			})
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.ListAlertsHandler)
			r.Delete("/", s.ClearAllAlertsHandler)
			r.Delete("/read", s.ClearReadAlertsHandler)
			r.Post("/{alertId}/read", s.MarkAlertReadHandler)
			r.Get("/ws", s.AlertsWSHandler)
		})
	})
	return r
}

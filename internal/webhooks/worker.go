package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"fleetdetention/internal/metrics"
)

var ErrCircuitOpen = errors.New("webhook circuit breaker is open")

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// WorkerConfig holds delivery settings for one endpoint.
type WorkerConfig struct {
	URL    string
	Secret string
	// MaxAttempts counts the first try. Default: 10
	MaxAttempts int
	// InitialInterval is the first retry delay. Default: 1s
	InitialInterval time.Duration
	// MaxInterval caps the retry delay. Default: 1m
	MaxInterval time.Duration
	// BreakerTimeout is how long the breaker stays open. Default: 1m
	BreakerTimeout time.Duration
}

// Worker drains a delivery queue and POSTs each event to the configured URL.
type Worker struct {
	Queue  <-chan Delivery
	HTTP   *http.Client
	Config WorkerConfig
	Logger zerolog.Logger

	breaker *gobreaker.CircuitBreaker[int]
	stop    chan struct{}
	done    chan struct{}
}

func NewWorker(queue <-chan Delivery, cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Minute
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	w := &Worker{
		Queue:  queue,
		HTTP:   &http.Client{Timeout: 5 * time.Second},
		Config: cfg,
		Logger: logger,
	}
	w.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "alert-webhook",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("webhook circuit breaker state change")
		},
	})
	return w
}

// Start delivers queued events in the background until Stop.
func (w *Worker) Start() {
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.stop:
				return
			case d, ok := <-w.Queue:
				if !ok {
					return
				}
				ctx, cancel := context.WithCancel(context.Background())
				go func() {
					select {
					case <-w.stop:
						cancel()
					case <-ctx.Done():
					}
				}()
				if err := w.processOnce(ctx, d); err != nil {
					w.Logger.Error().Err(err).Str("event_id", d.ID).Str("event_type", d.EventType).Msg("webhook delivery failed")
				}
				cancel()
			}
		}
	}()
}

// Stop aborts any in-flight retries and waits for the loop to exit.
func (w *Worker) Stop() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
	w.stop = nil
}

// Run is Start/Stop bound to ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.Start()
	<-ctx.Done()
	w.Stop()
	return nil
}

// processOnce delivers one event, retrying transient failures with exponential
// backoff up to MaxAttempts. 4xx responses are not retried.
func (w *Worker) processOnce(ctx context.Context, d Delivery) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.Config.InitialInterval
	bo.MaxInterval = w.Config.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(w.Config.MaxAttempts-1)), ctx)

	attempts := 0
	op := func() error {
		attempts++
		start := time.Now()
		code, err := w.breaker.Execute(func() (int, error) { return w.post(ctx, d) })
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.WebhookLatency.WithLabelValues(status).Observe(float64(time.Since(start).Milliseconds()))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case code >= 400 && code < 500:
			return backoff.Permanent(err)
		}
		w.Logger.Debug().Err(err).Int("attempt", attempts).Str("event_id", d.ID).Msg("webhook attempt failed")
		return err
	}
	err := backoff.Retry(op, policy)
	switch {
	case err == nil:
		metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	case errors.Is(err, ErrCircuitOpen):
		metrics.WebhookDeliveries.WithLabelValues("circuit_open").Inc()
	default:
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
	}
	if err != nil {
		return fmt.Errorf("deliver %s after %d attempts: %w", d.ID, attempts, err)
	}
	return nil
}

func (w *Worker) post(ctx context.Context, d Delivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Config.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	req.Header.Set("X-Event-Id", d.ID)
	if w.Config.Secret != "" {
		req.Header.Set(SignatureHeader, SignHMAC(w.Config.Secret, d.Payload))
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, nil
}

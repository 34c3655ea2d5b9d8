package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/metrics"
	"fleetdetention/internal/model"
	"fleetdetention/internal/store"
)

// Store is the slice of storage the evaluator reads and appends to.
type Store interface {
	ListActiveAppointments(ctx context.Context) ([]model.DriverLocation, error)
	GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error)
	GetDriver(ctx context.Context, driverID string) (model.Driver, error)
	RecordAlert(ctx context.Context, in model.AlertIn, prevReminder time.Time) (model.Alert, bool, error)
}

// DriverLocker serialises work on one driver with departure handling.
type DriverLocker interface {
	LockDriver(driverID string) (unlock func())
}

// TickResult summarises one evaluation pass.
type TickResult struct {
	Evaluated   int
	InDetention int
	Failed      int
	Created     []model.Alert
	Skipped     bool
}

// Evaluator polls active appointments and records warning, critical and reminder
// alerts at most once per triggering condition.
type Evaluator struct {
	Store    Store
	Notifier Notifier
	Locks    DriverLocker
	Logger   zerolog.Logger
	Interval time.Duration
	Now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewEvaluator(s Store, n Notifier, logger zerolog.Logger, interval time.Duration) *Evaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Evaluator{Store: s, Notifier: n, Logger: logger, Interval: interval, Now: time.Now}
}

// Tick evaluates every active appointment once. A failing driver is logged and
// counted; it never aborts the pass. Ticks that overlap a running one are skipped.
func (e *Evaluator) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.Logger.Warn().Msg("previous evaluator tick still running, skipping")
		return TickResult{Skipped: true}, nil
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	began := time.Now()
	defer func() { metrics.EvaluatorTickDuration.Observe(time.Since(began).Seconds()) }()

	var res TickResult
	locs, err := e.Store.ListActiveAppointments(ctx)
	if err != nil {
		return res, fmt.Errorf("list active appointments: %w", err)
	}
	for _, loc := range locs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		created, inDetention, err := e.evaluateDriver(ctx, loc.DriverID, now)
		res.Evaluated++
		if err != nil {
			res.Failed++
			metrics.EvaluatorDriverFailures.Inc()
			e.Logger.Error().Err(err).Str("driver_id", loc.DriverID).Msg("alert evaluation failed")
			continue
		}
		if inDetention {
			res.InDetention++
		}
		res.Created = append(res.Created, created...)
	}
	metrics.EvaluatorTicks.Inc()
	metrics.DriversInDetention.Set(float64(res.InDetention))
	if len(res.Created) > 0 || res.Failed > 0 {
		e.Logger.Info().
			Int("evaluated", res.Evaluated).
			Int("in_detention", res.InDetention).
			Int("created", len(res.Created)).
			Int("failed", res.Failed).
			Msg("alert evaluator tick")
	}
	return res, nil
}

func (e *Evaluator) evaluateDriver(ctx context.Context, driverID string, now time.Time) ([]model.Alert, bool, error) {
	if e.Locks != nil {
		defer e.Locks.LockDriver(driverID)()
	}
	// re-read under the lock; a departure may have landed since the listing
	loc, err := e.Store.GetLocation(ctx, driverID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get location: %w", err)
	}
	if !loc.Active() {
		return nil, false, nil
	}
	inDetention := !now.Before(detention.DetentionStart(*loc.AppointmentTime, loc.StopType))
	due := Decide(loc, now)
	if len(due) == 0 {
		return nil, inDetention, nil
	}

	name := driverID
	if d, err := e.Store.GetDriver(ctx, driverID); err == nil && d.Name != "" {
		name = d.Name
	}
	var prevReminder time.Time
	if loc.LastReminderAt != nil {
		prevReminder = *loc.LastReminderAt
	}
	var created []model.Alert
	for _, t := range due {
		a, ok, err := e.Store.RecordAlert(ctx, model.AlertIn{
			DriverID:        driverID,
			Type:            t,
			Message:         Message(t, name, loc, now),
			AppointmentTime: *loc.AppointmentTime,
			Timestamp:       now,
		}, prevReminder)
		if err != nil {
			return created, inDetention, fmt.Errorf("record %s alert: %w", t, err)
		}
		if !ok {
			// another evaluator claimed it, or the cycle changed after the read
			e.Logger.Debug().Str("driver_id", driverID).Str("type", string(t)).Msg("alert already recorded")
			continue
		}
		metrics.AlertsCreated.WithLabelValues(string(t)).Inc()
		created = append(created, a)
		if e.Notifier != nil {
			e.Notifier.OnAlertCreated(a)
		}
	}
	return created, inDetention, nil
}

// Start runs Tick every Interval until Stop is called or ctx ends.
func (e *Evaluator) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stop != nil {
		e.mu.Unlock()
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	stop, done := e.stop, e.done
	e.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.Interval)
		defer ticker.Stop()
		e.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				e.runOnce(ctx)
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for an in-flight tick.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Evaluator) runOnce(ctx context.Context) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	if _, err := e.Tick(ctx, now()); err != nil && ctx.Err() == nil {
		e.Logger.Error().Err(err).Msg("alert evaluator tick failed")
	}
}

// Run blocks, ticking every Interval, until ctx ends.
func (e *Evaluator) Run(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	e.Stop()
	return nil
}

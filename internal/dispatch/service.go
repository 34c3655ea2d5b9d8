// Package dispatch applies appointment lifecycle changes for drivers and renders
// their live detention state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/metrics"
	"fleetdetention/internal/model"
)

var (
	ErrNoAppointment              = errors.New("driver has no appointment")
	ErrDepartureBeforeAppointment = errors.New("departure time is before appointment time")
	ErrAlreadyFinalized           = errors.New("appointment already finalized with a different departure")
)

// Event names passed to Observer.
const (
	EventAppointmentUpdated   = "appointment.updated"
	EventAppointmentFinalized = "appointment.finalized"
	EventAppointmentReset     = "appointment.reset"
)

type Store interface {
	GetDriver(ctx context.Context, driverID string) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)
	GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error)
	ListDriverLocations(ctx context.Context) ([]model.DriverLocation, error)
	SetAppointment(ctx context.Context, driverID string, appointment time.Time, stopType model.StopType, facility string) (model.DriverLocation, error)
	SetDeparture(ctx context.Context, driverID string, departure time.Time) (model.DriverLocation, error)
	SaveFinalDetention(ctx context.Context, driverID string, appointment time.Time, final model.FinalDetention) (model.DriverLocation, error)
	ResetAppointment(ctx context.Context, driverID string) (model.DriverLocation, error)
}

// Observer is told about every committed lifecycle change.
type Observer interface {
	OnAppointmentChanged(event string, loc model.DriverLocation)
}

// DriverView is one dashboard row.
type DriverView struct {
	Driver   model.Driver         `json:"driver"`
	Location model.DriverLocation `json:"location"`
	Snapshot detention.Snapshot   `json:"snapshot"`
}

type Service struct {
	store     Store
	finalizer *detention.Finalizer
	observer  Observer
	logger    zerolog.Logger
	locks     keyedMutex
}

func NewService(s Store, obs Observer, logger zerolog.Logger) *Service {
	return &Service{store: s, finalizer: detention.NewFinalizer(s), observer: obs, logger: logger}
}

// LockDriver serialises lifecycle changes and alert evaluation for one driver.
func (s *Service) LockDriver(driverID string) func() {
	return s.locks.lock(driverID)
}

// SetAppointment starts a new appointment cycle, clearing any departure and
// frozen detention from the previous one.
func (s *Service) SetAppointment(ctx context.Context, driverID string, appointment time.Time, st model.StopType, facility string) (model.DriverLocation, error) {
	defer s.LockDriver(driverID)()
	loc, err := s.store.SetAppointment(ctx, driverID, appointment, st, facility)
	if err != nil {
		return model.DriverLocation{}, fmt.Errorf("set appointment: %w", err)
	}
	s.logger.Info().Str("driver_id", driverID).Time("appointment", appointment).Str("stop_type", string(st)).Msg("appointment set")
	s.notify(EventAppointmentUpdated, loc)
	return loc, nil
}

// RecordDeparture persists the departure and only then freezes the detention
// for the cycle. Repeating the same departure returns the frozen values.
func (s *Service) RecordDeparture(ctx context.Context, driverID string, departure time.Time) (model.FinalDetention, model.DriverLocation, error) {
	// stored at microsecond precision; a resent departure must compare equal
	departure = departure.UTC().Truncate(time.Microsecond)
	defer s.LockDriver(driverID)()
	loc, err := s.store.GetLocation(ctx, driverID)
	if err != nil {
		return model.FinalDetention{}, model.DriverLocation{}, fmt.Errorf("record departure: %w", err)
	}
	if loc.AppointmentTime == nil {
		return model.FinalDetention{}, loc, ErrNoAppointment
	}
	if departure.Before(*loc.AppointmentTime) {
		return model.FinalDetention{}, loc, ErrDepartureBeforeAppointment
	}
	if loc.Finalized() {
		if loc.DepartureTime != nil && loc.DepartureTime.Equal(departure) {
			f, err := s.finalizer.Finalize(ctx, driverID)
			return f, loc, err
		}
		return model.FinalDetention{}, loc, ErrAlreadyFinalized
	}

	if _, err := s.store.SetDeparture(ctx, driverID, departure); err != nil {
		return model.FinalDetention{}, loc, fmt.Errorf("record departure: %w", err)
	}
	final, err := s.finalizer.Finalize(ctx, driverID)
	if err != nil {
		if errors.Is(err, detention.ErrNoAppointment) {
			err = ErrNoAppointment
		}
		return model.FinalDetention{}, loc, err
	}
	loc, err = s.store.GetLocation(ctx, driverID)
	if err != nil {
		return final, model.DriverLocation{}, fmt.Errorf("record departure: %w", err)
	}
	metrics.Finalized.Inc()
	metrics.FinalMinutes.Observe(float64(final.Minutes))
	s.logger.Info().
		Str("driver_id", driverID).
		Time("departure", departure).
		Int("detention_minutes", final.Minutes).
		Float64("detention_cost", final.Cost).
		Msg("appointment finalized")
	s.notify(EventAppointmentFinalized, loc)
	return final, loc, nil
}

// ResetAppointment unconditionally returns the driver to standby.
func (s *Service) ResetAppointment(ctx context.Context, driverID string) (model.DriverLocation, error) {
	defer s.LockDriver(driverID)()
	loc, err := s.store.ResetAppointment(ctx, driverID)
	if err != nil {
		return model.DriverLocation{}, fmt.Errorf("reset appointment: %w", err)
	}
	s.logger.Info().Str("driver_id", driverID).Msg("appointment reset")
	s.notify(EventAppointmentReset, loc)
	return loc, nil
}

// Snapshot renders one driver's detention state at now.
func (s *Service) Snapshot(ctx context.Context, driverID string, now time.Time) (DriverView, error) {
	d, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return DriverView{}, err
	}
	loc, err := s.store.GetLocation(ctx, driverID)
	if err != nil {
		return DriverView{}, err
	}
	return DriverView{Driver: d, Location: loc, Snapshot: detention.Evaluate(detention.InputFromLocation(loc), now)}, nil
}

// Board renders every driver, ordered by name.
func (s *Service) Board(ctx context.Context, now time.Time) ([]DriverView, error) {
	drivers, err := s.store.ListDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	locs, err := s.store.ListDriverLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	byDriver := make(map[string]model.DriverLocation, len(locs))
	for _, l := range locs {
		byDriver[l.DriverID] = l
	}
	out := make([]DriverView, 0, len(drivers))
	for _, d := range drivers {
		loc, ok := byDriver[d.ID]
		if !ok {
			loc = model.DriverLocation{DriverID: d.ID, StopType: model.StopRegular}
		}
		out = append(out, DriverView{Driver: d, Location: loc, Snapshot: detention.Evaluate(detention.InputFromLocation(loc), now)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Driver.Name < out[j].Driver.Name })
	return out, nil
}

func (s *Service) notify(event string, loc model.DriverLocation) {
	if s.observer != nil {
		s.observer.OnAppointmentChanged(event, loc)
	}
}

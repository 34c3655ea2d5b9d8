package detention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleetdetention/internal/model"
)

var (
	// ErrNoDeparture is returned when finalization is attempted before the
	// departure time has been persisted.
	ErrNoDeparture = errors.New("departure time not recorded")
	// ErrNoAppointment is returned when the location has no appointment cycle.
	ErrNoAppointment = errors.New("no appointment set")
)

// LocationStore is what the finalizer needs from storage.
type LocationStore interface {
	GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error)
	// SaveFinalDetention stores final values only if none are stored yet for the
	// given appointment cycle, and returns the row as persisted afterwards.
	SaveFinalDetention(ctx context.Context, driverID string, appointment time.Time, final model.FinalDetention) (model.DriverLocation, error)
}

// ComputeFinal is the detention accrued between detention start and departure.
// Departures inside the free period yield zero.
func ComputeFinal(appointment time.Time, st model.StopType, departure time.Time) model.FinalDetention {
	start := DetentionStart(appointment, st)
	if !departure.After(start) {
		return model.FinalDetention{}
	}
	minutes := int(departure.Sub(start) / time.Minute)
	return model.FinalDetention{Minutes: minutes, Cost: Cost(minutes)}
}

// Finalizer freezes detention minutes and cost for a departed appointment.
type Finalizer struct {
	Store LocationStore
}

func NewFinalizer(s LocationStore) *Finalizer {
	return &Finalizer{Store: s}
}

// Finalize reads the persisted row back, so the departure must already be
// durably written. Calling it again for the same cycle returns the frozen values.
func (f *Finalizer) Finalize(ctx context.Context, driverID string) (model.FinalDetention, error) {
	loc, err := f.Store.GetLocation(ctx, driverID)
	if err != nil {
		return model.FinalDetention{}, fmt.Errorf("finalize %s: %w", driverID, err)
	}
	if loc.AppointmentTime == nil {
		return model.FinalDetention{}, ErrNoAppointment
	}
	if loc.DepartureTime == nil {
		return model.FinalDetention{}, ErrNoDeparture
	}
	if loc.Finalized() {
		return frozen(loc), nil
	}
	final := ComputeFinal(*loc.AppointmentTime, loc.StopType, *loc.DepartureTime)
	saved, err := f.Store.SaveFinalDetention(ctx, driverID, *loc.AppointmentTime, final)
	if err != nil {
		return model.FinalDetention{}, fmt.Errorf("finalize %s: save: %w", driverID, err)
	}
	if !saved.Finalized() {
		// row was reset between read and write
		return model.FinalDetention{}, ErrNoAppointment
	}
	return frozen(saved), nil
}

func frozen(loc model.DriverLocation) model.FinalDetention {
	out := model.FinalDetention{Minutes: *loc.FinalDetentionMinutes}
	if loc.FinalDetentionCost != nil {
		out.Cost = *loc.FinalDetentionCost
	} else {
		out.Cost = Cost(out.Minutes)
	}
	return out
}

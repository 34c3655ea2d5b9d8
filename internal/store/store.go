package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fleetdetention/internal/model"
)

// Store is the persistence interface behind the detention engine and the API.
type Store interface {
	// Drivers
	CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error)
	GetDriver(ctx context.Context, driverID string) (model.Driver, error)
	ListDrivers(ctx context.Context) ([]model.Driver, error)

	// Locations: one appointment cycle per driver
	GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error)
	ListDriverLocations(ctx context.Context) ([]model.DriverLocation, error)
	ListActiveAppointments(ctx context.Context) ([]model.DriverLocation, error)
	SetAppointment(ctx context.Context, driverID string, appointment time.Time, stopType model.StopType, facility string) (model.DriverLocation, error)
	SetDeparture(ctx context.Context, driverID string, departure time.Time) (model.DriverLocation, error)
	SaveFinalDetention(ctx context.Context, driverID string, appointment time.Time, final model.FinalDetention) (model.DriverLocation, error)
	ResetAppointment(ctx context.Context, driverID string) (model.DriverLocation, error)

	// Alerts
	CreateAlert(ctx context.Context, in model.AlertIn) (model.Alert, error)
	// RecordAlert stamps the cycle marker for in.Type and inserts the alert in
	// one step. It reports false and writes nothing when the driver has no
	// active cycle at in.AppointmentTime, when the warning or critical marker is
	// already set, or when the reminder marker no longer equals prevReminder
	// (zero means no reminder yet).
	RecordAlert(ctx context.Context, in model.AlertIn, prevReminder time.Time) (model.Alert, bool, error)
	ListAlerts(ctx context.Context, driverID string) ([]model.Alert, error)
	ListAlertsForAppointment(ctx context.Context, driverID string, appointment time.Time) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, alertID string) error
	ClearReadAlerts(ctx context.Context) (int, error)
	ClearAllAlerts(ctx context.Context) (int, error)
	DeleteAlertsBefore(ctx context.Context, before time.Time) (int, error)

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// Times are kept at microsecond precision, the resolution of a TIMESTAMPTZ
// column, so a value read back compares equal to the one written.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func newAlert(in model.AlertIn, now time.Time) model.Alert {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return model.Alert{
		ID:              uuid.New().String(),
		DriverID:        in.DriverID,
		Type:            in.Type,
		Message:         in.Message,
		Timestamp:       storedTime(ts),
		AppointmentTime: storedTime(in.AppointmentTime),
	}
}

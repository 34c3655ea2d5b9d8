package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetdetention/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	drivers map[string]model.Driver         // id -> driver
	locs    map[string]model.DriverLocation // driverId -> current stop
	alerts  []model.Alert                   // append order
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		drivers: map[string]model.Driver{},
		locs:    map[string]model.DriverLocation{},
		now:     time.Now,
	}
}

func (m *Memory) CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := storedTime(m.now())
	d := model.Driver{ID: uuid.New().String(), Name: in.Name, Phone: in.Phone, CreatedAt: now}
	m.drivers[d.ID] = d
	m.locs[d.ID] = model.DriverLocation{DriverID: d.ID, StopType: model.StopRegular, UpdatedAt: now}
	return d, nil
}

func (m *Memory) GetDriver(ctx context.Context, driverID string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[driverID]
	if !ok {
		return model.DriverLocation{}, ErrNotFound
	}
	return copyLocation(l), nil
}

func (m *Memory) ListDriverLocations(ctx context.Context) ([]model.DriverLocation, error) {
	return m.listLocations(func(model.DriverLocation) bool { return true }), nil
}

func (m *Memory) ListActiveAppointments(ctx context.Context) ([]model.DriverLocation, error) {
	return m.listLocations(model.DriverLocation.Active), nil
}

func (m *Memory) listLocations(keep func(model.DriverLocation) bool) []model.DriverLocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.DriverLocation{}
	for _, l := range m.locs {
		if keep(l) {
			out = append(out, copyLocation(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

// SetAppointment starts a new cycle: departure, final values and alert
// markers are cleared.
func (m *Memory) SetAppointment(ctx context.Context, driverID string, appointment time.Time, stopType model.StopType, facility string) (model.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locs[driverID]; !ok {
		return model.DriverLocation{}, ErrNotFound
	}
	at := storedTime(appointment)
	l := model.DriverLocation{
		DriverID:        driverID,
		Facility:        facility,
		AppointmentTime: &at,
		StopType:        stopType,
		UpdatedAt:       storedTime(m.now()),
	}
	m.locs[driverID] = l
	return copyLocation(l), nil
}

func (m *Memory) SetDeparture(ctx context.Context, driverID string, departure time.Time) (model.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[driverID]
	if !ok {
		return model.DriverLocation{}, ErrNotFound
	}
	dt := storedTime(departure)
	l.DepartureTime = &dt
	l.UpdatedAt = storedTime(m.now())
	m.locs[driverID] = l
	return copyLocation(l), nil
}

func (m *Memory) SaveFinalDetention(ctx context.Context, driverID string, appointment time.Time, final model.FinalDetention) (model.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[driverID]
	if !ok {
		return model.DriverLocation{}, ErrNotFound
	}
	// frozen values are never overwritten; a reset or new appointment changes the key
	if l.FinalDetentionMinutes == nil && l.AppointmentTime != nil && l.AppointmentTime.Equal(storedTime(appointment)) {
		mins, cost := final.Minutes, final.Cost
		l.FinalDetentionMinutes = &mins
		l.FinalDetentionCost = &cost
		l.UpdatedAt = storedTime(m.now())
		m.locs[driverID] = l
	}
	return copyLocation(l), nil
}

func (m *Memory) ResetAppointment(ctx context.Context, driverID string) (model.DriverLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locs[driverID]; !ok {
		return model.DriverLocation{}, ErrNotFound
	}
	l := model.DriverLocation{DriverID: driverID, StopType: model.StopRegular, UpdatedAt: storedTime(m.now())}
	m.locs[driverID] = l
	return l, nil
}

func (m *Memory) CreateAlert(ctx context.Context, in model.AlertIn) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := newAlert(in, m.now())
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *Memory) RecordAlert(ctx context.Context, in model.AlertIn, prevReminder time.Time) (model.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := newAlert(in, m.now())
	l, ok := m.locs[in.DriverID]
	if !ok || !l.Active() || !l.AppointmentTime.Equal(a.AppointmentTime) {
		return model.Alert{}, false, nil
	}
	ts := a.Timestamp
	switch in.Type {
	case model.AlertWarning:
		if l.WarningSentAt != nil {
			return model.Alert{}, false, nil
		}
		l.WarningSentAt = &ts
	case model.AlertCritical:
		if l.CriticalSentAt != nil {
			return model.Alert{}, false, nil
		}
		l.CriticalSentAt = &ts
	case model.AlertReminder:
		if !markerIs(l.LastReminderAt, prevReminder) {
			return model.Alert{}, false, nil
		}
		l.LastReminderAt = &ts
	default:
		return model.Alert{}, false, fmt.Errorf("unknown alert type %q", in.Type)
	}
	m.locs[in.DriverID] = l
	m.alerts = append(m.alerts, a)
	return a, true, nil
}

// markerIs matches SQL's IS NOT DISTINCT FROM, with the zero time as NULL.
func markerIs(cur *time.Time, want time.Time) bool {
	if cur == nil {
		return want.IsZero()
	}
	return !want.IsZero() && cur.Equal(storedTime(want))
}

// ListAlerts returns alerts newest first; empty driverID lists all drivers.
func (m *Memory) ListAlerts(ctx context.Context, driverID string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Alert{}
	for i := len(m.alerts) - 1; i >= 0; i-- {
		if driverID == "" || m.alerts[i].DriverID == driverID {
			out = append(out, m.alerts[i])
		}
	}
	return out, nil
}

func (m *Memory) ListAlertsForAppointment(ctx context.Context, driverID string, appointment time.Time) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Alert{}
	for i := len(m.alerts) - 1; i >= 0; i-- {
		a := m.alerts[i]
		if a.DriverID == driverID && a.AppointmentTime.Equal(storedTime(appointment)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) MarkAlertRead(ctx context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == alertID {
			m.alerts[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ClearReadAlerts(ctx context.Context) (int, error) {
	return m.deleteAlerts(func(a model.Alert) bool { return a.IsRead }), nil
}

func (m *Memory) ClearAllAlerts(ctx context.Context) (int, error) {
	return m.deleteAlerts(func(model.Alert) bool { return true }), nil
}

func (m *Memory) DeleteAlertsBefore(ctx context.Context, before time.Time) (int, error) {
	return m.deleteAlerts(func(a model.Alert) bool { return a.Timestamp.Before(before) }), nil
}

func (m *Memory) deleteAlerts(drop func(model.Alert) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.alerts[:0]
	n := 0
	for _, a := range m.alerts {
		if drop(a) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.alerts = kept
	return n
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// SetClock overrides the timestamp source; tests use it to age alerts.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func copyLocation(l model.DriverLocation) model.DriverLocation {
	out := l
	out.AppointmentTime = copyTime(l.AppointmentTime)
	out.DepartureTime = copyTime(l.DepartureTime)
	out.WarningSentAt = copyTime(l.WarningSentAt)
	out.CriticalSentAt = copyTime(l.CriticalSentAt)
	out.LastReminderAt = copyTime(l.LastReminderAt)
	if l.FinalDetentionMinutes != nil {
		v := *l.FinalDetentionMinutes
		out.FinalDetentionMinutes = &v
	}
	if l.FinalDetentionCost != nil {
		v := *l.FinalDetentionCost
		out.FinalDetentionCost = &v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

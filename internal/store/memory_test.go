package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdetention/internal/model"
)

func newDriver(t *testing.T, m *Memory, name string) model.Driver {
	t.Helper()
	d, err := m.CreateDriver(context.Background(), model.DriverIn{Name: name})
	require.NoError(t, err)
	return d
}

func TestMemoryAppointmentLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := newDriver(t, m, "Ana")

	l, err := m.GetLocation(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, l.AppointmentTime)
	assert.Equal(t, model.StopRegular, l.StopType)

	appt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l, err = m.SetAppointment(ctx, d.ID, appt, model.StopDropHook, "Dock 7")
	require.NoError(t, err)
	assert.True(t, l.Active())

	active, err := m.ListActiveAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = m.SetDeparture(ctx, d.ID, appt.Add(45*time.Minute))
	require.NoError(t, err)
	active, _ = m.ListActiveAppointments(ctx)
	assert.Empty(t, active)

	l, err = m.SaveFinalDetention(ctx, d.ID, appt, model.FinalDetention{Minutes: 15, Cost: 18.75})
	require.NoError(t, err)
	require.True(t, l.Finalized())

	// frozen: second save is ignored
	l, err = m.SaveFinalDetention(ctx, d.ID, appt, model.FinalDetention{Minutes: 40, Cost: 50})
	require.NoError(t, err)
	assert.Equal(t, 15, *l.FinalDetentionMinutes)
	assert.Equal(t, 18.75, *l.FinalDetentionCost)

	l, err = m.ResetAppointment(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, l.AppointmentTime)
	assert.Nil(t, l.DepartureTime)
	assert.Nil(t, l.FinalDetentionMinutes)
	assert.Equal(t, model.StopRegular, l.StopType)
}

func TestMemorySaveFinalIgnoresStaleAppointment(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := newDriver(t, m, "Bo")
	appt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	_, _ = m.SetAppointment(ctx, d.ID, appt, model.StopRegular, "")
	_, _ = m.SetAppointment(ctx, d.ID, appt.Add(time.Hour), model.StopRegular, "")

	l, err := m.SaveFinalDetention(ctx, d.ID, appt, model.FinalDetention{Minutes: 3, Cost: 3.75})
	require.NoError(t, err)
	assert.False(t, l.Finalized())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := newDriver(t, m, "Cy")
	appt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l, _ := m.SetAppointment(ctx, d.ID, appt, model.StopRegular, "")
	*l.AppointmentTime = appt.Add(5 * time.Hour)

	got, _ := m.GetLocation(ctx, d.ID)
	assert.True(t, got.AppointmentTime.Equal(appt))
}

func TestMemoryUnknownDriver(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.GetLocation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.SetDeparture(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.MarkAlertRead(ctx, "missing"), ErrNotFound)
}

func TestMemoryAlerts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a1 := newDriver(t, m, "A")
	a2 := newDriver(t, m, "B")
	appt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	clock := appt
	m.SetClock(func() time.Time { return clock })

	w, err := m.CreateAlert(ctx, model.AlertIn{DriverID: a1.ID, Type: model.AlertWarning, Message: "w", AppointmentTime: appt})
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, err = m.CreateAlert(ctx, model.AlertIn{DriverID: a1.ID, Type: model.AlertCritical, Message: "c", AppointmentTime: appt})
	require.NoError(t, err)
	_, err = m.CreateAlert(ctx, model.AlertIn{DriverID: a2.ID, Type: model.AlertCritical, Message: "c2", AppointmentTime: appt})
	require.NoError(t, err)
	_, err = m.CreateAlert(ctx, model.AlertIn{DriverID: a1.ID, Type: model.AlertCritical, Message: "old cycle", AppointmentTime: appt.Add(-24 * time.Hour)})
	require.NoError(t, err)

	all, _ := m.ListAlerts(ctx, "")
	assert.Len(t, all, 4)
	forA1, _ := m.ListAlerts(ctx, a1.ID)
	assert.Len(t, forA1, 3)
	assert.Equal(t, "old cycle", forA1[0].Message, "newest first")

	cycle, _ := m.ListAlertsForAppointment(ctx, a1.ID, appt)
	assert.Len(t, cycle, 2)

	require.NoError(t, m.MarkAlertRead(ctx, w.ID))
	n, err := m.ClearReadAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.DeleteAlertsBefore(ctx, clock)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = m.DeleteAlertsBefore(ctx, clock.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, _ = m.CreateAlert(ctx, model.AlertIn{DriverID: a2.ID, Type: model.AlertReminder, Message: "r", AppointmentTime: appt})
	n, _ = m.ClearAllAlerts(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryListDriversSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newDriver(t, m, "Zed")
	newDriver(t, m, "Amy")
	ds, err := m.ListDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "Amy", ds[0].Name)
}

func TestMemoryRecordAlertClaimsMarkers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := newDriver(t, m, "Ana")
	appt := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	_, err := m.SetAppointment(ctx, d.ID, appt, model.StopRegular, "")
	require.NoError(t, err)

	in := model.AlertIn{DriverID: d.ID, Type: model.AlertCritical, Message: "c", AppointmentTime: appt, Timestamp: appt.Add(2 * time.Hour)}
	a, ok, err := m.RecordAlert(ctx, in, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.AlertCritical, a.Type)

	_, ok, err = m.RecordAlert(ctx, in, time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "critical is claimed once per cycle")

	// clearing history leaves the marker in place
	_, err = m.ClearAllAlerts(ctx)
	require.NoError(t, err)
	_, ok, _ = m.RecordAlert(ctx, in, time.Time{})
	assert.False(t, ok)

	first := appt.Add(150 * time.Minute)
	rem := model.AlertIn{DriverID: d.ID, Type: model.AlertReminder, Message: "r", AppointmentTime: appt, Timestamp: first}
	_, ok, err = m.RecordAlert(ctx, rem, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)
	rem.Timestamp = first.Add(30 * time.Minute)
	_, ok, _ = m.RecordAlert(ctx, rem, time.Time{})
	assert.False(t, ok, "stale previous reminder")
	_, ok, _ = m.RecordAlert(ctx, rem, first)
	assert.True(t, ok)

	l, err := m.GetLocation(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, l.CriticalSentAt)
	require.NotNil(t, l.LastReminderAt)
	assert.True(t, l.LastReminderAt.Equal(first.Add(30*time.Minute)))
	assert.Nil(t, l.WarningSentAt)

	// a different appointment time or a departed cycle claims nothing
	other := in
	other.AppointmentTime = appt.Add(time.Hour)
	_, ok, _ = m.RecordAlert(ctx, other, time.Time{})
	assert.False(t, ok)

	l, err = m.SetAppointment(ctx, d.ID, appt, model.StopRegular, "")
	require.NoError(t, err)
	assert.Nil(t, l.CriticalSentAt)
	assert.Nil(t, l.LastReminderAt)
	_, ok, _ = m.RecordAlert(ctx, in, time.Time{})
	assert.True(t, ok, "re-setting the appointment starts a new cycle")

	_, err = m.SetDeparture(ctx, d.ID, appt.Add(3*time.Hour))
	require.NoError(t, err)
	warn := model.AlertIn{DriverID: d.ID, Type: model.AlertWarning, Message: "w", AppointmentTime: appt}
	_, ok, _ = m.RecordAlert(ctx, warn, time.Time{})
	assert.False(t, ok)

	l, err = m.ResetAppointment(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, l.CriticalSentAt)

	_, ok, err = m.RecordAlert(ctx, model.AlertIn{DriverID: "missing", Type: model.AlertWarning, AppointmentTime: appt}, time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoresMicrosecondPrecision(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := newDriver(t, m, "Ana")
	appt := time.Date(2024, 3, 4, 9, 0, 0, 123456789, time.UTC)
	l, err := m.SetAppointment(ctx, d.ID, appt, model.StopRegular, "")
	require.NoError(t, err)
	assert.Equal(t, 123456000, l.AppointmentTime.Nanosecond())

	l, err = m.SetDeparture(ctx, d.ID, appt.Add(time.Hour+999*time.Nanosecond))
	require.NoError(t, err)
	assert.Equal(t, 123456000, l.DepartureTime.Nanosecond())

	// the caller's full-precision appointment still matches the stored cycle
	l, err = m.SaveFinalDetention(ctx, d.ID, appt, model.FinalDetention{Minutes: 0, Cost: 0})
	require.NoError(t, err)
	assert.True(t, l.Finalized())
}

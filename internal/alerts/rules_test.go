package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/model"
)

var appt = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func active(st model.StopType) model.DriverLocation {
	a := appt
	return model.DriverLocation{DriverID: "d1", AppointmentTime: &a, StopType: st}
}

func sent(loc model.DriverLocation, types ...model.AlertType) model.DriverLocation {
	at := appt
	for _, t := range types {
		switch t {
		case model.AlertWarning:
			loc.WarningSentAt = &at
		case model.AlertCritical:
			loc.CriticalSentAt = &at
		case model.AlertReminder:
			loc.LastReminderAt = &at
		}
	}
	return loc
}

func TestDecideWarningWindow(t *testing.T) {
	loc := active(model.StopRegular)
	assert.Empty(t, Decide(loc, appt.Add(89*time.Minute)))
	assert.Equal(t, []model.AlertType{model.AlertWarning}, Decide(loc, appt.Add(90*time.Minute)))
	assert.Equal(t, []model.AlertType{model.AlertWarning}, Decide(loc, appt.Add(119*time.Minute)))
	assert.Empty(t, Decide(sent(loc, model.AlertWarning), appt.Add(100*time.Minute)))
}

func TestDecideNoWarningWithoutWindow(t *testing.T) {
	for _, st := range []model.StopType{model.StopRail, model.StopNoBilling, model.StopDropHook} {
		p := detention.PolicyFor(st)
		assert.Empty(t, Decide(active(st), appt.Add(time.Duration(p.DetentionThresholdMinutes-1)*time.Minute)), st)
	}
}

func TestDecideCriticalOnce(t *testing.T) {
	loc := active(model.StopMultiStop)
	now := appt.Add(61 * time.Minute)
	assert.Equal(t, []model.AlertType{model.AlertCritical}, Decide(loc, now))
	assert.Empty(t, Decide(sent(loc, model.AlertCritical), now))
}

func TestDecideSkippedWarningNotBackfilled(t *testing.T) {
	// evaluator was down through the warning window
	assert.Equal(t, []model.AlertType{model.AlertCritical}, Decide(active(model.StopRegular), appt.Add(3*time.Hour)))
}

func TestDecideReminderNeedsPriorCritical(t *testing.T) {
	loc := active(model.StopRail)
	now := appt.Add(80 * time.Minute)
	assert.Equal(t, []model.AlertType{model.AlertCritical}, Decide(loc, now))
	assert.Equal(t, []model.AlertType{model.AlertReminder}, Decide(sent(loc, model.AlertCritical), now))
}

func TestDecideReminderSpacing(t *testing.T) {
	loc := active(model.StopRegular)
	critical := appt.Add(2 * time.Hour)
	reminded := appt.Add(3*time.Hour + 50*time.Minute)
	loc.CriticalSentAt = &critical
	loc.LastReminderAt = &reminded
	// 13:00 is a slot but only 10 minutes after the 12:50 reminder
	assert.Empty(t, Decide(loc, appt.Add(4*time.Hour)))
	assert.Equal(t, []model.AlertType{model.AlertReminder}, Decide(loc, appt.Add(4*time.Hour+15*time.Minute)))
}

func TestDecideIgnoresAlertHistory(t *testing.T) {
	// markers alone decide; an empty history after a purge changes nothing
	loc := sent(active(model.StopRegular), model.AlertWarning, model.AlertCritical)
	assert.Empty(t, Decide(loc, appt.Add(2*time.Hour+10*time.Minute)))
	assert.Equal(t, []model.AlertType{model.AlertReminder}, Decide(loc, appt.Add(2*time.Hour+30*time.Minute)))
}

func TestDecideInactive(t *testing.T) {
	loc := active(model.StopRegular)
	dep := appt.Add(5 * time.Hour)
	loc.DepartureTime = &dep
	assert.Empty(t, Decide(loc, appt.Add(6*time.Hour)))
	assert.Empty(t, Decide(model.DriverLocation{}, appt))
}

func TestNextReminderDue(t *testing.T) {
	start := appt.Add(time.Hour)
	rail := detention.PolicyFor(model.StopRail)
	multi := detention.PolicyFor(model.StopMultiStop)

	assert.Equal(t, start.Add(20*time.Minute), NextReminderDue(start, rail, time.Time{}))
	assert.Equal(t, start.Add(30*time.Minute), NextReminderDue(start, multi, time.Time{}))
	assert.Equal(t, start.Add(50*time.Minute), NextReminderDue(start, rail, start.Add(20*time.Minute)))
	assert.Equal(t, start.Add(50*time.Minute), NextReminderDue(start, rail, start.Add(49*time.Minute)))
	assert.Equal(t, start.Add(80*time.Minute), NextReminderDue(start, rail, start.Add(50*time.Minute)))
}

func TestMessages(t *testing.T) {
	loc := active(model.StopRegular)
	loc.Facility = "Dock 7"
	assert.Equal(t, "Ana will enter detention at Dock 7 in 15 minutes (regular stop, starts 11:00)",
		Message(model.AlertWarning, "Ana", loc, appt.Add(105*time.Minute)))
	assert.Equal(t, "Ana entered detention at Dock 7 at 11:00 (regular stop, $1.25/min)",
		Message(model.AlertCritical, "Ana", loc, appt.Add(2*time.Hour)))
	assert.Equal(t, "Ana still in detention at Dock 7: 1h 0m, $75.00 so far",
		Message(model.AlertReminder, "Ana", loc, appt.Add(3*time.Hour)))
}

package alerts

import (
	"fmt"
	"time"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/model"
)

const (
	// ReminderInterval separates reminder slots while a driver stays in detention.
	ReminderInterval = 30 * time.Minute
	// ReminderSpacing is the minimum gap between two reminders for one appointment.
	ReminderSpacing = 25 * time.Minute
)

// Decide returns the alert types an active appointment is owed at now. What was
// already sent comes from the cycle markers on loc, not from alert history, so
// clearing or purging alerts never re-arms them. At most one alert of each type
// is returned.
func Decide(loc model.DriverLocation, now time.Time) []model.AlertType {
	if !loc.Active() {
		return nil
	}
	appt := *loc.AppointmentTime
	p := detention.PolicyFor(loc.StopType)
	m := int(now.Sub(appt) / time.Minute)
	hasWarning := loc.WarningSentAt != nil
	hasCritical := loc.CriticalSentAt != nil
	var lastReminder time.Time
	if loc.LastReminderAt != nil {
		lastReminder = *loc.LastReminderAt
	}

	var out []model.AlertType
	if p.WarningBeforeMinutes > 0 && !hasWarning &&
		m >= p.DetentionThresholdMinutes-p.WarningBeforeMinutes && m < p.DetentionThresholdMinutes {
		out = append(out, model.AlertWarning)
	}
	if m < p.DetentionThresholdMinutes {
		return out
	}
	if !hasCritical {
		// the first detention tick never doubles as a reminder
		return append(out, model.AlertCritical)
	}
	start := detention.DetentionStart(appt, loc.StopType)
	if now.Before(NextReminderDue(start, p, lastReminder)) {
		return out
	}
	if !lastReminder.IsZero() && now.Sub(lastReminder) < ReminderSpacing {
		return out
	}
	return append(out, model.AlertReminder)
}

// NextReminderDue is the first reminder slot after last. Slots start at
// detentionStart + ReminderAfterStartMinutes and repeat every ReminderInterval;
// a policy without an offset uses the interval itself. A zero last means no
// reminder has been sent for the appointment yet.
func NextReminderDue(detentionStart time.Time, p detention.Policy, last time.Time) time.Time {
	offset := time.Duration(p.ReminderAfterStartMinutes) * time.Minute
	if offset <= 0 {
		offset = ReminderInterval
	}
	first := detentionStart.Add(offset)
	if last.IsZero() || last.Before(first) {
		return first
	}
	k := last.Sub(first)/ReminderInterval + 1
	return first.Add(k * ReminderInterval)
}

// Message renders the human text stored on an alert.
func Message(t model.AlertType, driverName string, loc model.DriverLocation, now time.Time) string {
	appt := *loc.AppointmentTime
	start := detention.DetentionStart(appt, loc.StopType)
	where := ""
	if loc.Facility != "" {
		where = " at " + loc.Facility
	}
	switch t {
	case model.AlertWarning:
		left := int(start.Sub(now) / time.Minute)
		return fmt.Sprintf("%s will enter detention%s in %d minutes (%s stop, starts %s)",
			driverName, where, left, loc.StopType, start.Format("15:04"))
	case model.AlertCritical:
		return fmt.Sprintf("%s entered detention%s at %s (%s stop, $%.2f/min)",
			driverName, where, start.Format("15:04"), loc.StopType, detention.RatePerMinute)
	default:
		snap := detention.Evaluate(detention.InputFromLocation(loc), now)
		return fmt.Sprintf("%s still in detention%s: %s, %s so far",
			driverName, where, detention.FormatMinutes(snap.DetentionMinutes), detention.FormatCost(snap.DetentionCostUSD))
	}
}

package detention

import (
	"fmt"
	"math"
	"time"

	"fleetdetention/internal/model"
)

// Input is the subset of a location row the clock needs. Plain data so the same
// call serves the evaluator, the dashboard and the calculator.
type Input struct {
	AppointmentTime       *time.Time     `json:"appointmentTime,omitempty"`
	StopType              model.StopType `json:"stopType,omitempty"`
	DepartureTime         *time.Time     `json:"departureTime,omitempty"`
	FinalDetentionMinutes *int           `json:"finalDetentionMinutes,omitempty"`
	FinalDetentionCost    *float64       `json:"finalDetentionCost,omitempty"`
}

// InputFromLocation copies the appointment cycle out of a location row.
func InputFromLocation(l model.DriverLocation) Input {
	return Input{
		AppointmentTime:       l.AppointmentTime,
		StopType:              l.StopType,
		DepartureTime:         l.DepartureTime,
		FinalDetentionMinutes: l.FinalDetentionMinutes,
		FinalDetentionCost:    l.FinalDetentionCost,
	}
}

// Snapshot is the rendered detention state at one instant.
//
// ElapsedOrRemainingMinutes and ElapsedSeconds describe the same span: time spent
// in detention for detention/completed rows, time left before detention for
// at-stop/warning rows. Neither is ever negative.
type Snapshot struct {
	Status                    model.DetentionStatus `json:"status"`
	Display                   string                `json:"display"`
	ElapsedOrRemainingMinutes int                   `json:"elapsedOrRemainingMinutes"`
	ElapsedSeconds            int64                 `json:"elapsedSeconds"`
	DetentionMinutes          int                   `json:"detentionMinutes"`
	DetentionCostUSD          float64               `json:"detentionCostUsd"`
	DetentionStartTime        *time.Time            `json:"detentionStartTime,omitempty"`
	InvalidTime               bool                  `json:"invalidTime,omitempty"`
}

const (
	displayStandby   = "Standby"
	displayCompleted = "Completed"
	displayInvalid   = "Invalid time"
)

// DetentionStart is the instant free time runs out for an appointment.
func DetentionStart(appointment time.Time, st model.StopType) time.Time {
	return appointment.Add(time.Duration(PolicyFor(st).DetentionThresholdMinutes) * time.Minute)
}

// Cost converts whole detention minutes into dollars. No rounding here.
func Cost(minutes int) float64 {
	return float64(minutes) * RatePerMinute
}

// Evaluate renders the detention state of one appointment cycle at now.
// Completed cycles only render their frozen final values.
func Evaluate(in Input, now time.Time) Snapshot {
	if in.AppointmentTime == nil {
		return Snapshot{Status: model.StatusActive, Display: displayStandby}
	}
	start := DetentionStart(*in.AppointmentTime, in.StopType)
	snap := Snapshot{DetentionStartTime: &start}

	if in.DepartureTime != nil {
		if in.FinalDetentionMinutes != nil && *in.FinalDetentionMinutes > 0 {
			m := *in.FinalDetentionMinutes
			cost := Cost(m)
			if in.FinalDetentionCost != nil {
				cost = *in.FinalDetentionCost
			}
			// kept red so operators still see the billed detention
			snap.Status = model.StatusDetention
			snap.Display = FormatMinutes(m)
			snap.ElapsedOrRemainingMinutes = m
			snap.ElapsedSeconds = int64(m) * 60
			snap.DetentionMinutes = m
			snap.DetentionCostUSD = cost
			return snap
		}
		snap.Status = model.StatusCompleted
		snap.Display = displayCompleted
		return snap
	}

	if !now.Before(start) {
		return inDetention(snap, now.Sub(start))
	}

	remaining := start.Sub(now)
	secs := int64(remaining / time.Second)
	if secs <= 0 {
		// sub-second boundary race; never render a negative countdown
		return inDetention(snap, now.Sub(start).Abs())
	}
	warnBefore := time.Duration(PolicyFor(in.StopType).WarningBeforeMinutes) * time.Minute
	snap.Status = model.StatusAtStop
	if warnBefore > 0 && !now.Before(start.Add(-warnBefore)) {
		snap.Status = model.StatusWarning
	}
	snap.ElapsedOrRemainingMinutes = int(secs / 60)
	snap.ElapsedSeconds = secs
	snap.Display = fmt.Sprintf("%dm %ds to detention", secs/60, secs%60)
	return snap
}

func inDetention(snap Snapshot, elapsed time.Duration) Snapshot {
	secs := int64(elapsed / time.Second)
	minutes := int(secs / 60)
	snap.Status = model.StatusDetention
	snap.ElapsedOrRemainingMinutes = minutes
	snap.ElapsedSeconds = secs
	snap.DetentionMinutes = minutes
	snap.DetentionCostUSD = Cost(minutes)
	snap.Display = formatLive(secs)
	return snap
}

// EvaluateRaw is Evaluate over RFC 3339 strings as they arrive from forms and
// legacy rows. Unparsable or out-of-order times degrade to a flagged standby
// snapshot instead of failing.
func EvaluateRaw(appointment string, st model.StopType, departure string, now time.Time) Snapshot {
	in := Input{StopType: st}
	if appointment != "" {
		t, err := time.Parse(time.RFC3339, appointment)
		if err != nil {
			return InvalidSnapshot()
		}
		in.AppointmentTime = &t
	}
	if departure != "" {
		t, err := time.Parse(time.RFC3339, departure)
		if err != nil || in.AppointmentTime == nil || t.Before(*in.AppointmentTime) {
			return InvalidSnapshot()
		}
		in.DepartureTime = &t
		f := ComputeFinal(*in.AppointmentTime, st, t)
		in.FinalDetentionMinutes = &f.Minutes
		in.FinalDetentionCost = &f.Cost
	}
	return Evaluate(in, now)
}

// InvalidSnapshot is the degraded state shown for malformed appointment data.
func InvalidSnapshot() Snapshot {
	return Snapshot{Status: model.StatusActive, Display: displayInvalid, InvalidTime: true}
}

func formatLive(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// FormatMinutes renders whole minutes as "Hh Mm" or "Mm".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if h := minutes / 60; h > 0 {
		return fmt.Sprintf("%dh %dm", h, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatCost rounds to cents for display only.
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.2f", math.Round(usd*100)/100)
}

package model

import "time"

// StopType tags the kind of stop a driver is at. It selects the detention policy.
type StopType string

const (
	StopRegular   StopType = "regular"
	StopMultiStop StopType = "multi-stop"
	StopRail      StopType = "rail"
	StopNoBilling StopType = "no-billing"
	StopDropHook  StopType = "drop-hook"
)

// DetentionStatus is derived from a location row and the wall clock. Never stored.
type DetentionStatus string

const (
	StatusActive    DetentionStatus = "active" // standby, no appointment
	StatusAtStop    DetentionStatus = "at-stop"
	StatusWarning   DetentionStatus = "warning"
	StatusDetention DetentionStatus = "detention"
	StatusCompleted DetentionStatus = "completed"
)

// AlertType classifies alerts. Each type is its own de-duplication category.
type AlertType string

const (
	AlertWarning  AlertType = "warning"  // detention is about to begin
	AlertCritical AlertType = "critical" // driver entered detention
	AlertReminder AlertType = "reminder" // still in detention
)

type Driver struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type DriverIn struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// DriverLocation is the single current-stop row per driver. The appointment cycle
// lives here: set on appointment, departure+finals on departure, all cleared on reset.
type DriverLocation struct {
	DriverID              string     `json:"driverId"`
	Facility              string     `json:"facility,omitempty"`
	AppointmentTime       *time.Time `json:"appointmentTime,omitempty"`
	DepartureTime         *time.Time `json:"departureTime,omitempty"`
	StopType              StopType   `json:"stopType"`
	FinalDetentionMinutes *int       `json:"finalDetentionMinutes,omitempty"`
	FinalDetentionCost    *float64   `json:"finalDetentionCost,omitempty"`
	// Alert markers for this cycle. They survive alert history clears and are
	// only reset together with the appointment.
	WarningSentAt  *time.Time `json:"warningSentAt,omitempty"`
	CriticalSentAt *time.Time `json:"criticalSentAt,omitempty"`
	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Active reports whether the row has an appointment that has not departed yet.
func (l DriverLocation) Active() bool {
	return l.AppointmentTime != nil && l.DepartureTime == nil
}

// Finalized reports whether final detention values have been frozen for this cycle.
func (l DriverLocation) Finalized() bool {
	return l.FinalDetentionMinutes != nil
}

type AppointmentIn struct {
	AppointmentTime string   `json:"appointmentTime"`
	StopType        StopType `json:"stopType,omitempty"`
	Facility        string   `json:"facility,omitempty"`
}

type DepartureIn struct {
	DepartureTime string `json:"departureTime,omitempty"`
}

type Alert struct {
	ID              string    `json:"id"`
	DriverID        string    `json:"driverId"`
	Type            AlertType `json:"type"`
	Message         string    `json:"message"`
	IsRead          bool      `json:"isRead"`
	Timestamp       time.Time `json:"timestamp"`
	AppointmentTime time.Time `json:"appointmentTime"`
}

type AlertIn struct {
	DriverID        string
	Type            AlertType
	Message         string
	AppointmentTime time.Time
	// Timestamp is the creation instant; zero means the store's clock.
	Timestamp time.Time
}

// FinalDetention is the frozen outcome of a completed appointment cycle.
type FinalDetention struct {
	Minutes int     `json:"finalDetentionMinutes"`
	Cost    float64 `json:"finalDetentionCost"`
}

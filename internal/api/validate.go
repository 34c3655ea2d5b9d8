package api

import (
	"fmt"
	"strings"
	"time"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/model"
)

type appointmentReq struct {
	at       time.Time
	stopType model.StopType
	facility string
}

func validateAppointment(in model.AppointmentIn) (appointmentReq, error) {
	if strings.TrimSpace(in.AppointmentTime) == "" {
		return appointmentReq{}, fmt.Errorf("appointmentTime is required")
	}
	at, err := time.Parse(time.RFC3339, in.AppointmentTime)
	if err != nil {
		return appointmentReq{}, fmt.Errorf("appointmentTime must be RFC 3339: %w", err)
	}
	st, ok := detention.ParseStopType(string(in.StopType))
	if !ok {
		return appointmentReq{}, fmt.Errorf("unknown stopType: %s", in.StopType)
	}
	facility := strings.TrimSpace(in.Facility)
	if len(facility) > 200 {
		return appointmentReq{}, fmt.Errorf("facility must be at most 200 characters")
	}
	return appointmentReq{at: at, stopType: st, facility: facility}, nil
}

// validateDeparture returns now when no departure time is given.
func validateDeparture(in model.DepartureIn, now time.Time) (time.Time, error) {
	if strings.TrimSpace(in.DepartureTime) == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, in.DepartureTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("departureTime must be RFC 3339: %w", err)
	}
	return t, nil
}

func validateDriver(in *model.DriverIn) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(in.Name) > 120 {
		return fmt.Errorf("name must be at most 120 characters")
	}
	return nil
}

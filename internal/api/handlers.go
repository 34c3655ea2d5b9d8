package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetdetention/internal/detention"
	"fleetdetention/internal/model"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready only when the store answers a ping.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type stopTypeView struct {
	StopType model.StopType `json:"stopType"`
	detention.Policy
	RatePerMinute float64 `json:"ratePerMinute"`
}

func (s *Server) StopTypesHandler(w http.ResponseWriter, r *http.Request) {
	out := make([]stopTypeView, 0, len(detention.StopTypes()))
	for _, st := range detention.StopTypes() {
		out = append(out, stopTypeView{StopType: st, Policy: detention.PolicyFor(st), RatePerMinute: detention.RatePerMinute})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

type calculateRequest struct {
	AppointmentTime string `json:"appointmentTime"`
	StopType        string `json:"stopType"`
	DepartureTime   string `json:"departureTime"`
	// Now overrides the server clock, for what-if calculations.
	Now string `json:"now"`
}

// CalculateHandler runs the detention clock over ad hoc times without touching
// the store. Malformed times render as an invalid snapshot, not an error.
func (s *Server) CalculateHandler(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	st, ok := detention.ParseStopType(req.StopType)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid stop type", "unknown stopType: "+req.StopType, r.URL.Path)
		return
	}
	now := s.now()
	if req.Now != "" {
		t, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid now", "now must be RFC 3339", r.URL.Path)
			return
		}
		now = t
	}
	snap := detention.EvaluateRaw(strings.TrimSpace(req.AppointmentTime), st, strings.TrimSpace(req.DepartureTime), now)
	writeJSON(w, http.StatusOK, map[string]any{
		"stopType": st,
		"policy":   detention.PolicyFor(st),
		"snapshot": snap,
	})
}

func (s *Server) ListDriversHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, r, "List drivers failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CreateDriverHandler(w http.ResponseWriter, r *http.Request) {
	var in model.DriverIn
	if err := decodeJSON(r, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateDriver(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid driver", err.Error(), r.URL.Path)
		return
	}
	d, err := s.Store.CreateDriver(r.Context(), in)
	if err != nil {
		writeError(w, r, "Create driver failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) GetDriverHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.Dispatch.Snapshot(r.Context(), chi.URLParam(r, "driverId"), s.now())
	if err != nil {
		writeError(w, r, "Get driver failed", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) BoardHandler(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	items, err := s.Dispatch.Board(r.Context(), now)
	if err != nil {
		writeError(w, r, "Board failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asOf": now.UTC(), "items": items})
}

func (s *Server) SetAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var in model.AppointmentIn
	if err := decodeJSON(r, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	req, err := validateAppointment(in)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid appointment", err.Error(), r.URL.Path)
		return
	}
	loc, err := s.Dispatch.SetAppointment(r.Context(), chi.URLParam(r, "driverId"), req.at, req.stopType, req.facility)
	if err != nil {
		writeError(w, r, "Set appointment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// DepartureHandler records the departure and returns the frozen detention
// values. An empty body departs at the server's current time.
func (s *Server) DepartureHandler(w http.ResponseWriter, r *http.Request) {
	var in model.DepartureIn
	if err := decodeJSON(r, &in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	dep, err := validateDeparture(in, s.now())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid departure", err.Error(), r.URL.Path)
		return
	}
	final, loc, err := s.Dispatch.RecordDeparture(r.Context(), chi.URLParam(r, "driverId"), dep)
	if err != nil {
		writeError(w, r, "Record departure failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"final": final, "location": loc})
}

func (s *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	loc, err := s.Dispatch.ResetAppointment(r.Context(), chi.URLParam(r, "driverId"))
	if err != nil {
		writeError(w, r, "Reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) ListAlertsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListAlerts(r.Context(), r.URL.Query().Get("driverId"))
	if err != nil {
		writeError(w, r, "List alerts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) MarkAlertReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.MarkAlertRead(r.Context(), chi.URLParam(r, "alertId")); err != nil {
		writeError(w, r, "Mark alert read failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ClearReadAlertsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.ClearReadAlerts(r.Context())
	if err != nil {
		writeError(w, r, "Clear read alerts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) ClearAllAlertsHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.ClearAllAlerts(r.Context())
	if err != nil {
		writeError(w, r, "Clear alerts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

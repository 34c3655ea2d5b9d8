package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetdetention/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded migrations in file name order. Statements are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) CreateDriver(ctx context.Context, in model.DriverIn) (model.Driver, error) {
	d := model.Driver{ID: uuid.New().String(), Name: in.Name, Phone: in.Phone, CreatedAt: storedTime(time.Now())}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Driver{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO drivers (id, name, phone, created_at) VALUES ($1,$2,$3,$4)`,
		d.ID, d.Name, nullIfEmpty(d.Phone), d.CreatedAt); err != nil {
		return model.Driver{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO driver_locations (driver_id, stop_type, updated_at) VALUES ($1,$2,$3)`,
		d.ID, string(model.StopRegular), d.CreatedAt); err != nil {
		return model.Driver{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Driver{}, err
	}
	return d, nil
}

func (p *Postgres) GetDriver(ctx context.Context, driverID string) (model.Driver, error) {
	if !validID(driverID) {
		return model.Driver{}, ErrNotFound
	}
	var d model.Driver
	var phone sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT id::text, name, phone, created_at FROM drivers WHERE id=$1`, driverID).
		Scan(&d.ID, &d.Name, &phone, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Driver{}, ErrNotFound
	}
	if err != nil {
		return model.Driver{}, err
	}
	d.Phone = phone.String
	return d, nil
}

func (p *Postgres) ListDrivers(ctx context.Context) ([]model.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, phone, created_at FROM drivers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		var phone sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &phone, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Phone = phone.String
		out = append(out, d)
	}
	return out, rows.Err()
}

const locationCols = `driver_id::text, facility, appointment_time, departure_time, stop_type,
	final_detention_minutes, final_detention_cost, warning_sent_at, critical_sent_at, last_reminder_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanLocation(r rowScanner) (model.DriverLocation, error) {
	var l model.DriverLocation
	var facility, stopType sql.NullString
	var appt, dep, warned, critical, reminded sql.NullTime
	var mins sql.NullInt64
	var cost sql.NullFloat64
	if err := r.Scan(&l.DriverID, &facility, &appt, &dep, &stopType, &mins, &cost,
		&warned, &critical, &reminded, &l.UpdatedAt); err != nil {
		return l, err
	}
	l.Facility = facility.String
	l.StopType = model.StopType(stopType.String)
	if l.StopType == "" {
		l.StopType = model.StopRegular
	}
	l.AppointmentTime = timePtr(appt)
	l.DepartureTime = timePtr(dep)
	l.WarningSentAt = timePtr(warned)
	l.CriticalSentAt = timePtr(critical)
	l.LastReminderAt = timePtr(reminded)
	if mins.Valid {
		v := int(mins.Int64)
		l.FinalDetentionMinutes = &v
	}
	if cost.Valid {
		v := cost.Float64
		l.FinalDetentionCost = &v
	}
	return l, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func (p *Postgres) GetLocation(ctx context.Context, driverID string) (model.DriverLocation, error) {
	if !validID(driverID) {
		return model.DriverLocation{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+locationCols+` FROM driver_locations WHERE driver_id=$1`, driverID)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DriverLocation{}, ErrNotFound
	}
	return l, err
}

func (p *Postgres) ListDriverLocations(ctx context.Context) ([]model.DriverLocation, error) {
	return p.queryLocations(ctx, `SELECT `+locationCols+` FROM driver_locations ORDER BY driver_id`)
}

func (p *Postgres) ListActiveAppointments(ctx context.Context) ([]model.DriverLocation, error) {
	return p.queryLocations(ctx, `SELECT `+locationCols+` FROM driver_locations
		WHERE appointment_time IS NOT NULL AND departure_time IS NULL ORDER BY driver_id`)
}

func (p *Postgres) queryLocations(ctx context.Context, q string, args ...any) ([]model.DriverLocation, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DriverLocation{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// updateLocation runs a single-row UPDATE ... RETURNING and maps no rows to ErrNotFound.
func (p *Postgres) updateLocation(ctx context.Context, q string, args ...any) (model.DriverLocation, error) {
	l, err := scanLocation(p.db.QueryRowContext(ctx, q+` RETURNING `+locationCols, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DriverLocation{}, ErrNotFound
	}
	return l, err
}

// SetAppointment starts a new cycle: departure, final values and alert
// markers are cleared.
func (p *Postgres) SetAppointment(ctx context.Context, driverID string, appointment time.Time, stopType model.StopType, facility string) (model.DriverLocation, error) {
	if !validID(driverID) {
		return model.DriverLocation{}, ErrNotFound
	}
	return p.updateLocation(ctx, `UPDATE driver_locations SET appointment_time=$2, stop_type=$3, facility=$4,
		departure_time=NULL, final_detention_minutes=NULL, final_detention_cost=NULL,
		warning_sent_at=NULL, critical_sent_at=NULL, last_reminder_at=NULL, updated_at=now()
		WHERE driver_id=$1`, driverID, storedTime(appointment), string(stopType), nullIfEmpty(facility))
}

func (p *Postgres) SetDeparture(ctx context.Context, driverID string, departure time.Time) (model.DriverLocation, error) {
	if !validID(driverID) {
		return model.DriverLocation{}, ErrNotFound
	}
	return p.updateLocation(ctx, `UPDATE driver_locations SET departure_time=$2, updated_at=now() WHERE driver_id=$1`,
		driverID, storedTime(departure))
}

// SaveFinalDetention writes only while no final value is stored for this appointment.
// When the guard does not match, the current row is returned unchanged.
func (p *Postgres) SaveFinalDetention(ctx context.Context, driverID string, appointment time.Time, final model.FinalDetention) (model.DriverLocation, error) {
	if !validID(driverID) {
		return model.DriverLocation{}, ErrNotFound
	}
	l, err := p.updateLocation(ctx, `UPDATE driver_locations SET final_detention_minutes=$3, final_detention_cost=$4, updated_at=now()
		WHERE driver_id=$1 AND appointment_time=$2 AND final_detention_minutes IS NULL`,
		driverID, storedTime(appointment), final.Minutes, final.Cost)
	if errors.Is(err, ErrNotFound) {
		return p.GetLocation(ctx, driverID)
	}
	return l, err
}

func (p *Postgres) ResetAppointment(ctx context.Context, driverID string) (model.DriverLocation, error) {
	if !validID(driverID) {
		return model.DriverLocation{}, ErrNotFound
	}
	return p.updateLocation(ctx, `UPDATE driver_locations SET appointment_time=NULL, departure_time=NULL, stop_type='regular',
		facility=NULL, final_detention_minutes=NULL, final_detention_cost=NULL,
		warning_sent_at=NULL, critical_sent_at=NULL, last_reminder_at=NULL, updated_at=now()
		WHERE driver_id=$1`, driverID)
}

const alertCols = `id::text, driver_id::text, type, message, is_read, timestamp, appointment_time`

const insertAlert = `INSERT INTO alerts (id, driver_id, type, message, is_read, timestamp, appointment_time)
	VALUES ($1,$2,$3,$4,false,$5,$6)`

func (p *Postgres) CreateAlert(ctx context.Context, in model.AlertIn) (model.Alert, error) {
	a := newAlert(in, time.Now())
	_, err := p.db.ExecContext(ctx, insertAlert,
		a.ID, a.DriverID, string(a.Type), a.Message, a.Timestamp, a.AppointmentTime)
	if err != nil {
		return model.Alert{}, err
	}
	return a, nil
}

// markerGuards maps an alert type to its marker column and the condition
// that must hold for this writer to claim it. $4 is the previous reminder.
var markerGuards = map[model.AlertType]struct{ col, guard string }{
	model.AlertWarning:  {"warning_sent_at", "warning_sent_at IS NULL"},
	model.AlertCritical: {"critical_sent_at", "critical_sent_at IS NULL"},
	model.AlertReminder: {"last_reminder_at", "last_reminder_at IS NOT DISTINCT FROM $4"},
}

// RecordAlert claims the marker with a conditional UPDATE and inserts the
// alert in the same transaction. A concurrent writer blocks on the row lock
// and then sees the marker already set, so only one alert is written.
func (p *Postgres) RecordAlert(ctx context.Context, in model.AlertIn, prevReminder time.Time) (model.Alert, bool, error) {
	g, ok := markerGuards[in.Type]
	if !ok {
		return model.Alert{}, false, fmt.Errorf("unknown alert type %q", in.Type)
	}
	if !validID(in.DriverID) {
		return model.Alert{}, false, nil
	}
	a := newAlert(in, time.Now())
	args := []any{a.DriverID, a.AppointmentTime, a.Timestamp}
	if in.Type == model.AlertReminder {
		prev := sql.NullTime{}
		if !prevReminder.IsZero() {
			prev = sql.NullTime{Time: storedTime(prevReminder), Valid: true}
		}
		args = append(args, prev)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Alert{}, false, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE driver_locations SET `+g.col+`=$3
		WHERE driver_id=$1 AND appointment_time=$2 AND departure_time IS NULL AND `+g.guard, args...)
	if err != nil {
		return model.Alert{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Alert{}, false, err
	}
	if n == 0 {
		return model.Alert{}, false, nil
	}
	if _, err := tx.ExecContext(ctx, insertAlert,
		a.ID, a.DriverID, string(a.Type), a.Message, a.Timestamp, a.AppointmentTime); err != nil {
		return model.Alert{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.Alert{}, false, err
	}
	return a, true, nil
}

func (p *Postgres) ListAlerts(ctx context.Context, driverID string) ([]model.Alert, error) {
	if driverID == "" {
		return p.queryAlerts(ctx, `SELECT `+alertCols+` FROM alerts ORDER BY timestamp DESC, id`)
	}
	if !validID(driverID) {
		return []model.Alert{}, nil
	}
	return p.queryAlerts(ctx, `SELECT `+alertCols+` FROM alerts WHERE driver_id=$1 ORDER BY timestamp DESC, id`, driverID)
}

func (p *Postgres) ListAlertsForAppointment(ctx context.Context, driverID string, appointment time.Time) ([]model.Alert, error) {
	if !validID(driverID) {
		return []model.Alert{}, nil
	}
	return p.queryAlerts(ctx, `SELECT `+alertCols+` FROM alerts WHERE driver_id=$1 AND appointment_time=$2 ORDER BY timestamp DESC, id`,
		driverID, storedTime(appointment))
}

func (p *Postgres) queryAlerts(ctx context.Context, q string, args ...any) ([]model.Alert, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Alert{}
	for rows.Next() {
		var a model.Alert
		var typ string
		if err := rows.Scan(&a.ID, &a.DriverID, &typ, &a.Message, &a.IsRead, &a.Timestamp, &a.AppointmentTime); err != nil {
			return nil, err
		}
		a.Type = model.AlertType(typ)
		a.Timestamp = a.Timestamp.UTC()
		a.AppointmentTime = a.AppointmentTime.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkAlertRead(ctx context.Context, alertID string) error {
	if !validID(alertID) {
		return ErrNotFound
	}
	res, err := p.db.ExecContext(ctx, `UPDATE alerts SET is_read=true WHERE id=$1`, alertID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ClearReadAlerts(ctx context.Context) (int, error) {
	return p.execCount(ctx, `DELETE FROM alerts WHERE is_read`)
}

func (p *Postgres) ClearAllAlerts(ctx context.Context) (int, error) {
	return p.execCount(ctx, `DELETE FROM alerts`)
}

func (p *Postgres) DeleteAlertsBefore(ctx context.Context, before time.Time) (int, error) {
	return p.execCount(ctx, `DELETE FROM alerts WHERE timestamp < $1`, before.UTC())
}

func (p *Postgres) execCount(ctx context.Context, q string, args ...any) (int, error) {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// validID keeps malformed ids from reaching uuid columns, where they would be a query error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres persists the workforce data in Postgres. Geofence, coverage,
// tasks and breaks ride along as JSONB; the (officer, date) shift invariant
// is a partial unique index so concurrent inserts race at the database, not
// in application code.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates the repository set.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the schema when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS officers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			postcode TEXT NOT NULL DEFAULT '',
			guard_type TEXT NOT NULL DEFAULT '',
			availability TEXT NOT NULL DEFAULT 'true',
			shift_time TEXT NOT NULL DEFAULT 'any'
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			site_type TEXT NOT NULL DEFAULT '',
			postcode TEXT NOT NULL DEFAULT '',
			geofence JSONB,
			coverage JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			officer_id TEXT NOT NULL DEFAULT '',
			site_id TEXT NOT NULL,
			date TEXT NOT NULL,
			shift_type TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL,
			actual_start TIMESTAMPTZ,
			actual_end TIMESTAMPTZ,
			tasks JSONB,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS shifts_officer_date_live
			ON shifts (officer_id, date)
			WHERE officer_id <> '' AND status <> 'cancelled'`,
		`CREATE TABLE IF NOT EXISTS time_entries (
			id TEXT PRIMARY KEY,
			officer_id TEXT NOT NULL,
			type TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			location JSONB,
			geofence_status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS timesheets (
			id TEXT PRIMARY KEY,
			officer_id TEXT NOT NULL,
			date TEXT NOT NULL,
			entry_ids JSONB,
			breaks JSONB,
			total_minutes_worked INT NOT NULL DEFAULT 0,
			total_break_minutes INT NOT NULL DEFAULT 0,
			overtime_minutes INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (officer_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS clock_sessions (
			officer_id TEXT PRIMARY KEY,
			clock_status TEXT NOT NULL,
			clocked_in_at TIMESTAMPTZ,
			current_break_started_at TIMESTAMPTZ,
			total_break_minutes_today INT NOT NULL DEFAULT 0,
			last_known_location JSONB,
			geofence_status TEXT NOT NULL DEFAULT '',
			shift_id TEXT NOT NULL DEFAULT '',
			site_id TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func marshalJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func unmarshalJSON(data []byte, v any) {
	if len(data) > 0 {
		_ = json.Unmarshal(data, v)
	}
}

// PutOfficer upserts an officer record.
func (p *Postgres) PutOfficer(ctx context.Context, o model.Officer) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO officers (id, name, postcode, guard_type, availability, shift_time)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, postcode = EXCLUDED.postcode,
			guard_type = EXCLUDED.guard_type, availability = EXCLUDED.availability,
			shift_time = EXCLUDED.shift_time
	`, o.ID, o.Name, o.Postcode, o.GuardType, o.Availability, o.ShiftTime)
	return err
}

// GetOfficer returns an officer or nil when absent.
func (p *Postgres) GetOfficer(ctx context.Context, id string) (*model.Officer, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, postcode, guard_type, availability, shift_time
		FROM officers WHERE id = $1
	`, id)
	var o model.Officer
	if err := row.Scan(&o.ID, &o.Name, &o.Postcode, &o.GuardType, &o.Availability, &o.ShiftTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// ListOfficers returns all officers ordered by id.
func (p *Postgres) ListOfficers(ctx context.Context) ([]model.Officer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, postcode, guard_type, availability, shift_time
		FROM officers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Officer
	for rows.Next() {
		var o model.Officer
		if err := rows.Scan(&o.ID, &o.Name, &o.Postcode, &o.GuardType, &o.Availability, &o.ShiftTime); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PutSite upserts a site record.
func (p *Postgres) PutSite(ctx context.Context, s model.Site) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sites (id, name, active, site_type, postcode, geofence, coverage)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, active = EXCLUDED.active,
			site_type = EXCLUDED.site_type, postcode = EXCLUDED.postcode,
			geofence = EXCLUDED.geofence, coverage = EXCLUDED.coverage
	`, s.ID, s.Name, s.Active, s.SiteType, s.Postcode, marshalJSON(s.Geofence), marshalJSON(s.Coverage))
	return err
}

func scanSite(row interface{ Scan(...any) error }) (*model.Site, error) {
	var s model.Site
	var geofence, coverage []byte
	if err := row.Scan(&s.ID, &s.Name, &s.Active, &s.SiteType, &s.Postcode, &geofence, &coverage); err != nil {
		return nil, err
	}
	unmarshalJSON(geofence, &s.Geofence)
	unmarshalJSON(coverage, &s.Coverage)
	return &s, nil
}

// GetSite returns a site or nil when absent.
func (p *Postgres) GetSite(ctx context.Context, id string) (*model.Site, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, active, site_type, postcode, geofence, coverage
		FROM sites WHERE id = $1
	`, id)
	s, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListSites returns sites ordered by id, optionally active only.
func (p *Postgres) ListSites(ctx context.Context, activeOnly bool) ([]model.Site, error) {
	query := `SELECT id, name, active, site_type, postcode, geofence, coverage FROM sites`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const shiftColumns = `id, officer_id, site_id, date, shift_type, start_time, end_time,
	status, actual_start, actual_end, tasks, notes, created_at`

func scanShift(row interface{ Scan(...any) error }) (*model.Shift, error) {
	var s model.Shift
	var officerID sql.NullString
	var tasks []byte
	if err := row.Scan(&s.ID, &officerID, &s.SiteID, &s.Date, &s.ShiftType, &s.StartTime,
		&s.EndTime, &s.Status, &s.ActualStart, &s.ActualEnd, &tasks, &s.Notes, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.OfficerID = officerID.String
	unmarshalJSON(tasks, &s.Tasks)
	return &s, nil
}

// InsertShift persists a new shift. The partial unique index turns a
// double-booking race into a Conflict here.
func (p *Postgres) InsertShift(ctx context.Context, s model.Shift) (model.Shift, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, s.ID, s.OfficerID, s.SiteID, s.Date, s.ShiftType, s.StartTime, s.EndTime,
		s.Status, s.ActualStart, s.ActualEnd, marshalJSON(s.Tasks), s.Notes, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Shift{}, apperr.New(apperr.Conflict,
				"officer %s already has a shift on %s", s.OfficerID, s.Date)
		}
		return model.Shift{}, err
	}
	return s, nil
}

// GetShift returns a shift or nil when absent.
func (p *Postgres) GetShift(ctx context.Context, id string) (*model.Shift, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
	s, err := scanShift(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// UpdateShift overwrites a shift; officer/date changes hit the same unique
// index as inserts.
func (p *Postgres) UpdateShift(ctx context.Context, s model.Shift) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE shifts SET officer_id = $2, site_id = $3, date = $4, shift_type = $5,
			start_time = $6, end_time = $7, status = $8, actual_start = $9,
			actual_end = $10, tasks = $11, notes = $12
		WHERE id = $1
	`, s.ID, s.OfficerID, s.SiteID, s.Date, s.ShiftType, s.StartTime, s.EndTime,
		s.Status, s.ActualStart, s.ActualEnd, marshalJSON(s.Tasks), s.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict,
				"officer %s already has a shift on %s", s.OfficerID, s.Date)
		}
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "shift %s not found", s.ID)
	}
	return nil
}

// DeleteShift removes a shift.
func (p *Postgres) DeleteShift(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.NotFound, "shift %s not found", id)
	}
	return nil
}

// ListShifts filters and paginates, returning the page plus total count.
func (p *Postgres) ListShifts(ctx context.Context, f shift.Filter) ([]model.Shift, int, error) {
	args := []any{}
	clauses := []string{}
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.FromDate != "" {
		add("date >= $%d", f.FromDate)
	}
	if f.ToDate != "" {
		add("date <= $%d", f.ToDate)
	}
	if f.OfficerID != "" {
		add("officer_id = $%d", f.OfficerID)
	}
	if f.SiteID != "" {
		add("site_id = $%d", f.SiteID)
	}
	if f.ShiftType != "" {
		add("shift_type = $%d", f.ShiftType)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	where := ""
	for i, c := range clauses {
		if i == 0 {
			where = " WHERE " + c
		} else {
			where += " AND " + c
		}
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shifts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts` + where +
		fmt.Sprintf(" ORDER BY date, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

// OfficerHasShiftOn reports a non-cancelled shift for the officer on the
// date at any site.
func (p *Postgres) OfficerHasShiftOn(ctx context.Context, officerID, date string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM shifts
			WHERE officer_id = $1 AND date = $2 AND status <> 'cancelled'
		)
	`, officerID, date).Scan(&exists)
	return exists, err
}

// AppendTimeEntry records an immutable clock event.
func (p *Postgres) AppendTimeEntry(ctx context.Context, e model.TimeEntry) (model.TimeEntry, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO time_entries (id, officer_id, type, ts, location, geofence_status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.ID, e.OfficerID, e.Type, e.Timestamp, marshalJSON(e.Location), e.GeofenceStatus)
	return e, err
}

// ListTimeEntries returns an officer's entries in chronological order.
func (p *Postgres) ListTimeEntries(ctx context.Context, officerID string) ([]model.TimeEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, officer_id, type, ts, location, geofence_status
		FROM time_entries WHERE officer_id = $1 ORDER BY ts
	`, officerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TimeEntry
	for rows.Next() {
		var e model.TimeEntry
		var location []byte
		if err := rows.Scan(&e.ID, &e.OfficerID, &e.Type, &e.Timestamp, &location, &e.GeofenceStatus); err != nil {
			return nil, err
		}
		unmarshalJSON(location, &e.Location)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSession returns the officer's clock session or nil when absent.
func (p *Postgres) GetSession(ctx context.Context, officerID string) (*model.ClockSession, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT officer_id, clock_status, clocked_in_at, current_break_started_at,
			total_break_minutes_today, last_known_location, geofence_status,
			shift_id, site_id, version
		FROM clock_sessions WHERE officer_id = $1
	`, officerID)
	var s model.ClockSession
	var location []byte
	if err := row.Scan(&s.OfficerID, &s.ClockStatus, &s.ClockedInAt, &s.CurrentBreakStartedAt,
		&s.TotalBreakMinutesToday, &location, &s.GeofenceStatus, &s.ShiftID, &s.SiteID, &s.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	unmarshalJSON(location, &s.LastKnownLocation)
	return &s, nil
}

// PutSession performs a versioned write: the insert path requires no
// existing row, the update path requires the stored version to match.
// Either failing reports Conflict so the caller re-reads current state.
func (p *Postgres) PutSession(ctx context.Context, s model.ClockSession, expectedVersion int64) error {
	if expectedVersion == 0 {
		res, err := p.db.ExecContext(ctx, `
			INSERT INTO clock_sessions (officer_id, clock_status, clocked_in_at,
				current_break_started_at, total_break_minutes_today,
				last_known_location, geofence_status, shift_id, site_id, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)
			ON CONFLICT (officer_id) DO NOTHING
		`, s.OfficerID, s.ClockStatus, s.ClockedInAt, s.CurrentBreakStartedAt,
			s.TotalBreakMinutesToday, marshalJSON(s.LastKnownLocation),
			s.GeofenceStatus, s.ShiftID, s.SiteID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.New(apperr.Conflict, "session for %s changed concurrently", s.OfficerID)
		}
		return nil
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE clock_sessions SET clock_status = $2, clocked_in_at = $3,
			current_break_started_at = $4, total_break_minutes_today = $5,
			last_known_location = $6, geofence_status = $7, shift_id = $8,
			site_id = $9, version = version + 1
		WHERE officer_id = $1 AND version = $10
	`, s.OfficerID, s.ClockStatus, s.ClockedInAt, s.CurrentBreakStartedAt,
		s.TotalBreakMinutesToday, marshalJSON(s.LastKnownLocation),
		s.GeofenceStatus, s.ShiftID, s.SiteID, expectedVersion)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.New(apperr.Conflict, "session for %s changed concurrently", s.OfficerID)
	}
	return nil
}

// GetTimesheet returns the (officer, date) aggregate or nil when absent.
func (p *Postgres) GetTimesheet(ctx context.Context, officerID, date string) (*model.Timesheet, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, officer_id, date, entry_ids, breaks, total_minutes_worked,
			total_break_minutes, overtime_minutes, status, updated_at
		FROM timesheets WHERE officer_id = $1 AND date = $2
	`, officerID, date)
	ts, err := scanTimesheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ts, err
}

func scanTimesheet(row interface{ Scan(...any) error }) (*model.Timesheet, error) {
	var ts model.Timesheet
	var entryIDs, breaks []byte
	if err := row.Scan(&ts.ID, &ts.OfficerID, &ts.Date, &entryIDs, &breaks,
		&ts.TotalMinutesWorked, &ts.TotalBreakMinutes, &ts.OvertimeMinutes,
		&ts.Status, &ts.UpdatedAt); err != nil {
		return nil, err
	}
	unmarshalJSON(entryIDs, &ts.EntryIDs)
	unmarshalJSON(breaks, &ts.Breaks)
	return &ts, nil
}

// PutTimesheet upserts the (officer, date) aggregate.
func (p *Postgres) PutTimesheet(ctx context.Context, ts model.Timesheet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO timesheets (id, officer_id, date, entry_ids, breaks,
			total_minutes_worked, total_break_minutes, overtime_minutes, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (officer_id, date) DO UPDATE SET
			entry_ids = EXCLUDED.entry_ids, breaks = EXCLUDED.breaks,
			total_minutes_worked = EXCLUDED.total_minutes_worked,
			total_break_minutes = EXCLUDED.total_break_minutes,
			overtime_minutes = EXCLUDED.overtime_minutes,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, ts.ID, ts.OfficerID, ts.Date, marshalJSON(ts.EntryIDs), marshalJSON(ts.Breaks),
		ts.TotalMinutesWorked, ts.TotalBreakMinutes, ts.OvertimeMinutes, ts.Status, ts.UpdatedAt)
	return err
}

// ListTimesheets returns an officer's timesheets in the inclusive date
// range, ordered by date.
func (p *Postgres) ListTimesheets(ctx context.Context, officerID, from, to string) ([]model.Timesheet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, officer_id, date, entry_ids, breaks, total_minutes_worked,
			total_break_minutes, overtime_minutes, status, updated_at
		FROM timesheets
		WHERE officer_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`, officerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ts)
	}
	return out, rows.Err()
}

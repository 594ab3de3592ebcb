package model

import "time"

// Shift lifecycle statuses.
const (
	ShiftScheduled  = "scheduled"
	ShiftInProgress = "in-progress"
	ShiftCompleted  = "completed"
	ShiftCancelled  = "cancelled"
)

// Shift types and their fixed working windows.
const (
	ShiftMorning   = "Morning"
	ShiftAfternoon = "Afternoon"
	ShiftNight     = "Night"
)

// Clock statuses for an officer's session.
const (
	ClockedOut = "clocked-out"
	ClockedIn  = "clocked-in"
	OnBreak    = "on-break"
)

// Time entry event types.
const (
	EntryClockIn    = "clock-in"
	EntryClockOut   = "clock-out"
	EntryBreakStart = "break-start"
	EntryBreakEnd   = "break-end"
)

// Geofence verification outcomes.
const (
	GeofenceInside  = "inside"
	GeofenceOutside = "outside"
	GeofenceUnknown = "unknown"
)

// Timesheet approval statuses. Approved/rejected are set by an external
// approval workflow, never by this service.
const (
	TimesheetPending   = "pending"
	TimesheetSubmitted = "submitted"
	TimesheetApproved  = "approved"
	TimesheetRejected  = "rejected"
)

// Location is a GPS fix reported by an officer's device.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geofence is the circular boundary around a site's coordinates.
type Geofence struct {
	Center  *Location `json:"center,omitempty"`
	Radius  float64   `json:"radius,omitempty"` // metres, 0 means default
	Enabled bool      `json:"enabled"`
}

// ShiftTemplate is one entry of a site's shifts-per-day policy.
type ShiftTemplate struct {
	ShiftType      string `json:"shift_type"`
	GuardsRequired int    `json:"guards_required"`
	GuardType      string `json:"guard_type"`
}

// CoverageRequirement is a site's declarative staffing policy.
type CoverageRequirement struct {
	ContractStart time.Time       `json:"contract_start"`
	ContractEnd   *time.Time      `json:"contract_end,omitempty"`
	IsOngoing     bool            `json:"is_ongoing"`
	DaysOfWeek    []int           `json:"days_of_week"` // ISO weekdays, Mon=1..Sun=7
	ShiftsPerDay  []ShiftTemplate `json:"shifts_per_day"`
}

// Site is a client location covered by officers.
type Site struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Active   bool                 `json:"active"`
	SiteType string               `json:"site_type"`
	Postcode string               `json:"postcode"`
	Geofence *Geofence            `json:"geofence,omitempty"`
	Coverage *CoverageRequirement `json:"coverage,omitempty"`
}

// Officer is a field officer available for assignment.
type Officer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Postcode     string `json:"postcode"`
	GuardType    string `json:"guard_type"`
	Availability string `json:"availability"` // "true", "false" or "partial"
	ShiftTime    string `json:"shift_time"`   // "day", "night", "any" or "flexible"
}

// ShiftTask is an embedded to-do item on a shift.
type ShiftTask struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
}

// Shift is a single assignment slot at a site on a calendar day.
// Invariant: at most one non-cancelled shift per (officer, date).
type Shift struct {
	ID          string      `json:"id"`
	OfficerID   string      `json:"officer_id,omitempty"` // empty = unassigned
	SiteID      string      `json:"site_id"`
	Date        string      `json:"date"` // YYYY-MM-DD
	ShiftType   string      `json:"shift_type"`
	StartTime   string      `json:"start_time"` // HH:MM
	EndTime     string      `json:"end_time"`   // HH:MM
	Status      string      `json:"status"`
	ActualStart *time.Time  `json:"actual_start,omitempty"`
	ActualEnd   *time.Time  `json:"actual_end,omitempty"`
	Tasks       []ShiftTask `json:"tasks,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TimeEntry is an append-only clock event. Never mutated or deleted.
type TimeEntry struct {
	ID             string    `json:"id"`
	OfficerID      string    `json:"officer_id"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Location       *Location `json:"location,omitempty"`
	GeofenceStatus string    `json:"geofence_status"`
}

// Break is a completed break interval recorded on a timesheet.
type Break struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Timesheet is the per-(officer, date) aggregate of worked and break minutes.
type Timesheet struct {
	ID                 string    `json:"id"`
	OfficerID          string    `json:"officer_id"`
	Date               string    `json:"date"` // YYYY-MM-DD
	EntryIDs           []string  `json:"entry_ids"`
	Breaks             []Break   `json:"breaks"`
	TotalMinutesWorked int       `json:"total_minutes_worked"`
	TotalBreakMinutes  int       `json:"total_break_minutes"`
	OvertimeMinutes    int       `json:"overtime_minutes"`
	Status             string    `json:"status"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ClockSession is the singleton per-officer record of current clock state.
// Created lazily on first clock-in and reset, not deleted, on each new one.
type ClockSession struct {
	OfficerID              string     `json:"officer_id"`
	ClockStatus            string     `json:"clock_status"`
	ClockedInAt            *time.Time `json:"clocked_in_at,omitempty"`
	CurrentBreakStartedAt  *time.Time `json:"current_break_started_at,omitempty"`
	TotalBreakMinutesToday int        `json:"total_break_minutes_today"`
	LastKnownLocation      *Location  `json:"last_known_location,omitempty"`
	GeofenceStatus         string     `json:"geofence_status,omitempty"`
	ShiftID                string     `json:"shift_id,omitempty"`
	SiteID                 string     `json:"site_id,omitempty"`
	Version                int64      `json:"-"` // bumped on every write, used for CAS updates
}

// ShiftWindow returns the fixed working window for a shift type.
// The night window crosses midnight.
func ShiftWindow(shiftType string) (start, end string, ok bool) {
	switch shiftType {
	case ShiftMorning:
		return "06:00", "14:00", true
	case ShiftAfternoon:
		return "14:00", "22:00", true
	case ShiftNight:
		return "22:00", "06:00", true
	}
	return "", "", false
}

// DateKey formats a moment as the calendar-day key used across shifts,
// timesheets and conflict checks.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ISOWeekday returns the ISO weekday (Mon=1..Sun=7) for a moment.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

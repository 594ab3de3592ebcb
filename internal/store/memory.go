package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"
)

// Memory is a map-backed store for dev and testing. It implements the same
// persistence surfaces as the Postgres repositories, including the atomic
// (officer, date) shift conflict check and the versioned session upsert:
// every mutation runs under one lock, so check-then-write sections are
// indivisible.
type Memory struct {
	mu         sync.RWMutex
	officers   map[string]model.Officer
	sites      map[string]model.Site
	shifts     map[string]model.Shift
	sessions   map[string]model.ClockSession
	entries    []model.TimeEntry
	timesheets map[string]model.Timesheet // key officerID|date
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		officers:   make(map[string]model.Officer),
		sites:      make(map[string]model.Site),
		shifts:     make(map[string]model.Shift),
		sessions:   make(map[string]model.ClockSession),
		timesheets: make(map[string]model.Timesheet),
	}
}

// PutOfficer upserts an officer record.
func (m *Memory) PutOfficer(_ context.Context, o model.Officer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.officers[o.ID] = o
	return nil
}

// GetOfficer returns an officer or nil when absent.
func (m *Memory) GetOfficer(_ context.Context, id string) (*model.Officer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.officers[id]; ok {
		return &o, nil
	}
	return nil, nil
}

// ListOfficers returns all officers ordered by id.
func (m *Memory) ListOfficers(_ context.Context) ([]model.Officer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Officer, 0, len(m.officers))
	for _, o := range m.officers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutSite upserts a site record.
func (m *Memory) PutSite(_ context.Context, s model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[s.ID] = s
	return nil
}

// GetSite returns a site or nil when absent.
func (m *Memory) GetSite(_ context.Context, id string) (*model.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sites[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// ListSites returns sites ordered by id, optionally active only.
func (m *Memory) ListSites(_ context.Context, activeOnly bool) ([]model.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Site, 0, len(m.sites))
	for _, s := range m.sites {
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// conflictLocked reports an existing non-cancelled shift for the officer on
// the date, ignoring excludeID. Callers must hold the write lock.
func (m *Memory) conflictLocked(officerID, date, excludeID string) bool {
	if officerID == "" {
		return false
	}
	for _, s := range m.shifts {
		if s.ID != excludeID && s.OfficerID == officerID && s.Date == date && s.Status != model.ShiftCancelled {
			return true
		}
	}
	return false
}

// InsertShift persists a new shift, enforcing the one non-cancelled shift
// per (officer, date) invariant atomically.
func (m *Memory) InsertShift(_ context.Context, s model.Shift) (model.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictLocked(s.OfficerID, s.Date, "") {
		return model.Shift{}, apperr.New(apperr.Conflict,
			"officer %s already has a shift on %s", s.OfficerID, s.Date)
	}
	m.shifts[s.ID] = s
	return s, nil
}

// GetShift returns a shift or nil when absent.
func (m *Memory) GetShift(_ context.Context, id string) (*model.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.shifts[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// UpdateShift overwrites a shift, re-running the conflict check in case
// officer or date changed.
func (m *Memory) UpdateShift(_ context.Context, s model.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[s.ID]; !ok {
		return apperr.New(apperr.NotFound, "shift %s not found", s.ID)
	}
	if s.Status != model.ShiftCancelled && m.conflictLocked(s.OfficerID, s.Date, s.ID) {
		return apperr.New(apperr.Conflict,
			"officer %s already has a shift on %s", s.OfficerID, s.Date)
	}
	m.shifts[s.ID] = s
	return nil
}

// DeleteShift removes a shift.
func (m *Memory) DeleteShift(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[id]; !ok {
		return apperr.New(apperr.NotFound, "shift %s not found", id)
	}
	delete(m.shifts, id)
	return nil
}

// ListShifts filters and paginates, returning the page plus total count.
func (m *Memory) ListShifts(_ context.Context, f shift.Filter) ([]model.Shift, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []model.Shift
	for _, s := range m.shifts {
		if f.FromDate != "" && s.Date < f.FromDate {
			continue
		}
		if f.ToDate != "" && s.Date > f.ToDate {
			continue
		}
		if f.OfficerID != "" && s.OfficerID != f.OfficerID {
			continue
		}
		if f.SiteID != "" && s.SiteID != f.SiteID {
			continue
		}
		if f.ShiftType != "" && s.ShiftType != f.ShiftType {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date < matched[j].Date
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= total {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// OfficerHasShiftOn reports a non-cancelled shift for the officer on the
// date at any site.
func (m *Memory) OfficerHasShiftOn(_ context.Context, officerID, date string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflictLocked(officerID, date, ""), nil
}

// GetSession returns the officer's clock session or nil when absent.
func (m *Memory) GetSession(_ context.Context, officerID string) (*model.ClockSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[officerID]; ok {
		return &s, nil
	}
	return nil, nil
}

// PutSession writes a session iff the stored version still matches
// expectedVersion (0 means "no session yet"). A stale version reports
// Conflict so the caller can re-read current state.
func (m *Memory) PutSession(_ context.Context, s model.ClockSession, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.sessions[s.OfficerID]
	switch {
	case !exists && expectedVersion != 0:
		return apperr.New(apperr.Conflict, "session for %s does not exist", s.OfficerID)
	case exists && current.Version != expectedVersion:
		return apperr.New(apperr.Conflict, "session for %s changed concurrently", s.OfficerID)
	}
	s.Version = expectedVersion + 1
	m.sessions[s.OfficerID] = s
	return nil
}

// AppendTimeEntry records an immutable clock event.
func (m *Memory) AppendTimeEntry(_ context.Context, e model.TimeEntry) (model.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

// ListTimeEntries returns an officer's entries in append order.
func (m *Memory) ListTimeEntries(_ context.Context, officerID string) ([]model.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TimeEntry
	for _, e := range m.entries {
		if e.OfficerID == officerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func timesheetKey(officerID, date string) string { return officerID + "|" + date }

// GetTimesheet returns the (officer, date) aggregate or nil when absent.
func (m *Memory) GetTimesheet(_ context.Context, officerID, date string) (*model.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ts, ok := m.timesheets[timesheetKey(officerID, date)]; ok {
		return &ts, nil
	}
	return nil, nil
}

// PutTimesheet upserts the (officer, date) aggregate.
func (m *Memory) PutTimesheet(_ context.Context, ts model.Timesheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timesheets[timesheetKey(ts.OfficerID, ts.Date)] = ts
	return nil
}

// ListTimesheets returns an officer's timesheets in the inclusive date
// range, ordered by date.
func (m *Memory) ListTimesheets(_ context.Context, officerID, from, to string) ([]model.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Timesheet
	for _, ts := range m.timesheets {
		if ts.OfficerID != officerID {
			continue
		}
		if from != "" && ts.Date < from {
			continue
		}
		if to != "" && ts.Date > to {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

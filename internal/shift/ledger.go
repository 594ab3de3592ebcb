// Package shift implements the shift ledger: creation with double-booking
// prevention, filtered listing, the status state machine and embedded task
// tracking.
package shift

import (
	"context"
	"time"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/notify"

	"github.com/google/uuid"
)

// Filter selects shifts for listing. Zero values mean "no constraint".
type Filter struct {
	FromDate  string // YYYY-MM-DD inclusive
	ToDate    string // YYYY-MM-DD inclusive
	OfficerID string
	SiteID    string
	ShiftType string
	Status    string
	Limit     int
	Offset    int
}

// Store is the persistence surface the ledger needs. InsertShift and
// UpdateShift must enforce the one non-cancelled shift per (officer, date)
// invariant atomically and report violations as apperr.Conflict.
type Store interface {
	GetOfficer(ctx context.Context, id string) (*model.Officer, error)
	GetSite(ctx context.Context, id string) (*model.Site, error)
	InsertShift(ctx context.Context, s model.Shift) (model.Shift, error)
	GetShift(ctx context.Context, id string) (*model.Shift, error)
	UpdateShift(ctx context.Context, s model.Shift) error
	DeleteShift(ctx context.Context, id string) error
	ListShifts(ctx context.Context, f Filter) ([]model.Shift, int, error)
}

// Ledger coordinates shift persistence and lifecycle.
type Ledger struct {
	store Store
	sink  notify.Sink
	now   func() time.Time
}

// NewLedger creates a ledger. A nil sink disables notifications.
func NewLedger(store Store, sink notify.Sink) *Ledger {
	if sink == nil {
		sink = notify.Noop{}
	}
	return &Ledger{store: store, sink: sink, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CreateRequest carries the fields for a new shift.
type CreateRequest struct {
	OfficerID string // empty = unassigned draft
	SiteID    string
	Date      string // YYYY-MM-DD
	ShiftType string
	StartTime string // HH:MM, defaulted from the shift type when empty
	EndTime   string
	Tasks     []string
	Notes     string
}

// Create validates and persists a new shift with status scheduled.
// Fails with Conflict when the officer already holds a non-cancelled shift
// on that date, and NotFound when the officer or site does not resolve.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (model.Shift, error) {
	if req.SiteID == "" {
		return model.Shift{}, apperr.New(apperr.Validation, "site id required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return model.Shift{}, apperr.New(apperr.Validation, "invalid date %q", req.Date)
	}
	start, end, ok := model.ShiftWindow(req.ShiftType)
	if !ok {
		return model.Shift{}, apperr.New(apperr.Validation, "invalid shift type %q", req.ShiftType)
	}
	if req.StartTime != "" {
		start = req.StartTime
	}
	if req.EndTime != "" {
		end = req.EndTime
	}

	site, err := l.store.GetSite(ctx, req.SiteID)
	if err != nil {
		return model.Shift{}, apperr.Wrap(apperr.Storage, err, "load site")
	}
	if site == nil {
		return model.Shift{}, apperr.New(apperr.NotFound, "site %s not found", req.SiteID)
	}
	if req.OfficerID != "" {
		officer, err := l.store.GetOfficer(ctx, req.OfficerID)
		if err != nil {
			return model.Shift{}, apperr.Wrap(apperr.Storage, err, "load officer")
		}
		if officer == nil {
			return model.Shift{}, apperr.New(apperr.NotFound, "officer %s not found", req.OfficerID)
		}
	}

	s := model.Shift{
		ID:        uuid.NewString(),
		OfficerID: req.OfficerID,
		SiteID:    req.SiteID,
		Date:      req.Date,
		ShiftType: req.ShiftType,
		StartTime: start,
		EndTime:   end,
		Status:    model.ShiftScheduled,
		Notes:     req.Notes,
		CreatedAt: l.now().UTC(),
	}
	for _, desc := range req.Tasks {
		s.Tasks = append(s.Tasks, model.ShiftTask{ID: uuid.NewString(), Description: desc})
	}

	created, err := l.store.InsertShift(ctx, s)
	if err != nil {
		return model.Shift{}, err
	}
	l.sink.ShiftStatusChanged(ctx, notify.ShiftStatusEvent{
		ShiftID:   created.ID,
		Status:    created.Status,
		OfficerID: created.OfficerID,
		SiteID:    created.SiteID,
	})
	return created, nil
}

// Get returns one shift by id.
func (l *Ledger) Get(ctx context.Context, id string) (model.Shift, error) {
	s, err := l.store.GetShift(ctx, id)
	if err != nil {
		return model.Shift{}, apperr.Wrap(apperr.Storage, err, "load shift")
	}
	if s == nil {
		return model.Shift{}, apperr.New(apperr.NotFound, "shift %s not found", id)
	}
	return *s, nil
}

// List returns a page of shifts plus the total match count.
func (l *Ledger) List(ctx context.Context, f Filter) ([]model.Shift, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.store.ListShifts(ctx, f)
}

// UpdatePatch holds partial field updates; nil means "leave unchanged".
type UpdatePatch struct {
	OfficerID *string
	SiteID    *string
	Date      *string
	ShiftType *string
	StartTime *string
	EndTime   *string
	Notes     *string
}

// Update applies a partial update, re-validating any changed references.
// Officer/date changes are subject to the same double-booking check as
// Create.
func (l *Ledger) Update(ctx context.Context, id string, patch UpdatePatch) (model.Shift, error) {
	s, err := l.Get(ctx, id)
	if err != nil {
		return model.Shift{}, err
	}
	if patch.OfficerID != nil && *patch.OfficerID != s.OfficerID {
		if *patch.OfficerID != "" {
			officer, err := l.store.GetOfficer(ctx, *patch.OfficerID)
			if err != nil {
				return model.Shift{}, apperr.Wrap(apperr.Storage, err, "load officer")
			}
			if officer == nil {
				return model.Shift{}, apperr.New(apperr.NotFound, "officer %s not found", *patch.OfficerID)
			}
		}
		s.OfficerID = *patch.OfficerID
	}
	if patch.SiteID != nil && *patch.SiteID != s.SiteID {
		site, err := l.store.GetSite(ctx, *patch.SiteID)
		if err != nil {
			return model.Shift{}, apperr.Wrap(apperr.Storage, err, "load site")
		}
		if site == nil {
			return model.Shift{}, apperr.New(apperr.NotFound, "site %s not found", *patch.SiteID)
		}
		s.SiteID = *patch.SiteID
	}
	if patch.Date != nil {
		if _, err := time.Parse("2006-01-02", *patch.Date); err != nil {
			return model.Shift{}, apperr.New(apperr.Validation, "invalid date %q", *patch.Date)
		}
		s.Date = *patch.Date
	}
	if patch.ShiftType != nil {
		if _, _, ok := model.ShiftWindow(*patch.ShiftType); !ok {
			return model.Shift{}, apperr.New(apperr.Validation, "invalid shift type %q", *patch.ShiftType)
		}
		s.ShiftType = *patch.ShiftType
	}
	if patch.StartTime != nil {
		s.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		s.EndTime = *patch.EndTime
	}
	if patch.Notes != nil {
		s.Notes = *patch.Notes
	}

	if err := l.store.UpdateShift(ctx, s); err != nil {
		return model.Shift{}, err
	}
	l.sink.ShiftStatusChanged(ctx, notify.ShiftStatusEvent{
		ShiftID:        s.ID,
		Status:         s.Status,
		PreviousStatus: s.Status,
		OfficerID:      s.OfficerID,
		SiteID:         s.SiteID,
	})
	return s, nil
}

// validTransitions encodes the shift status machine. Completed and
// cancelled are terminal.
var validTransitions = map[string][]string{
	model.ShiftScheduled:  {model.ShiftInProgress, model.ShiftCancelled},
	model.ShiftInProgress: {model.ShiftCompleted, model.ShiftCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// SetStatus advances the shift status machine. Entering in-progress stamps
// ActualStart; entering completed stamps ActualEnd.
func (l *Ledger) SetStatus(ctx context.Context, id, newStatus string) (model.Shift, error) {
	switch newStatus {
	case model.ShiftScheduled, model.ShiftInProgress, model.ShiftCompleted, model.ShiftCancelled:
	default:
		return model.Shift{}, apperr.New(apperr.Validation, "invalid status %q", newStatus)
	}
	s, err := l.Get(ctx, id)
	if err != nil {
		return model.Shift{}, err
	}
	if !transitionAllowed(s.Status, newStatus) {
		return model.Shift{}, apperr.New(apperr.InvalidTransition,
			"cannot transition shift from %s to %s", s.Status, newStatus)
	}

	previous := s.Status
	s.Status = newStatus
	now := l.now().UTC()
	switch newStatus {
	case model.ShiftInProgress:
		s.ActualStart = &now
	case model.ShiftCompleted:
		s.ActualEnd = &now
	}
	if err := l.store.UpdateShift(ctx, s); err != nil {
		return model.Shift{}, err
	}
	l.sink.ShiftStatusChanged(ctx, notify.ShiftStatusEvent{
		ShiftID:        s.ID,
		Status:         s.Status,
		PreviousStatus: previous,
		OfficerID:      s.OfficerID,
		SiteID:         s.SiteID,
	})
	return s, nil
}

// SetTaskStatus toggles an embedded task, stamping or clearing the
// completion metadata.
func (l *Ledger) SetTaskStatus(ctx context.Context, shiftID, taskID string, completed bool, actor string) (model.Shift, error) {
	s, err := l.Get(ctx, shiftID)
	if err != nil {
		return model.Shift{}, err
	}
	idx := -1
	for i := range s.Tasks {
		if s.Tasks[i].ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Shift{}, apperr.New(apperr.NotFound, "task %s not found on shift %s", taskID, shiftID)
	}
	s.Tasks[idx].Completed = completed
	if completed {
		now := l.now().UTC()
		s.Tasks[idx].CompletedAt = &now
		s.Tasks[idx].CompletedBy = actor
	} else {
		s.Tasks[idx].CompletedAt = nil
		s.Tasks[idx].CompletedBy = ""
	}
	if err := l.store.UpdateShift(ctx, s); err != nil {
		return model.Shift{}, err
	}
	l.sink.TaskCompleted(ctx, notify.TaskEvent{
		ShiftID:     s.ID,
		TaskID:      taskID,
		Description: s.Tasks[idx].Description,
		Completed:   completed,
		Actor:       actor,
	})
	return s, nil
}

// Delete removes a shift permanently.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	s, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := l.store.DeleteShift(ctx, id); err != nil {
		return err
	}
	l.sink.ShiftStatusChanged(ctx, notify.ShiftStatusEvent{
		ShiftID:        s.ID,
		Status:         "deleted",
		PreviousStatus: s.Status,
		OfficerID:      s.OfficerID,
		SiteID:         s.SiteID,
	})
	return nil
}

package timeclock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/notify"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"
	"github.com/cris-mate/guardian-optix-sub000/internal/store"
	"github.com/cris-mate/guardian-optix-sub000/internal/timeclock"
)

// stepClock is a settable time source shared between the services under test.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (s *stepClock) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

func (s *stepClock) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t = s.t.Add(d)
}

type violationSink struct {
	notify.Noop
	mu         sync.Mutex
	violations []notify.ViolationEvent
}

func (v *violationSink) GeofenceViolation(_ context.Context, evt notify.ViolationEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.violations = append(v.violations, evt)
}

func newFixture(t *testing.T) (*timeclock.Clock, *store.Memory, *shift.Ledger, *stepClock, *violationSink) {
	t.Helper()
	mem := store.NewMemory()
	clk := &stepClock{t: time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC)}
	sink := &violationSink{}
	ledger := shift.NewLedger(mem, nil).WithClock(clk.now)
	clock := timeclock.NewClock(mem, ledger, sink, 480).WithClock(clk.now)

	ctx := context.Background()
	if err := mem.PutOfficer(ctx, model.Officer{ID: "o1", GuardType: "static"}); err != nil {
		t.Fatal(err)
	}
	if err := mem.PutSite(ctx, model.Site{
		ID:     "s1",
		Active: true,
		Geofence: &model.Geofence{
			Center:  &model.Location{Latitude: 51.5010, Longitude: -0.1416},
			Radius:  200,
			Enabled: true,
		},
	}); err != nil {
		t.Fatal(err)
	}
	return clock, mem, ledger, clk, sink
}

func TestClockLifecycle(t *testing.T) {
	clock, mem, _, clk, _ := newFixture(t)
	ctx := context.Background()
	at := &model.Location{Latitude: 51.5010, Longitude: -0.1416}

	session, err := clock.ClockIn(ctx, "o1", at, "s1", "")
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}
	if session.ClockStatus != model.ClockedIn {
		t.Errorf("status = %q, want clocked-in", session.ClockStatus)
	}
	if session.GeofenceStatus != model.GeofenceInside {
		t.Errorf("geofence = %q, want inside", session.GeofenceStatus)
	}

	clk.advance(2 * time.Hour)
	if _, err := clock.StartBreak(ctx, "o1", at); err != nil {
		t.Fatalf("start break: %v", err)
	}
	clk.advance(30 * time.Minute)
	session, err = clock.EndBreak(ctx, "o1", at)
	if err != nil {
		t.Fatalf("end break: %v", err)
	}
	if session.TotalBreakMinutesToday != 30 {
		t.Errorf("break minutes = %d, want 30", session.TotalBreakMinutesToday)
	}

	clk.advance(6 * time.Hour)
	session, err = clock.ClockOut(ctx, "o1", at)
	if err != nil {
		t.Fatalf("clock out: %v", err)
	}
	if session.ClockStatus != model.ClockedOut {
		t.Errorf("status = %q, want clocked-out", session.ClockStatus)
	}

	ts, err := clock.TodayTimesheet(ctx, "o1")
	if err != nil {
		t.Fatalf("timesheet: %v", err)
	}
	if ts.TotalMinutesWorked != 510 {
		t.Errorf("worked = %d, want 510", ts.TotalMinutesWorked)
	}
	if ts.TotalBreakMinutes != 30 {
		t.Errorf("breaks = %d, want 30", ts.TotalBreakMinutes)
	}
	// Net 480 exactly meets the daily standard.
	if ts.OvertimeMinutes != 0 {
		t.Errorf("overtime = %d, want 0", ts.OvertimeMinutes)
	}
	if len(ts.Breaks) != 1 || ts.Breaks[0].DurationMinutes != 30 {
		t.Errorf("break records = %+v", ts.Breaks)
	}
	if len(ts.EntryIDs) != 4 {
		t.Errorf("entries on timesheet = %d, want 4", len(ts.EntryIDs))
	}

	entries, err := mem.ListTimeEntries(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	wantTypes := []string{model.EntryClockIn, model.EntryBreakStart, model.EntryBreakEnd, model.EntryClockOut}
	if len(entries) != len(wantTypes) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantTypes))
	}
	for i, want := range wantTypes {
		if entries[i].Type != want {
			t.Errorf("entry[%d].Type = %q, want %q", i, entries[i].Type, want)
		}
	}
}

func TestInvalidStateTransitions(t *testing.T) {
	clock, _, _, clk, _ := newFixture(t)
	ctx := context.Background()

	if _, err := clock.StartBreak(ctx, "o1", nil); !apperr.Is(err, apperr.InvalidState) {
		t.Errorf("break before clock-in: got %v, want InvalidState", err)
	}
	if _, err := clock.ClockOut(ctx, "o1", nil); !apperr.Is(err, apperr.InvalidState) {
		t.Errorf("clock-out before clock-in: got %v, want InvalidState", err)
	}

	if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); !apperr.Is(err, apperr.InvalidState) {
		t.Errorf("double clock-in: got %v, want InvalidState", err)
	}
	if _, err := clock.EndBreak(ctx, "o1", nil); !apperr.Is(err, apperr.InvalidState) {
		t.Errorf("end break while clocked-in: got %v, want InvalidState", err)
	}

	if _, err := clock.StartBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := clock.StartBreak(ctx, "o1", nil); !apperr.Is(err, apperr.InvalidState) {
		t.Errorf("double break start: got %v, want InvalidState", err)
	}

	clk.advance(time.Minute)
	if _, err := clock.ClockIn(ctx, "ghost", nil, "", ""); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("unknown officer: got %v, want NotFound", err)
	}
}

func TestOvertime(t *testing.T) {
	clock, _, _, clk, _ := newFixture(t)
	ctx := context.Background()

	if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	clk.advance(2 * time.Hour)
	if _, err := clock.StartBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Hour)
	if _, err := clock.EndBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	// 560 worked minus 60 break = 500 net, 20 over the 480 standard.
	clk.advance(6*time.Hour + 20*time.Minute)
	if _, err := clock.ClockOut(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}

	ts, err := clock.TodayTimesheet(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if ts.TotalMinutesWorked != 560 || ts.TotalBreakMinutes != 60 {
		t.Fatalf("worked/breaks = %d/%d, want 560/60", ts.TotalMinutesWorked, ts.TotalBreakMinutes)
	}
	if ts.OvertimeMinutes != 20 {
		t.Errorf("overtime = %d, want 20", ts.OvertimeMinutes)
	}
}

func TestClockOutOnBreakFoldsOpenBreak(t *testing.T) {
	clock, mem, _, clk, _ := newFixture(t)
	ctx := context.Background()

	if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	clk.advance(4 * time.Hour)
	if _, err := clock.StartBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	clk.advance(25 * time.Minute)
	session, err := clock.ClockOut(ctx, "o1", nil)
	if err != nil {
		t.Fatalf("clock out while on break: %v", err)
	}
	if session.TotalBreakMinutesToday != 25 {
		t.Errorf("folded break minutes = %d, want 25", session.TotalBreakMinutesToday)
	}

	ts, err := clock.TodayTimesheet(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if ts.TotalBreakMinutes != 25 {
		t.Errorf("timesheet breaks = %d, want 25", ts.TotalBreakMinutes)
	}
	// The folded break closes without a break-end event or a Break record.
	if len(ts.Breaks) != 0 {
		t.Errorf("break records = %d, want 0", len(ts.Breaks))
	}
	entries, err := mem.ListTimeEntries(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Type == model.EntryBreakEnd {
			t.Errorf("unexpected break-end entry %s", e.ID)
		}
	}
}

func TestReClockInResetsBreakTotal(t *testing.T) {
	clock, _, _, clk, _ := newFixture(t)
	ctx := context.Background()

	if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Hour)
	if _, err := clock.StartBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	clk.advance(15 * time.Minute)
	if _, err := clock.EndBreak(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Hour)
	if _, err := clock.ClockOut(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}

	clk.advance(time.Hour)
	session, err := clock.ClockIn(ctx, "o1", nil, "", "")
	if err != nil {
		t.Fatalf("re-clock-in: %v", err)
	}
	if session.TotalBreakMinutesToday != 0 {
		t.Errorf("break minutes after re-clock-in = %d, want 0", session.TotalBreakMinutesToday)
	}
	if session.ClockedInAt == nil || !session.ClockedInAt.Equal(clk.now()) {
		t.Errorf("ClockedInAt = %v, want %v", session.ClockedInAt, clk.now())
	}
}

func TestConcurrentClockInOneWins(t *testing.T) {
	clock, _, _, _, _ := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = clock.ClockIn(ctx, "o1", nil, "", "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.Is(err, apperr.InvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("got %d successful clock-ins, want 1", successes)
	}
}

func TestGeofenceViolationEmitted(t *testing.T) {
	clock, _, _, _, sink := newFixture(t)
	ctx := context.Background()

	// Roughly 2km from the site centre, well outside the 200m fence.
	far := &model.Location{Latitude: 51.5190, Longitude: -0.1416}
	session, err := clock.ClockIn(ctx, "o1", far, "s1", "")
	if err != nil {
		t.Fatal(err)
	}
	if session.GeofenceStatus != model.GeofenceOutside {
		t.Errorf("geofence = %q, want outside", session.GeofenceStatus)
	}
	if len(sink.violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(sink.violations))
	}
	if v := sink.violations[0]; v.OfficerID != "o1" || v.SiteID != "s1" || v.Action != model.EntryClockIn {
		t.Errorf("violation = %+v", v)
	}
}

func TestClockDrivesLinkedShift(t *testing.T) {
	clock, _, ledger, clk, _ := newFixture(t)
	ctx := context.Background()

	s, err := ledger.Create(ctx, shift.CreateRequest{
		OfficerID: "o1", SiteID: "s1", Date: "2026-09-07", ShiftType: model.ShiftMorning,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := clock.ClockIn(ctx, "o1", nil, "s1", s.ID); err != nil {
		t.Fatal(err)
	}
	got, err := ledger.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.ShiftInProgress {
		t.Errorf("shift status after clock-in = %q, want in-progress", got.Status)
	}

	clk.advance(8 * time.Hour)
	if _, err := clock.ClockOut(ctx, "o1", nil); err != nil {
		t.Fatal(err)
	}
	got, err = ledger.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.ShiftCompleted {
		t.Errorf("shift status after clock-out = %q, want completed", got.Status)
	}

	if _, err := clock.ClockIn(ctx, "o1", nil, "s1", "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("clock-in against missing shift: got %v, want NotFound", err)
	}
}

func TestWeeklyRollupCapsRegularMinutes(t *testing.T) {
	clock, _, _, clk, _ := newFixture(t)
	ctx := context.Background()

	// Six 9-hour days in the week of Monday 2026-09-07: 540 net per day,
	// 60 daily overtime each, 480*6=2880 cumulative regular against a
	// 2400 weekly standard.
	for day := 0; day < 6; day++ {
		if _, err := clock.ClockIn(ctx, "o1", nil, "", ""); err != nil {
			t.Fatalf("day %d clock in: %v", day, err)
		}
		clk.advance(9 * time.Hour)
		if _, err := clock.ClockOut(ctx, "o1", nil); err != nil {
			t.Fatalf("day %d clock out: %v", day, err)
		}
		clk.advance(15 * time.Hour)
	}

	summary, err := clock.WeeklyTimesheet(ctx, "o1", time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC), 2400)
	if err != nil {
		t.Fatal(err)
	}
	if summary.WeekStart != "2026-09-07" || summary.WeekEnd != "2026-09-13" {
		t.Errorf("week bounds = %s..%s", summary.WeekStart, summary.WeekEnd)
	}
	if len(summary.Timesheets) != 6 {
		t.Fatalf("got %d timesheets, want 6", len(summary.Timesheets))
	}
	if summary.TotalMinutesWorked != 6*540 {
		t.Errorf("total worked = %d, want %d", summary.TotalMinutesWorked, 6*540)
	}
	if summary.DailyOvertimeMinutes != 6*60 {
		t.Errorf("daily overtime = %d, want %d", summary.DailyOvertimeMinutes, 6*60)
	}
	if summary.RegularMinutes != 2400 {
		t.Errorf("regular = %d, want capped at 2400", summary.RegularMinutes)
	}
	if summary.WeeklyOvertimeMinutes != 480 {
		t.Errorf("weekly overtime = %d, want 480", summary.WeeklyOvertimeMinutes)
	}
}

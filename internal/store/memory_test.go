package store_test

import (
	"context"
	"testing"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/store"
)

func TestPutSessionVersioning(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	// Create requires expected version 0.
	err := mem.PutSession(ctx, model.ClockSession{OfficerID: "o1", ClockStatus: model.ClockedIn}, 1)
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("create with wrong expected version: got %v, want Conflict", err)
	}
	if err := mem.PutSession(ctx, model.ClockSession{OfficerID: "o1", ClockStatus: model.ClockedIn}, 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := mem.GetSession(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 1 {
		t.Errorf("version after create = %d, want 1", s.Version)
	}

	// Update with the current version succeeds and bumps it.
	s.ClockStatus = model.OnBreak
	if err := mem.PutSession(ctx, *s, s.Version); err != nil {
		t.Fatalf("update: %v", err)
	}

	// A writer holding the old version loses.
	stale := *s
	stale.ClockStatus = model.ClockedOut
	if err := mem.PutSession(ctx, stale, s.Version); !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("stale update: got %v, want Conflict", err)
	}

	s, err = mem.GetSession(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Version != 2 || s.ClockStatus != model.OnBreak {
		t.Errorf("session = version %d status %q, want 2/on-break", s.Version, s.ClockStatus)
	}
}

func TestInsertShiftConflictIgnoresUnassigned(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		_, err := mem.InsertShift(ctx, model.Shift{
			ID: id, SiteID: "s1", Date: "2026-09-07",
			ShiftType: model.ShiftNight, Status: model.ShiftScheduled,
		})
		if err != nil {
			t.Fatalf("unassigned insert %d: %v", i, err)
		}
	}

	if _, err := mem.InsertShift(ctx, model.Shift{
		ID: "d", OfficerID: "o1", SiteID: "s1", Date: "2026-09-07",
		ShiftType: model.ShiftNight, Status: model.ShiftScheduled,
	}); err != nil {
		t.Fatalf("assigned insert: %v", err)
	}
	_, err := mem.InsertShift(ctx, model.Shift{
		ID: "e", OfficerID: "o1", SiteID: "s2", Date: "2026-09-07",
		ShiftType: model.ShiftMorning, Status: model.ShiftScheduled,
	})
	if !apperr.Is(err, apperr.Conflict) {
		t.Fatalf("double booking across sites: got %v, want Conflict", err)
	}

	// Cancelled shifts do not block.
	if err := mem.UpdateShift(ctx, model.Shift{
		ID: "d", OfficerID: "o1", SiteID: "s1", Date: "2026-09-07",
		ShiftType: model.ShiftNight, Status: model.ShiftCancelled,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := mem.InsertShift(ctx, model.Shift{
		ID: "e", OfficerID: "o1", SiteID: "s2", Date: "2026-09-07",
		ShiftType: model.ShiftMorning, Status: model.ShiftScheduled,
	}); err != nil {
		t.Fatalf("insert after cancel: %v", err)
	}

	has, err := mem.OfficerHasShiftOn(ctx, "o1", "2026-09-07")
	if err != nil || !has {
		t.Errorf("OfficerHasShiftOn = %v, %v, want true", has, err)
	}
}

func TestListTimesheetsRange(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	for _, d := range []string{"2026-09-05", "2026-09-07", "2026-09-10", "2026-09-14"} {
		if err := mem.PutTimesheet(ctx, model.Timesheet{
			ID: "ts-" + d, OfficerID: "o1", Date: d, Status: model.TimesheetPending,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := mem.PutTimesheet(ctx, model.Timesheet{
		ID: "ts-other", OfficerID: "o2", Date: "2026-09-08", Status: model.TimesheetPending,
	}); err != nil {
		t.Fatal(err)
	}

	sheets, err := mem.ListTimesheets(ctx, "o1", "2026-09-07", "2026-09-13")
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 2 {
		t.Fatalf("got %d sheets, want 2", len(sheets))
	}
	if sheets[0].Date != "2026-09-07" || sheets[1].Date != "2026-09-10" {
		t.Errorf("dates = %s, %s", sheets[0].Date, sheets[1].Date)
	}
}

package match_test

import (
	"context"
	"testing"

	"github.com/cris-mate/guardian-optix-sub000/internal/geo"
	"github.com/cris-mate/guardian-optix-sub000/internal/match"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/notify"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"
	"github.com/cris-mate/guardian-optix-sub000/internal/store"
)

func newScorer(t *testing.T) (*match.Scorer, *store.Memory, *shift.Ledger) {
	t.Helper()
	mem := store.NewMemory()
	ledger := shift.NewLedger(mem, notify.Noop{})
	return match.NewScorer(geo.NewGazetteer(), mem), mem, ledger
}

func seedOfficer(t *testing.T, mem *store.Memory, o model.Officer) {
	t.Helper()
	if err := mem.PutOfficer(context.Background(), o); err != nil {
		t.Fatalf("seed officer: %v", err)
	}
}

func seedSite(t *testing.T, mem *store.Memory, s model.Site) {
	t.Helper()
	if err := mem.PutSite(context.Background(), s); err != nil {
		t.Fatalf("seed site: %v", err)
	}
}

func TestRecommendSubScores(t *testing.T) {
	scorer, _, _ := newScorer(t)
	site := model.Site{ID: "site-1", SiteType: "retail", Postcode: "SW1A 1AA"}

	tests := []struct {
		name         string
		officer      model.Officer
		wantDistance int
		wantAvail    int
		wantGuard    int
		wantPref     int
	}{
		{
			name: "same postcode prefix scores full distance",
			officer: model.Officer{
				ID: "o1", Postcode: "SW1A 2AA", GuardType: "mobile-patrol",
				Availability: "true", ShiftTime: "night",
			},
			wantDistance: 40, wantAvail: 20, wantGuard: 15, wantPref: 10,
		},
		{
			name: "partial availability and any preference",
			officer: model.Officer{
				ID: "o2", Postcode: "SW1A 2AA", GuardType: "static",
				Availability: "partial", ShiftTime: "any",
			},
			wantDistance: 40, wantAvail: 10, wantGuard: 15, wantPref: 8,
		},
		{
			name: "unresolvable postcode scores zero distance",
			officer: model.Officer{
				ID: "o3", Postcode: "ZZ9 9ZZ", GuardType: "static",
				Availability: "true", ShiftTime: "flexible",
			},
			wantDistance: 0, wantAvail: 20, wantGuard: 15, wantPref: 6,
		},
		{
			name: "day preference mismatched with night slot",
			officer: model.Officer{
				ID: "o4", Postcode: "E1 6AN", GuardType: "door-supervisor",
				Availability: "false", ShiftTime: "day",
			},
			wantDistance: 35, wantAvail: 0, wantGuard: 0, wantPref: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked, err := scorer.Recommend(context.Background(), site,
				[]model.Officer{tt.officer}, match.Context{Date: "2026-09-07", ShiftType: model.ShiftNight})
			if err != nil {
				t.Fatalf("Recommend: %v", err)
			}
			if len(ranked) != 1 {
				t.Fatalf("got %d results, want 1", len(ranked))
			}
			s := ranked[0].Scores
			if s.Distance != tt.wantDistance {
				t.Errorf("distance = %d, want %d", s.Distance, tt.wantDistance)
			}
			if s.Availability != tt.wantAvail {
				t.Errorf("availability = %d, want %d", s.Availability, tt.wantAvail)
			}
			if s.GuardType != tt.wantGuard {
				t.Errorf("guard type = %d, want %d", s.GuardType, tt.wantGuard)
			}
			if s.ShiftPreference != tt.wantPref {
				t.Errorf("shift preference = %d, want %d", s.ShiftPreference, tt.wantPref)
			}
		})
	}
}

func TestRecommendGeneralistFallback(t *testing.T) {
	scorer, _, _ := newScorer(t)
	// Events sites prefer events and door-supervisor types; static gets the
	// generalist 10, not the 15 for an exact match.
	site := model.Site{ID: "site-1", SiteType: "events", Postcode: "SW1A 1AA"}
	officer := model.Officer{ID: "o1", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "any"}

	ranked, err := scorer.Recommend(context.Background(), site,
		[]model.Officer{officer}, match.Context{Date: "2026-09-07", ShiftType: model.ShiftNight})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if got := ranked[0].Scores.GuardType; got != 10 {
		t.Errorf("guard type score = %d, want generalist fallback 10", got)
	}
}

func TestRecommendExcludesBookedOfficers(t *testing.T) {
	scorer, mem, ledger := newScorer(t)
	seedSite(t, mem, model.Site{ID: "site-1", SiteType: "retail", Postcode: "SW1A 1AA", Active: true})
	seedSite(t, mem, model.Site{ID: "site-2", SiteType: "corporate", Postcode: "E1 6AN", Active: true})
	booked := model.Officer{ID: "o1", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "any"}
	free := model.Officer{ID: "o2", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "any"}
	seedOfficer(t, mem, booked)
	seedOfficer(t, mem, free)

	// Booked at a different site than the one being scored.
	if _, err := ledger.Create(context.Background(), shift.CreateRequest{
		OfficerID: "o1", SiteID: "site-2", Date: "2026-09-07", ShiftType: model.ShiftNight,
	}); err != nil {
		t.Fatalf("create shift: %v", err)
	}

	site := model.Site{ID: "site-1", SiteType: "retail", Postcode: "SW1A 1AA"}
	ranked, err := scorer.Recommend(context.Background(), site,
		[]model.Officer{booked, free}, match.Context{Date: "2026-09-07", ShiftType: model.ShiftNight})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Officer.ID != "o2" {
		t.Fatalf("booked officer not excluded: %+v", ranked)
	}

	// A cancelled shift no longer blocks the officer.
	shifts, _, err := ledger.List(context.Background(), shift.Filter{OfficerID: "o1"})
	if err != nil || len(shifts) != 1 {
		t.Fatalf("list shifts: %v (%d)", err, len(shifts))
	}
	if _, err := ledger.SetStatus(context.Background(), shifts[0].ID, model.ShiftCancelled); err != nil {
		t.Fatalf("cancel shift: %v", err)
	}
	ranked, err = scorer.Recommend(context.Background(), site,
		[]model.Officer{booked, free}, match.Context{Date: "2026-09-07", ShiftType: model.ShiftNight})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results after cancellation, want 2", len(ranked))
	}
}

func TestRecommendOrderingAndTiers(t *testing.T) {
	scorer, _, _ := newScorer(t)
	site := model.Site{ID: "site-1", SiteType: "retail", Postcode: "SW1A 1AA"}
	strong := model.Officer{ID: "b", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "night"}
	weak := model.Officer{ID: "c", Postcode: "ZZ9 9ZZ", GuardType: "k9", Availability: "false", ShiftTime: "day"}
	twin := model.Officer{ID: "a", Postcode: "SW1A 2AA", GuardType: "static", Availability: "true", ShiftTime: "night"}

	ranked, err := scorer.Recommend(context.Background(), site,
		[]model.Officer{strong, weak, twin}, match.Context{Date: "2026-09-07", ShiftType: model.ShiftNight})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	// strong and twin tie on score; the tie breaks on officer id ascending.
	gotOrder := []string{ranked[0].Officer.ID, ranked[1].Officer.ID, ranked[2].Officer.ID}
	wantOrder := []string{"a", "b", "c"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
	// 40+20+15+10+5+3 = 93 -> highly-recommended.
	if ranked[0].Recommendation != "highly-recommended" {
		t.Errorf("top tier = %q, want highly-recommended", ranked[0].Recommendation)
	}
	// 0+0+0+0+5+3 = 8 -> available.
	if ranked[2].Recommendation != "available" {
		t.Errorf("bottom tier = %q, want available", ranked[2].Recommendation)
	}
}

func TestRecommendRequiresDate(t *testing.T) {
	scorer, _, _ := newScorer(t)
	_, err := scorer.Recommend(context.Background(), model.Site{ID: "s"}, nil, match.Context{})
	if err == nil {
		t.Fatal("expected validation error for missing date")
	}
}

// Package coverage materializes a site's declarative coverage requirement
// into concrete unassigned shifts over a date window.
package coverage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/shift"
)

// SiteStore lists and resolves sites for expansion.
type SiteStore interface {
	GetSite(ctx context.Context, id string) (*model.Site, error)
	ListSites(ctx context.Context, activeOnly bool) ([]model.Site, error)
}

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Expander turns coverage requirements into persisted shifts through the
// ledger.
type Expander struct {
	sites       SiteStore
	ledger      *shift.Ledger
	concurrency int
}

// NewExpander builds an expander. concurrency bounds the all-sites run.
func NewExpander(sites SiteStore, ledger *shift.Ledger, concurrency int) *Expander {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Expander{sites: sites, ledger: ledger, concurrency: concurrency}
}

// defaultTemplates applies when a site has no coverage requirement: one
// night guard, static type, Monday to Friday.
var defaultTemplates = []model.ShiftTemplate{
	{ShiftType: model.ShiftNight, GuardsRequired: 1, GuardType: "static"},
}

var defaultDays = []int{1, 2, 3, 4, 5}

// ExpandSite generates unassigned shifts for one site across the window.
// With skipExisting, (date, shiftType) pairs already persisted for the site
// are dropped, making repeated runs idempotent. Returns the created shifts.
func (e *Expander) ExpandSite(ctx context.Context, siteID string, w Window, skipExisting bool) ([]model.Shift, error) {
	if w.End.Before(w.Start) {
		return nil, apperr.New(apperr.Validation, "window end before start")
	}
	site, err := e.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "load site")
	}
	if site == nil {
		return nil, apperr.New(apperr.NotFound, "site %s not found", siteID)
	}
	if !site.Active {
		return nil, nil
	}

	existing := map[string]bool{}
	if skipExisting {
		persisted, _, err := e.ledger.List(ctx, shift.Filter{
			SiteID:   siteID,
			FromDate: model.DateKey(w.Start),
			ToDate:   model.DateKey(w.End),
			Limit:    100000,
		})
		if err != nil {
			return nil, err
		}
		for _, s := range persisted {
			existing[s.Date+"|"+s.ShiftType] = true
		}
	}

	templates := defaultTemplates
	days := defaultDays
	if site.Coverage != nil {
		if len(site.Coverage.ShiftsPerDay) > 0 {
			templates = site.Coverage.ShiftsPerDay
		}
		if len(site.Coverage.DaysOfWeek) > 0 {
			days = site.Coverage.DaysOfWeek
		}
	}

	var created []model.Shift
	for day := w.Start; !day.After(w.End); day = day.AddDate(0, 0, 1) {
		if site.Coverage != nil && !withinContract(day, site.Coverage) {
			continue
		}
		if !containsDay(days, model.ISOWeekday(day)) {
			continue
		}
		date := model.DateKey(day)
		for _, tpl := range templates {
			if skipExisting && existing[date+"|"+tpl.ShiftType] {
				continue
			}
			guards := tpl.GuardsRequired
			if guards < 1 {
				guards = 1
			}
			for i := 0; i < guards; i++ {
				s, err := e.ledger.Create(ctx, shift.CreateRequest{
					SiteID:    siteID,
					Date:      date,
					ShiftType: tpl.ShiftType,
				})
				if err != nil {
					return created, err
				}
				created = append(created, s)
			}
		}
	}
	return created, nil
}

// SiteResult reports one site's outcome of an all-sites run.
type SiteResult struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name,omitempty"`
	Created  int    `json:"created"`
	Error    string `json:"error,omitempty"`
}

// ExpandAll runs ExpandSite over every active site with a live contract,
// bounded by the configured concurrency. One site failing is reported in
// its result and never aborts the rest of the run.
func (e *Expander) ExpandAll(ctx context.Context, w Window, skipExisting bool) ([]SiteResult, error) {
	sites, err := e.sites.ListSites(ctx, true)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, err, "list sites")
	}

	results := make([]SiteResult, len(sites))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, site := range sites {
		if site.Coverage != nil && !contractLive(w, site.Coverage) {
			results[i] = SiteResult{SiteID: site.ID, SiteName: site.Name}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, site model.Site) {
			defer wg.Done()
			defer func() { <-sem }()
			res := SiteResult{SiteID: site.ID, SiteName: site.Name}
			defer func() {
				if r := recover(); r != nil {
					res.Error = fmt.Sprintf("panic: %v", r)
				}
				results[i] = res
			}()
			created, err := e.ExpandSite(ctx, site.ID, w, skipExisting)
			res.Created = len(created)
			if err != nil {
				res.Error = err.Error()
			}
		}(i, site)
	}
	wg.Wait()
	return results, nil
}

// withinContract reports whether a date falls inside the contract window.
// Ongoing contracts have no upper bound.
func withinContract(day time.Time, cov *model.CoverageRequirement) bool {
	date := model.DateKey(day)
	if !cov.ContractStart.IsZero() && date < model.DateKey(cov.ContractStart) {
		return false
	}
	if cov.IsOngoing {
		return true
	}
	if cov.ContractEnd != nil && date > model.DateKey(*cov.ContractEnd) {
		return false
	}
	return true
}

// contractLive reports whether any part of the window overlaps the
// contract.
func contractLive(w Window, cov *model.CoverageRequirement) bool {
	if !cov.ContractStart.IsZero() && model.DateKey(w.End) < model.DateKey(cov.ContractStart) {
		return false
	}
	if !cov.IsOngoing && cov.ContractEnd != nil && model.DateKey(w.Start) > model.DateKey(*cov.ContractEnd) {
		return false
	}
	return true
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

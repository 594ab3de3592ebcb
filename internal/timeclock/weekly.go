package timeclock

import (
	"context"
	"time"

	"github.com/cris-mate/guardian-optix-sub000/internal/apperr"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
)

// WeeklySummary is a read-only rollup over one ISO week of timesheets.
// Cumulative regular minutes are capped at the weekly standard; minutes
// beyond the cap count as weekly overtime on top of the per-day overtime.
type WeeklySummary struct {
	OfficerID             string            `json:"officer_id"`
	WeekStart             string            `json:"week_start"` // Monday, YYYY-MM-DD
	WeekEnd               string            `json:"week_end"`   // Sunday, YYYY-MM-DD
	Timesheets            []model.Timesheet `json:"timesheets"`
	TotalMinutesWorked    int               `json:"total_minutes_worked"`
	TotalBreakMinutes     int               `json:"total_break_minutes"`
	RegularMinutes        int               `json:"regular_minutes"`
	DailyOvertimeMinutes  int               `json:"daily_overtime_minutes"`
	WeeklyOvertimeMinutes int               `json:"weekly_overtime_minutes"`
}

// WeeklyTimesheet aggregates the ISO week (Monday through Sunday)
// containing weekOf. It is pure aggregation and never mutates stored
// timesheets. weeklyMinutes is the weekly regular-hours standard.
func (c *Clock) WeeklyTimesheet(ctx context.Context, officerID string, weekOf time.Time, weeklyMinutes int) (WeeklySummary, error) {
	if weeklyMinutes <= 0 {
		weeklyMinutes = c.dailyMinutes * 5
	}
	monday := weekOf.UTC().AddDate(0, 0, 1-model.ISOWeekday(weekOf.UTC()))
	sunday := monday.AddDate(0, 0, 6)

	sheets, err := c.store.ListTimesheets(ctx, officerID, model.DateKey(monday), model.DateKey(sunday))
	if err != nil {
		return WeeklySummary{}, apperr.Wrap(apperr.Storage, err, "list timesheets")
	}

	summary := WeeklySummary{
		OfficerID:  officerID,
		WeekStart:  model.DateKey(monday),
		WeekEnd:    model.DateKey(sunday),
		Timesheets: sheets,
	}
	regular := 0
	for _, ts := range sheets {
		summary.TotalMinutesWorked += ts.TotalMinutesWorked
		summary.TotalBreakMinutes += ts.TotalBreakMinutes
		summary.DailyOvertimeMinutes += ts.OvertimeMinutes
		net := ts.TotalMinutesWorked - ts.TotalBreakMinutes
		if net < 0 {
			net = 0
		}
		regular += net - ts.OvertimeMinutes
	}
	summary.RegularMinutes = regular
	if regular > weeklyMinutes {
		summary.WeeklyOvertimeMinutes = regular - weeklyMinutes
		summary.RegularMinutes = weeklyMinutes
	}
	return summary, nil
}

// Package metrics holds the prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClockActions counts clock transitions by action and geofence status.
	ClockActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_clock_actions_total",
		Help: "Clock actions processed, by action and geofence status.",
	}, []string{"action", "geofence_status"})

	// ShiftsGenerated counts shifts materialized by the coverage expander.
	ShiftsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_shifts_generated_total",
		Help: "Shifts created by coverage expansion.",
	})

	// ShiftTransitions counts shift status changes by target status.
	ShiftTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_shift_transitions_total",
		Help: "Shift status transitions, by new status.",
	}, []string{"status"})

	// GeofenceViolations counts clock actions reported from outside the
	// site geofence.
	GeofenceViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_geofence_violations_total",
		Help: "Clock actions reported outside the site geofence.",
	})
)

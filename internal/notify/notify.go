// Package notify delivers structured workforce events to downstream
// consumers. Delivery is fire-and-forget: a failed publish is logged and
// dropped, never surfaced to the operation that produced it.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cris-mate/guardian-optix-sub000/internal/queue"
)

// Event type names carried on the queue.
const (
	TypeShiftStatus       = "shift-status"
	TypeTaskCompleted     = "task-completed"
	TypeClockAction       = "clock-action"
	TypeGeofenceViolation = "geofence-violation"
)

// ShiftStatusEvent announces a shift status change.
type ShiftStatusEvent struct {
	ShiftID        string `json:"shift_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
	OfficerID      string `json:"officer_id,omitempty"`
	SiteID         string `json:"site_id"`
}

// TaskEvent announces an embedded task being completed or reopened.
type TaskEvent struct {
	ShiftID     string `json:"shift_id"`
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Actor       string `json:"actor,omitempty"`
}

// ClockEvent announces a clock action by an officer.
type ClockEvent struct {
	OfficerID      string    `json:"officer_id"`
	Action         string    `json:"action"`
	SiteID         string    `json:"site_id,omitempty"`
	GeofenceStatus string    `json:"geofence_status"`
	At             time.Time `json:"at"`
}

// ViolationEvent flags a clock action reported from outside the site
// geofence. Consumed by downstream alerting; never blocks the clock action
// itself.
type ViolationEvent struct {
	OfficerID string    `json:"officer_id"`
	SiteID    string    `json:"site_id,omitempty"`
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
}

// Sink receives workforce events. Implementations must not block the caller.
type Sink interface {
	ShiftStatusChanged(ctx context.Context, evt ShiftStatusEvent)
	TaskCompleted(ctx context.Context, evt TaskEvent)
	ClockAction(ctx context.Context, evt ClockEvent)
	GeofenceViolation(ctx context.Context, evt ViolationEvent)
}

// Publisher is a Sink that serializes events onto a queue.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps a queue backend.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// ShiftStatusChanged publishes a shift status event.
func (p *Publisher) ShiftStatusChanged(ctx context.Context, evt ShiftStatusEvent) {
	p.publish(ctx, TypeShiftStatus, evt)
}

// TaskCompleted publishes a task completion event.
func (p *Publisher) TaskCompleted(ctx context.Context, evt TaskEvent) {
	p.publish(ctx, TypeTaskCompleted, evt)
}

// ClockAction publishes a clock action event.
func (p *Publisher) ClockAction(ctx context.Context, evt ClockEvent) {
	p.publish(ctx, TypeClockAction, evt)
}

// GeofenceViolation publishes a geofence violation alert.
func (p *Publisher) GeofenceViolation(ctx context.Context, evt ViolationEvent) {
	p.publish(ctx, TypeGeofenceViolation, evt)
}

func (p *Publisher) publish(ctx context.Context, typ string, evt any) {
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("notify: marshal %s failed: %v", typ, err)
		return
	}
	if err := p.q.Publish(ctx, queue.Message{Type: typ, Body: body}); err != nil {
		log.Printf("notify: publish %s failed: %v", typ, err)
	}
}

// Noop discards all events. Used in tests and when no queue is configured.
type Noop struct{}

func (Noop) ShiftStatusChanged(context.Context, ShiftStatusEvent) {}
func (Noop) TaskCompleted(context.Context, TaskEvent)             {}
func (Noop) ClockAction(context.Context, ClockEvent)              {}
func (Noop) GeofenceViolation(context.Context, ViolationEvent)    {}

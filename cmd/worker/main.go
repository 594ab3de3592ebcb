package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cris-mate/guardian-optix-sub000/internal/config"
	"github.com/cris-mate/guardian-optix-sub000/internal/model"
	"github.com/cris-mate/guardian-optix-sub000/internal/notify"
	"github.com/cris-mate/guardian-optix-sub000/internal/queue"
	"github.com/cris-mate/guardian-optix-sub000/internal/store"
)

// Worker drains the notification queue and turns events into operator
// alerts. Delivery here is best effort; the producing request has already
// completed by the time a message arrives.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.NotifyQueueKey)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("notification worker started, waiting for events...")
	for msg := range messages {
		switch msg.Type {
		case notify.TypeShiftStatus:
			var evt notify.ShiftStatusEvent
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				log.Printf("bad %s payload: %v", msg.Type, err)
				continue
			}
			log.Printf("shift %s: %s -> %s (officer=%s site=%s)",
				evt.ShiftID, evt.PreviousStatus, evt.Status, evt.OfficerID, evt.SiteID)

		case notify.TypeTaskCompleted:
			var evt notify.TaskEvent
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				log.Printf("bad %s payload: %v", msg.Type, err)
				continue
			}
			log.Printf("task %q on shift %s completed=%t by %s",
				evt.Description, evt.ShiftID, evt.Completed, evt.Actor)

		case notify.TypeClockAction:
			var evt notify.ClockEvent
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				log.Printf("bad %s payload: %v", msg.Type, err)
				continue
			}
			log.Printf("officer %s %s at site %s (geofence=%s)",
				evt.OfficerID, evt.Action, evt.SiteID, evt.GeofenceStatus)
			if evt.GeofenceStatus == model.GeofenceOutside {
				log.Printf("ALERT: officer %s reported %s outside geofence of site %s",
					evt.OfficerID, evt.Action, evt.SiteID)
			}

		case notify.TypeGeofenceViolation:
			var evt notify.ViolationEvent
			if err := json.Unmarshal(msg.Body, &evt); err != nil {
				log.Printf("bad %s payload: %v", msg.Type, err)
				continue
			}
			log.Printf("ALERT: geofence violation by officer %s during %s at site %s",
				evt.OfficerID, evt.Action, evt.SiteID)

		default:
			log.Printf("unknown event type %q", msg.Type)
		}
	}

	log.Println("worker stopped")
}

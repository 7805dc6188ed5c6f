// Package publish fans refresh results out to dashboard clients over
// websockets and routes critical alerts to notification sinks.
package publish

import (
	"context"
	"time"
)

// Event is one dashboard update.
type Event struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event types emitted by the refresh scheduler.
const (
	EventSnapshot      = "building_snapshot"
	EventCycleComplete = "cycle_complete"
	EventCriticalAlert = "critical_alert"
)

// Broadcaster delivers events to all connected dashboard clients.
// Delivery is best-effort; a slow client never blocks the publisher.
type Broadcaster interface {
	Broadcast(event Event)
}

// Alert describes a building that crossed into the critical band.
type Alert struct {
	BuildingID string    `json:"building_id"`
	Score      int       `json:"score"`
	Band       string    `json:"band"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Notifier delivers critical alerts out of band.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// Broadcast implements Broadcaster.
func (NopBroadcaster) Broadcast(Event) {}

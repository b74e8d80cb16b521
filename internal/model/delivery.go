package model

import "time"

// DeliveryStatus is the outcome of one delivery attempt (spec.md §4.7).
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusRejected  DeliveryStatus = "rejected"
	StatusError     DeliveryStatus = "error"
	StatusScheduled DeliveryStatus = "scheduled"
	StatusFailed    DeliveryStatus = "failed" // terminal: retries exhausted
)

// Terminal reports whether s ends the delivery state machine.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// DeliveryAttempt records one attempt to deliver an event to an actor via a
// route. AttemptN is 1-indexed.
type DeliveryAttempt struct {
	EventID   string `json:"event_id"`
	RouteName string `json:"route_name"`
	ActorID   string `json:"actor_id"`
	// CorrelationID identifies one logical delivery (an event/route/actor
	// triple) across every retry of it, so an operator can join the
	// observer events for attempt 1 and attempt 4 of the same delivery.
	// It is independent of Event.ID, which stays fixed across routes.
	CorrelationID string         `json:"correlation_id"`
	AttemptN      int            `json:"attempt_n"`
	Status        DeliveryStatus `json:"status"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	Error         string         `json:"error,omitempty"`
}

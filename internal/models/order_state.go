package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

// forward holds the single legal successor of each state on the main path.
var forward = map[OrderStatus]OrderStatus{
	StatusPendingPayment: StatusConfirmed,
	StatusConfirmed:      StatusProcessing,
	StatusProcessing:     StatusShipped,
	StatusShipped:        StatusDelivered,
}

var defaultDescriptions = map[OrderStatus]string{
	StatusConfirmed:  "Order confirmed",
	StatusProcessing: "Order is being processed",
	StatusShipped:    "Order shipped",
	StatusDelivered:  "Order delivered",
	StatusCancelled:  "Order cancelled",
	StatusReturned:   "Order returned",
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is accepted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// CanTransition reports whether an order in from may move to to.
// Cancellation and return branch off any non-terminal state.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled || to == StatusReturned {
		return true
	}
	return forward[from] == to
}

// Transition moves the order to status and appends exactly one timeline
// entry. An empty description falls back to the default for the status.
func (o *Order) Transition(to OrderStatus, description string, at time.Time) (TimelineEntry, error) {
	if !CanTransition(o.Status, to) {
		return TimelineEntry{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if description == "" {
		description = defaultDescriptions[to]
	}
	entry := TimelineEntry{
		Status:      string(to),
		Timestamp:   at,
		Description: description,
	}
	o.Status = to
	o.Timeline = append(o.Timeline, entry)
	o.UpdatedAt = at
	return entry, nil
}

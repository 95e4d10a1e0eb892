package models

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{name: "pending to confirmed", from: StatusPendingPayment, to: StatusConfirmed, want: true},
		{name: "confirmed to processing", from: StatusConfirmed, to: StatusProcessing, want: true},
		{name: "processing to shipped", from: StatusProcessing, to: StatusShipped, want: true},
		{name: "shipped to delivered", from: StatusShipped, to: StatusDelivered, want: true},
		{name: "skip ahead", from: StatusPendingPayment, to: StatusShipped, want: false},
		{name: "backward", from: StatusShipped, to: StatusProcessing, want: false},
		{name: "self", from: StatusConfirmed, to: StatusConfirmed, want: false},
		{name: "cancel pending", from: StatusPendingPayment, to: StatusCancelled, want: true},
		{name: "cancel shipped", from: StatusShipped, to: StatusCancelled, want: true},
		{name: "return shipped", from: StatusShipped, to: StatusReturned, want: true},
		{name: "return confirmed", from: StatusConfirmed, to: StatusReturned, want: true},
		{name: "return processing", from: StatusProcessing, to: StatusReturned, want: true},
		{name: "return pending", from: StatusPendingPayment, to: StatusReturned, want: true},
		{name: "delivered is terminal", from: StatusDelivered, to: StatusReturned, want: false},
		{name: "cancelled is terminal", from: StatusCancelled, to: StatusConfirmed, want: false},
		{name: "returned is terminal", from: StatusReturned, to: StatusCancelled, want: false},
		{name: "unknown target", from: StatusConfirmed, to: OrderStatus("lost"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("expected %v for %s -> %s, got %v", tt.want, tt.from, tt.to, got)
			}
		})
	}
}

func TestOrderTransitionAppendsOneTimelineEntry(t *testing.T) {
	t.Parallel()

	placed := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	order := &Order{
		Status:   StatusPendingPayment,
		Timeline: []TimelineEntry{{Status: TimelineOrderPlaced, Timestamp: placed, Description: "Order placed"}},
	}

	at := placed.Add(time.Minute)
	entry, err := order.Transition(StatusConfirmed, "", at)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if order.Status != StatusConfirmed {
		t.Fatalf("expected status confirmed, got %s", order.Status)
	}
	if len(order.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(order.Timeline))
	}
	if entry.Description != "Order confirmed" || !entry.Timestamp.Equal(at) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !order.UpdatedAt.Equal(at) {
		t.Fatalf("expected updatedAt %v, got %v", at, order.UpdatedAt)
	}
}

func TestOrderTransitionRejectsTerminal(t *testing.T) {
	t.Parallel()

	order := &Order{Status: StatusDelivered}
	_, err := order.Transition(StatusCancelled, "too late", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if order.Status != StatusDelivered || len(order.Timeline) != 0 {
		t.Fatalf("expected order unchanged, got status=%s timeline=%d", order.Status, len(order.Timeline))
	}
}

func TestAddressComplete(t *testing.T) {
	t.Parallel()

	full := Address{Name: "Asha", Phone: "9999999999", Line1: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001"}
	if !full.Complete() {
		t.Fatal("expected full address to be complete")
	}
	missing := full
	missing.PostalCode = "  "
	if missing.Complete() {
		t.Fatal("expected blank postal code to be incomplete")
	}
}

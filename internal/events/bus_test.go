package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlanUpdated)

	bus.Publish(EventPlanUpdated, Payload{"plan_id": "p1"})

	select {
	case payload := <-sub:
		if payload["plan_id"] != "p1" {
			t.Fatalf("payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBusDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_ = bus.Subscribe(EventPlanUpdated) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventPlanUpdated, Payload{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventHealth)
	bus.Unsubscribe(EventHealth, sub)

	if _, open := <-sub; open {
		t.Fatal("expected channel to be closed")
	}
}

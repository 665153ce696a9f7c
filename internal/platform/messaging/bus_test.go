package messaging

import (
	"context"
	"testing"
	"time"

	contractsv1 "trustpoll/contracts/gen/events/v1"
)

func TestBusDeliversToTopicWatchers(t *testing.T) {
	bus := NewBus(4, nil)
	events, cancel := bus.Watch("payout-1")
	defer cancel()
	other, cancelOther := bus.Watch("payout-2")
	defer cancelOther()

	if err := bus.Publish(context.Background(), "payout-1", contractsv1.Envelope{EventID: "e-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case event := <-events:
		if event.EventID != "e-1" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
	select {
	case event := <-other:
		t.Fatalf("unexpected delivery on other topic: %+v", event)
	default:
	}
}

func TestBusDropsForFullSubscriber(t *testing.T) {
	bus := NewBus(1, nil)
	events, cancel := bus.Watch("payout-1")
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), "payout-1", contractsv1.Envelope{EventID: "e"}); err != nil {
			t.Fatalf("publish must not block or fail: %v", err)
		}
	}
	if len(events) != 1 {
		t.Fatalf("expected buffered single event, got %d", len(events))
	}
}

func TestBusPublishWithoutSubscribersSucceeds(t *testing.T) {
	if err := NewBus(0, nil).Publish(context.Background(), "nobody", contractsv1.Envelope{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestBusSubscribeInvokesHandler(t *testing.T) {
	bus := NewBus(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	received := make(chan string, 1)
	bus.Subscribe(ctx, "payout-9", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event.EventID
		return nil
	})
	if err := bus.Publish(context.Background(), "payout-9", contractsv1.Envelope{EventID: "e-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case id := <-received:
		if id != "e-9" {
			t.Fatalf("unexpected id %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler not invoked")
	}
}

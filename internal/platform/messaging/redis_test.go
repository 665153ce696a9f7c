package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	contractsv1 "trustpoll/contracts/gen/events/v1"
)

// Publisher and relay use separate clients, the way the worker and api
// processes each hold their own connection.
func TestRedisRelayCarriesEventsAcrossClients(t *testing.T) {
	server := miniredis.RunT(t)
	workerClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer workerClient.Close()
	apiClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer apiClient.Close()

	bus := NewBus(4, nil)
	events, cancel := bus.Watch("payout-p-1")
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	relay := NewRedisRelay(apiClient, "payout-*", bus, nil)
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	select {
	case <-relay.Ready():
	case err := <-done:
		t.Fatalf("relay exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("relay never subscribed")
	}

	publisher := NewRedisPublisher(workerClient, nil)
	sent := contractsv1.Envelope{
		EventID:   "e-1",
		EventType: "payout.settled",
		Data:      json.RawMessage(`{"status":"COMPLETED"}`),
	}
	if err := publisher.Publish(context.Background(), "payout-p-1", sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.EventID != "e-1" || string(got.Data) != `{"status":"COMPLETED"}` {
			t.Fatalf("unexpected relayed event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event never relayed")
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("relay run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestRedisRelaySkipsUndecodablePayload(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	bus := NewBus(4, nil)
	events, cancel := bus.Watch("payout-p-2")
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	relay := NewRedisRelay(client, "payout-*", bus, nil)
	go func() { _ = relay.Run(ctx) }()
	<-relay.Ready()

	publisher := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer publisher.Close()
	if err := publisher.Publish(context.Background(), "payout-p-2", "not json").Err(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := NewRedisPublisher(publisher, nil).Publish(context.Background(), "payout-p-2", contractsv1.Envelope{EventID: "e-2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.EventID != "e-2" {
			t.Fatalf("expected only the decodable event, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event never relayed")
	}
}

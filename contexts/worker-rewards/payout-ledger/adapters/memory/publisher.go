package memory

import (
	"context"
	"sync"

	"trustpoll/contexts/worker-rewards/payout-ledger/ports"
)

type PublishedEvent struct {
	Topic    string
	Envelope ports.EventEnvelope
}

// Publisher records notifications in publish order.
type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	err    error
}

func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *Publisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, PublishedEvent{Topic: topic, Envelope: event})
	return nil
}

func (p *Publisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]PublishedEvent, len(p.events))
	copy(items, p.events)
	return items
}

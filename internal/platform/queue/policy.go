package queue

import "time"

const (
	DefaultMaxAttempts  = 5
	DefaultBaseBackoff  = time.Second
	DefaultMaxBackoff   = 5 * time.Minute
	DefaultLeaseTimeout = 2 * time.Minute
)

// Policy bounds redelivery. Zero fields take the package defaults.
type Policy struct {
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	LeaseTimeout time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	if p.LeaseTimeout <= 0 {
		p.LeaseTimeout = DefaultLeaseTimeout
	}
	return p
}

// Backoff is BaseBackoff*2^(attempt-1) capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff || delay <= 0 {
			return p.MaxBackoff
		}
	}
	return delay
}

// Decide turns a handler result into the queue action. A Retry on the last
// allowed attempt becomes DeadLetter.
func (p Policy) Decide(result Result, attempt int) Result {
	p = p.normalized()
	switch result {
	case Ack, DeadLetter:
		return result
	default:
		if attempt >= p.MaxAttempts {
			return DeadLetter
		}
		return Retry
	}
}

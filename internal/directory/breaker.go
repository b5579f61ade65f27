package directory

import (
	"context"

	"github.com/sony/gobreaker"

	"triage/internal/config"
	"triage/pkg/circuitbreaker"
)

// BreakerLookup shields the directory source behind a circuit breaker so a
// failing database does not stall every message on lookup timeouts.
type BreakerLookup struct {
	inner   Lookup
	breaker *circuitbreaker.Wrapper
}

func NewBreakerLookup(inner Lookup, cfg config.CircuitBreakerConfig) *BreakerLookup {
	bc := circuitbreaker.DefaultConfig("terminal-directory")

	if cfg.MaxRequests > 0 {
		bc.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		bc.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		bc.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 {
		minRequests := cfg.MinRequests
		if minRequests == 0 {
			minRequests = 3
		}
		bc.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= cfg.FailureRatio
		}
	}

	return &BreakerLookup{
		inner:   inner,
		breaker: circuitbreaker.NewWrapper(bc),
	}
}

func (b *BreakerLookup) Lookup(ctx context.Context, site, workplace string) ([]Entry, error) {
	result, err := b.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return b.inner.Lookup(ctx, site, workplace)
	})

	b.breaker.RecordRequest(err == nil)

	if err != nil {
		return nil, err
	}

	entries, _ := result.([]Entry)
	return entries, nil
}

package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// IsCircuitOpen reports whether err was produced by an open circuit rather
// than the gateway itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// BreakerGateway wraps a GatewayAdapter in a circuit breaker. Consecutive
// send failures open the circuit; after the open timeout a single probe
// request is allowed through.
type BreakerGateway struct {
	inner GatewayAdapter
	cb    *gobreaker.CircuitBreaker[*GatewayReceipt]
}

// NewBreakerGateway wraps inner with a breaker that opens after threshold
// consecutive failures and stays open for timeout.
func NewBreakerGateway(name string, inner GatewayAdapter, threshold uint32, timeout time.Duration, logger *log.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Printf("gateway breaker %s: %s -> %s", name, from, to)
			}
		},
	}
	return &BreakerGateway{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*GatewayReceipt](settings),
	}
}

// Send forwards to the wrapped adapter through the breaker.
func (b *BreakerGateway) Send(ctx context.Context, msg OutboundMessage) (*GatewayReceipt, error) {
	return b.cb.Execute(func() (*GatewayReceipt, error) {
		return b.inner.Send(ctx, msg)
	})
}

// State exposes the current breaker state.
func (b *BreakerGateway) State() gobreaker.State {
	return b.cb.State()
}

// BreakerFactory hands out one breaker-wrapped gateway per campaign so a
// failing provider for one campaign cannot trip the others.
type BreakerFactory struct {
	mu        sync.Mutex
	inner     GatewayAdapter
	threshold uint32
	timeout   time.Duration
	logger    *log.Logger
	breakers  map[string]*BreakerGateway
}

// NewBreakerFactory creates a factory producing per-campaign breakers
// around the shared inner adapter.
func NewBreakerFactory(inner GatewayAdapter, threshold uint32, timeout time.Duration, logger *log.Logger) *BreakerFactory {
	return &BreakerFactory{
		inner:     inner,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
		breakers:  make(map[string]*BreakerGateway),
	}
}

// ForCampaign returns the breaker gateway for the given campaign, creating
// it on first use.
func (f *BreakerFactory) ForCampaign(campaignUUID string) *BreakerGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bg, ok := f.breakers[campaignUUID]; ok {
		return bg
	}
	bg := NewBreakerGateway("campaign-"+campaignUUID, f.inner, f.threshold, f.timeout, f.logger)
	f.breakers[campaignUUID] = bg
	return bg
}

// Release drops the breaker for a finished campaign.
func (f *BreakerFactory) Release(campaignUUID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.breakers, campaignUUID)
}

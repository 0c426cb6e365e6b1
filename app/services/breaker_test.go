package services

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerGatewayTripsAfterConsecutiveFailures(t *testing.T) {
	gw := NewMockGatewayAdapter()
	bg := NewBreakerGateway("test", gw, 3, time.Minute, nil)
	msg := OutboundMessage{To: "+14155552671"}

	gw.FailNext(3)
	for i := 0; i < 3; i++ {
		_, err := bg.Send(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
		assert.False(t, IsCircuitOpen(err))
	}

	assert.Equal(t, gobreaker.StateOpen, bg.State())

	// The circuit sheds the call before it reaches the gateway.
	_, err := bg.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Empty(t, gw.Sent())
}

func TestBreakerGatewayRecoversAfterTimeout(t *testing.T) {
	gw := NewMockGatewayAdapter()
	bg := NewBreakerGateway("test", gw, 2, 20*time.Millisecond, nil)
	msg := OutboundMessage{To: "+14155552671"}

	gw.FailNext(2)
	for i := 0; i < 2; i++ {
		_, err := bg.Send(context.Background(), msg)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, bg.State())

	time.Sleep(30 * time.Millisecond)

	// A single probe is allowed through and the success closes the circuit.
	receipt, err := bg.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.GatewayMessageID)
	assert.Equal(t, gobreaker.StateClosed, bg.State())
}

func TestBreakerGatewayStaysClosedOnSuccess(t *testing.T) {
	gw := NewMockGatewayAdapter()
	bg := NewBreakerGateway("test", gw, 2, time.Minute, nil)

	for i := 0; i < 5; i++ {
		_, err := bg.Send(context.Background(), OutboundMessage{To: "+14155552671"})
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, bg.State())
	assert.Len(t, gw.Sent(), 5)
}

func TestBreakerFactory(t *testing.T) {
	factory := NewBreakerFactory(NewMockGatewayAdapter(), 3, time.Minute, nil)

	a := factory.ForCampaign("campaign-a")
	b := factory.ForCampaign("campaign-b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, factory.ForCampaign("campaign-a"))

	factory.Release("campaign-a")
	assert.NotSame(t, a, factory.ForCampaign("campaign-a"))
}

func TestBreakerFactoryIsolatesCampaigns(t *testing.T) {
	gw := NewMockGatewayAdapter()
	factory := NewBreakerFactory(gw, 2, time.Minute, nil)
	msg := OutboundMessage{To: "+14155552671"}

	gw.FailNext(2)
	trips := factory.ForCampaign("failing")
	for i := 0; i < 2; i++ {
		_, err := trips.Send(context.Background(), msg)
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, trips.State())

	// Another campaign's breaker is unaffected.
	healthy := factory.ForCampaign("healthy")
	_, err := healthy.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, healthy.State())
}

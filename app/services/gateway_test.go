package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGatewaySend(t *testing.T) {
	gw := NewMockGatewayAdapter()
	msg := OutboundMessage{
		CampaignUUID: "c1",
		To:           "+14155552671",
		Text:         "hello",
		CustomID:     "m1",
	}

	receipt, err := gw.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "mock-1", receipt.GatewayMessageID)
	assert.False(t, receipt.AcceptedAt.IsZero())

	sent := gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, msg, sent[0])
}

func TestMockGatewayFailNext(t *testing.T) {
	gw := NewMockGatewayAdapter()
	gw.FailNext(2)

	for i := 0; i < 2; i++ {
		_, err := gw.Send(context.Background(), OutboundMessage{To: "+14155552671"})
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	}

	receipt, err := gw.Send(context.Background(), OutboundMessage{To: "+14155552671"})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.GatewayMessageID)
	assert.Len(t, gw.Sent(), 1)
}

func TestGatewayErrorClassification(t *testing.T) {
	inner := errors.New("boom")

	t.Run("retryable", func(t *testing.T) {
		var err error = &RetryableError{Err: inner}
		assert.True(t, IsRetryable(err))
		assert.False(t, IsAuthFailure(err))
		assert.ErrorIs(t, err, inner)
	})

	t.Run("auth", func(t *testing.T) {
		var err error = &AuthError{Err: inner}
		assert.True(t, IsAuthFailure(err))
		assert.False(t, IsRetryable(err))
		assert.ErrorIs(t, err, inner)
	})

	t.Run("fatal", func(t *testing.T) {
		var err error = &FatalError{Err: inner}
		assert.False(t, IsRetryable(err))
		assert.False(t, IsAuthFailure(err))
		assert.ErrorIs(t, err, inner)

		var fe *FatalError
		assert.True(t, errors.As(err, &fe))
	})

	t.Run("plain errors are neither", func(t *testing.T) {
		assert.False(t, IsRetryable(inner))
		assert.False(t, IsAuthFailure(inner))
	})
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentComplete(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	p := &Payment{Status: PaymentStatusPending}

	require.NoError(t, p.Complete(now))
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.ProcessedAt)
	assert.Equal(t, now, *p.ProcessedAt)

	assert.ErrorIs(t, p.Complete(now), ErrInvalidTransition)
}

func TestPaymentFail(t *testing.T) {
	p := &Payment{Status: PaymentStatusPending}
	require.NoError(t, p.Fail())
	assert.Equal(t, PaymentStatusFailed, p.Status)

	assert.ErrorIs(t, p.Fail(), ErrInvalidTransition)
	assert.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
}

func TestPaymentCancel(t *testing.T) {
	p := &Payment{Status: PaymentStatusPending}
	require.NoError(t, p.Cancel())
	assert.Equal(t, PaymentStatusCancelled, p.Status)

	// Completed payments can be cancelled administratively.
	p = &Payment{Status: PaymentStatusPending}
	require.NoError(t, p.Complete(time.Now()))
	require.NoError(t, p.Cancel())
	assert.Equal(t, PaymentStatusCancelled, p.Status)

	assert.ErrorIs(t, p.Cancel(), ErrInvalidTransition)
}

func TestPaymentMethodIsValid(t *testing.T) {
	assert.True(t, PaymentMethodGCash.IsValid())
	assert.True(t, PaymentMethodCheck.IsValid())
	assert.False(t, PaymentMethod("crypto").IsValid())
}

func TestPaymentTypeIsValid(t *testing.T) {
	assert.True(t, PaymentTypeAdvance.IsValid())
	assert.False(t, PaymentType("refund").IsValid())
}

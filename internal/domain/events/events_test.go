package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeAndCPID(t *testing.T) {
	evt := NewTransactionStarted("CP1", 42, 1, "T1", 10_000)
	assert.Equal(t, TypeTransactionStarted, evt.EventType())
	assert.Equal(t, "CP1", evt.CPID())
	assert.False(t, evt.OccurredAt().IsZero())
}

func TestChargePointConnectedCarriesEviction(t *testing.T) {
	evt := NewChargePointConnected("CP1", "V16", true)
	assert.True(t, evt.Evicted)
	assert.Equal(t, "V16", evt.Version)
}

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

func TestNegotiateSingleSupported(t *testing.T) {
	n := NewNegotiator(ocppversion.V16)
	v, ok := n.Negotiate("ocpp1.6")
	assert.True(t, ok)
	assert.Equal(t, ocppversion.V16, v)
}

func TestNegotiateHighestMutual(t *testing.T) {
	n := NewNegotiator(ocppversion.V21, ocppversion.V201, ocppversion.V16)
	v, ok := n.Negotiate("ocpp1.6, ocpp2.0.1")
	assert.True(t, ok)
	assert.Equal(t, ocppversion.V201, v)
}

func TestNegotiateNoMatch(t *testing.T) {
	n := NewNegotiator(ocppversion.V16)
	_, ok := n.Negotiate("ocpp2.0.1")
	assert.False(t, ok)
}

func TestNegotiateEmptyHeader(t *testing.T) {
	n := NewNegotiator(ocppversion.V16)
	_, ok := n.Negotiate("")
	assert.False(t, ok)
}

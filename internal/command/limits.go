package command

import (
	"sync"

	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
)

// limitKey identifies the connector a pending charging limit was staked
// against. connectorID 0 means "the next transaction on this charge
// point, whichever connector it starts on" — the shape RemoteStart takes
// when the caller didn't pin a connector.
type limitKey struct {
	chargePointID string
	connectorID   int
}

// PendingLimits is the per-CP pending charging limit map from spec §5/§9:
// a RemoteStart can stake a limit for the transaction it is about to
// cause; the next StartTransaction on that (charge_point_id,
// connector_id) consumes it via take-on-use (remove-on-read).
type PendingLimits struct {
	mu    sync.Mutex
	stake map[limitKey]*transactiondom.Limit
}

// NewPendingLimits builds an empty PendingLimits map.
func NewPendingLimits() *PendingLimits {
	return &PendingLimits{stake: make(map[limitKey]*transactiondom.Limit)}
}

// Stake records a limit for a (charge_point_id, connector_id) pair,
// overwriting any prior unconsumed stake for the same key.
func (p *PendingLimits) Stake(chargePointID string, connectorID int, limit *transactiondom.Limit) {
	if limit == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stake[limitKey{chargePointID, connectorID}] = limit
}

// Take removes and returns the staked limit for (chargePointID,
// connectorID), falling back to a limit staked for connector 0 (no
// connector pinned at RemoteStart time). Returns nil if nothing is
// staked either way.
func (p *PendingLimits) Take(chargePointID string, connectorID int) *transactiondom.Limit {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := limitKey{chargePointID, connectorID}
	if l, ok := p.stake[key]; ok {
		delete(p.stake, key)
		return l
	}
	wildcard := limitKey{chargePointID, 0}
	if connectorID != 0 {
		if l, ok := p.stake[wildcard]; ok {
			delete(p.stake, wildcard)
			return l
		}
	}
	return nil
}

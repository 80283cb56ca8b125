package session

import (
	"sync"
	"time"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

// Connection is the ephemeral per-WebSocket record the spec calls out in
// §3: it lives only in memory, owned exclusively by the Registry.
type Connection struct {
	ConnectionID  uint64
	ChargePointID string
	Version       ocppversion.Version
	Send          chan string
	ConnectedAt   time.Time

	mu           sync.RWMutex
	lastActivity time.Time
	closed       bool
}

func newConnection(id uint64, chargePointID string, version ocppversion.Version, sendBuf int) *Connection {
	now := time.Now()
	return &Connection{
		ConnectionID:  id,
		ChargePointID: chargePointID,
		Version:       version,
		Send:          make(chan string, sendBuf),
		ConnectedAt:   now,
		lastActivity:  now,
	}
}

// Touch updates last_activity to now.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the last time the connection was touched.
func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// close closes the send channel exactly once, causing the writer task
// draining it to observe EOF and exit. Register's eviction and CloseAll
// call it inside the registry's critical section so eviction is atomic
// with respect to IsConnected/SendTo; Unregister calls it after releasing
// the lock, once the entry is already removed.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

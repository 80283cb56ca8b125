package storage

import (
	"context"
	"time"
)

// ConnectionLocationStore tracks which running CSMS instance currently
// owns a charge point's live WebSocket connection, so a horizontally
// scaled deployment can route an outbound command to the instance that
// actually holds the socket instead of only the one that happens to
// receive the HTTP request for it.
type ConnectionLocationStore interface {
	// SetConnection records that instanceID currently owns chargePointID's
	// connection. ttl bounds how long the record survives an instance
	// crashing without a clean disconnect.
	SetConnection(ctx context.Context, chargePointID string, instanceID string, ttl time.Duration) error

	// GetConnection returns the instance id currently owning
	// chargePointID's connection. Returns redis.Nil if no record exists.
	GetConnection(ctx context.Context, chargePointID string) (string, error)

	// DeleteConnection retracts chargePointID's ownership record, e.g. on
	// clean disconnect.
	DeleteConnection(ctx context.Context, chargePointID string) error

	// Close releases the underlying storage backend's resources.
	Close() error
}

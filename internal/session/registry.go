// Package session implements the session registry and version negotiator
// described in spec §4.2: a thread-safe charge_point_id -> Connection map
// with single-session-per-CP eviction, plus highest-mutual-version
// negotiation for the WebSocket handshake.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

// ErrNotConnected is returned by SendTo when the charge point has no live
// Connection.
var ErrNotConnected = errors.New("session: not connected")

// DefaultSendBuffer sizes each Connection's outbound channel. The spec
// treats the channel as semantically unbounded (§5); a large buffer lets
// the writer drain promptly without the registry itself blocking.
const DefaultSendBuffer = 256

// RegisterOutcome reports the result of Register.
type RegisterOutcome struct {
	ConnectionID uint64
	Evicted      bool
}

// ConnectionLocationStore publishes which CSMS instance currently owns a
// charge point's live connection, so a horizontally scaled deployment can
// route a command to the right instance instead of only the one that
// happens to receive it. Satisfied by storage.RedisConnectionLocationStore;
// nil in a single-instance deployment, in which case Registry skips it
// entirely.
type ConnectionLocationStore interface {
	SetConnection(ctx context.Context, chargePointID string, instanceID string, ttl time.Duration) error
	DeleteConnection(ctx context.Context, chargePointID string) error
}

// Registry is the session registry: the single owner of every live
// Connection, mapping charge_point_id to its Connection.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	nextID uint64
	log    zerolog.Logger

	locations  ConnectionLocationStore
	instanceID string
	locTTL     time.Duration
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byID: make(map[string]*Connection),
		log:  log.With().Str("component", "session_registry").Logger(),
	}
}

// SetLocationStore attaches the optional cross-instance location cache.
// Every Register/Unregister/CloseAll after this call publishes or retracts
// this instance's ownership of the affected charge point ids.
func (r *Registry) SetLocationStore(store ConnectionLocationStore, instanceID string, ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = store
	r.instanceID = instanceID
	r.locTTL = ttl
}

func (r *Registry) publishLocation(chargePointID string) {
	r.mu.RLock()
	store, instanceID, ttl := r.locations, r.instanceID, r.locTTL
	r.mu.RUnlock()
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.SetConnection(ctx, chargePointID, instanceID, ttl); err != nil {
		r.log.Warn().Str("charge_point_id", chargePointID).Err(err).Msg("failed to publish connection location")
	}
}

func (r *Registry) retractLocation(chargePointID string) {
	r.mu.RLock()
	store := r.locations
	r.mu.RUnlock()
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.DeleteConnection(ctx, chargePointID); err != nil {
		r.log.Warn().Str("charge_point_id", chargePointID).Err(err).Msg("failed to retract connection location")
	}
}

// Register inserts a new Connection for chargePointID. If a prior
// Connection exists for the same id it is evicted first: removed from the
// map and its send channel closed, so the old writer task observes EOF —
// before the new Connection becomes visible to readers. This ordering is
// the atomic eviction sequence required by spec §4.2/§9.
func (r *Registry) Register(chargePointID string, version ocppversion.Version) (*Connection, RegisterOutcome) {
	r.mu.Lock()

	var outcome RegisterOutcome
	if old, exists := r.byID[chargePointID]; exists {
		delete(r.byID, chargePointID)
		old.close()
		outcome.Evicted = true
		r.log.Info().Str("charge_point_id", chargePointID).Msg("evicted prior session")
	}

	r.nextID++
	conn := newConnection(r.nextID, chargePointID, version, DefaultSendBuffer)
	r.byID[chargePointID] = conn
	outcome.ConnectionID = conn.ConnectionID

	r.mu.Unlock()

	// Published outside the lock: this is a best-effort network call and
	// must not hold up every other Register/Unregister in the meantime.
	r.publishLocation(chargePointID)

	return conn, outcome
}

// Unregister removes chargePointID's Connection if it is still the one
// passed in (so a stale unregister from an already-evicted session is a
// no-op rather than removing a newer connection). Idempotent.
func (r *Registry) Unregister(chargePointID string, conn *Connection) {
	r.mu.Lock()
	removed := false
	if current, ok := r.byID[chargePointID]; ok && current == conn {
		delete(r.byID, chargePointID)
		removed = true
	}
	r.mu.Unlock()
	conn.close()

	if removed {
		r.retractLocation(chargePointID)
	}
}

// SendTo hands text to the Connection's send channel in FIFO order, or
// fails ErrNotConnected if chargePointID has no live Connection.
func (r *Registry) SendTo(chargePointID, text string) (err error) {
	r.mu.RLock()
	conn, ok := r.byID[chargePointID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	defer func() {
		// Sending on a channel closed concurrently by eviction panics;
		// treat that race the same as "not connected".
		if recover() != nil {
			err = ErrNotConnected
		}
	}()
	select {
	case conn.Send <- text:
		return nil
	default:
		return errors.New("session: send channel full")
	}
}

// Touch updates chargePointID's last_activity to now. No-op if absent.
func (r *Registry) Touch(chargePointID string) {
	r.mu.RLock()
	conn, ok := r.byID[chargePointID]
	r.mu.RUnlock()
	if ok {
		conn.Touch()
	}
}

// IsConnected reports whether chargePointID currently has a live
// Connection. Lock-free with respect to mutation beyond the map read.
func (r *Registry) IsConnected(chargePointID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[chargePointID]
	return ok
}

// ConnectedIDs returns a snapshot of all currently connected charge point
// ids.
func (r *Registry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// GetVersion returns the negotiated version for chargePointID, if
// connected.
func (r *Registry) GetVersion(chargePointID string) (ocppversion.Version, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[chargePointID]
	if !ok {
		return ocppversion.Unknown, false
	}
	return conn.Version, true
}

// Get returns the live Connection for chargePointID, if any.
func (r *Registry) Get(chargePointID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[chargePointID]
	return conn, ok
}

// Broadcast hands text to every live connection's send channel,
// best-effort: a full channel is skipped rather than blocking the caller.
func (r *Registry) Broadcast(text string) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.Send <- text:
		default:
		}
	}
}

// CloseAll closes every live connection's send channel, used on graceful
// shutdown (spec §4.6) so every reader task exits on EOF.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.byID))
	for id, c := range r.byID {
		c.close()
		ids = append(ids, id)
		delete(r.byID, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.retractLocation(id)
	}
}

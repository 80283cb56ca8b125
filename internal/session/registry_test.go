package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type fakeLocationStore struct {
	mu  sync.Mutex
	set map[string]string
}

func newFakeLocationStore() *fakeLocationStore {
	return &fakeLocationStore{set: map[string]string{}}
}

func (f *fakeLocationStore) SetConnection(ctx context.Context, chargePointID, instanceID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[chargePointID] = instanceID
	return nil
}

func (f *fakeLocationStore) DeleteConnection(ctx context.Context, chargePointID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set, chargePointID)
	return nil
}

func (f *fakeLocationStore) has(chargePointID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.set[chargePointID]
	return ok
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegisterConcurrentDistinctIDs(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.Register("x", ocppversion.V16) }()
	go func() { defer wg.Done(); r.Register("y", ocppversion.V16) }()
	wg.Wait()

	ids := r.ConnectedIDs()
	assert.ElementsMatch(t, []string{"x", "y"}, ids)
}

func TestReRegisterEvictsPriorSession(t *testing.T) {
	r := newTestRegistry()
	old, outcome := r.Register("cp1", ocppversion.V16)
	assert.False(t, outcome.Evicted)

	_, outcome2 := r.Register("cp1", ocppversion.V201)
	assert.True(t, outcome2.Evicted)

	// old connection's send channel must be closed (writer observes EOF)
	_, open := <-old.Send
	assert.False(t, open)

	v, ok := r.GetVersion("cp1")
	require.True(t, ok)
	assert.Equal(t, ocppversion.V201, v)
}

func TestSendToAbsentFailsNotConnected(t *testing.T) {
	r := newTestRegistry()
	err := r.SendTo("ghost", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendToPresentFIFO(t *testing.T) {
	r := newTestRegistry()
	conn, _ := r.Register("cp1", ocppversion.V16)
	require.NoError(t, r.SendTo("cp1", "a"))
	require.NoError(t, r.SendTo("cp1", "b"))

	assert.Equal(t, "a", <-conn.Send)
	assert.Equal(t, "b", <-conn.Send)
}

func TestCountAndIsConnected(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.IsConnected("cp1"))
	r.Register("cp1", ocppversion.V16)
	assert.True(t, r.IsConnected("cp1"))
	assert.Equal(t, 1, r.Count())
}

func TestLocationStorePublishedOnRegisterAndRetractedOnUnregister(t *testing.T) {
	r := newTestRegistry()
	store := newFakeLocationStore()
	r.SetLocationStore(store, "csms-0", 5*time.Minute)

	conn, _ := r.Register("cp1", ocppversion.V16)
	assert.True(t, store.has("cp1"))

	r.Unregister("cp1", conn)
	assert.False(t, store.has("cp1"))
}

func TestLocationStoreRetractedOnCloseAll(t *testing.T) {
	r := newTestRegistry()
	store := newFakeLocationStore()
	r.SetLocationStore(store, "csms-0", 5*time.Minute)

	r.Register("cp1", ocppversion.V16)
	r.Register("cp2", ocppversion.V16)
	r.CloseAll()

	assert.False(t, store.has("cp1"))
	assert.False(t, store.has("cp2"))
}

package background

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/chargingprofile"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
	"github.com/ocpp-csms/central-system/internal/domain/reservation"
	"github.com/ocpp-csms/central-system/internal/domain/tariff"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
)

type fakeCPRepo struct {
	mu sync.Mutex
	m  map[string]*chargepoint.ChargePoint
}

func (r *fakeCPRepo) Get(ctx context.Context, id string) (*chargepoint.ChargePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{}
	}
	return cp, nil
}
func (r *fakeCPRepo) Upsert(ctx context.Context, cp *chargepoint.ChargePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[string]*chargepoint.ChargePoint{}
	}
	r.m[cp.ID] = cp
	return nil
}
func (r *fakeCPRepo) List(ctx context.Context) ([]*chargepoint.ChargePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*chargepoint.ChargePoint, 0, len(r.m))
	for _, cp := range r.m {
		out = append(out, cp)
	}
	return out, nil
}
func (r *fakeCPRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeReservationRepo struct {
	mu sync.Mutex
	m  map[int64]*reservation.Reservation
}

func (r *fakeReservationRepo) Get(ctx context.Context, id int64) (*reservation.Reservation, error) {
	return nil, &ports.NotFoundError{}
}
func (r *fakeReservationRepo) Create(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[int64]*reservation.Reservation{}
	}
	r.m[res.ID] = res
	return nil
}
func (r *fakeReservationRepo) Update(ctx context.Context, res *reservation.Reservation) error {
	return r.Create(ctx, res)
}
func (r *fakeReservationRepo) FindAccepted(ctx context.Context, chargePointID string, connectorID int) (*reservation.Reservation, error) {
	return nil, &ports.NotFoundError{}
}
func (r *fakeReservationRepo) ListExpiring(ctx context.Context, before time.Time) ([]*reservation.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reservation.Reservation
	for _, res := range r.m {
		if res.Status == reservation.StatusAccepted && res.ExpiryDate.Before(before) {
			out = append(out, res)
		}
	}
	return out, nil
}

type fakeRepos struct {
	cp   *fakeCPRepo
	res  *fakeReservationRepo
}

func (f *fakeRepos) ChargePoints() ports.ChargePointRepository         { return f.cp }
func (f *fakeRepos) Transactions() ports.TransactionRepository         { return fakeTxRepo{} }
func (f *fakeRepos) IdTags() ports.IdTagRepository                     { return fakeIdTagRepo{} }
func (f *fakeRepos) Reservations() ports.ReservationRepository         { return f.res }
func (f *fakeRepos) ChargingProfiles() ports.ChargingProfileRepository { return fakeCPPRepo{} }
func (f *fakeRepos) Tariffs() ports.TariffRepository                   { return fakeTariffRepo{} }
func (f *fakeRepos) Billing() ports.BillingRepository                  { return fakeBillingRepo{} }

type fakeTxRepo struct{}

func (fakeTxRepo) Get(ctx context.Context, id int64) (*transactiondom.Transaction, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeTxRepo) GetActive(ctx context.Context, chargePointID string, connectorID int) (*transactiondom.Transaction, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeTxRepo) GetByExternalID(ctx context.Context, chargePointID, externalID string) (*transactiondom.Transaction, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeTxRepo) Create(ctx context.Context, tx *transactiondom.Transaction) error { return nil }
func (fakeTxRepo) Update(ctx context.Context, tx *transactiondom.Transaction) error { return nil }
func (fakeTxRepo) NextID(ctx context.Context) (int64, error)                        { return 1, nil }

type fakeIdTagRepo struct{}

func (fakeIdTagRepo) Get(ctx context.Context, tag string) (*idtag.IdTag, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeIdTagRepo) Upsert(ctx context.Context, t *idtag.IdTag) error { return nil }

type fakeCPPRepo struct{}

func (fakeCPPRepo) Get(ctx context.Context, id int64) (*chargingprofile.ChargingProfile, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeCPPRepo) Upsert(ctx context.Context, p *chargingprofile.ChargingProfile) error { return nil }
func (fakeCPPRepo) ListActive(ctx context.Context, chargePointID string, evseID int) ([]*chargingprofile.ChargingProfile, error) {
	return nil, nil
}
func (fakeCPPRepo) Deactivate(ctx context.Context, id int64) error { return nil }

type fakeTariffRepo struct{}

func (fakeTariffRepo) Get(ctx context.Context, id int64) (*tariff.Tariff, error) { return nil, &ports.NotFoundError{} }
func (fakeTariffRepo) GetDefault(ctx context.Context) (*tariff.Tariff, error)    { return nil, &ports.NotFoundError{} }
func (fakeTariffRepo) List(ctx context.Context) ([]*tariff.Tariff, error)        { return nil, nil }
func (fakeTariffRepo) Upsert(ctx context.Context, t *tariff.Tariff) error        { return nil }
func (fakeTariffRepo) Delete(ctx context.Context, id int64) error                { return nil }

type fakeBillingRepo struct{}

func (fakeBillingRepo) Get(ctx context.Context, transactionID int64) (*tariff.TransactionBilling, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeBillingRepo) Upsert(ctx context.Context, b *tariff.TransactionBilling) error { return nil }
func (fakeBillingRepo) UpdateStatus(ctx context.Context, transactionID int64, status tariff.BillingStatus) error {
	return nil
}

type fakeBus struct {
	mu       sync.Mutex
	received []events.Event
}

func (b *fakeBus) Publish(evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.received = append(b.received, evt)
}
func (b *fakeBus) Subscribe() (<-chan events.Event, func()) { return nil, func() {} }

func TestCheckHeartbeatsMarksStaleOffline(t *testing.T) {
	cp := chargepoint.New("CP1")
	cp.MarkOnline()
	cp.LastHeartbeat = time.Now().Add(-10 * time.Minute)

	repos := &fakeRepos{cp: &fakeCPRepo{m: map[string]*chargepoint.ChargePoint{"CP1": cp}}, res: &fakeReservationRepo{}}
	bus := &fakeBus{}
	r := NewRunner(DefaultConfig(), repos, bus, zerolog.Nop())

	r.checkHeartbeats(context.Background())

	updated, err := repos.cp.Get(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Equal(t, chargepoint.StatusOffline, updated.Snapshot().Status)
	assert.Len(t, bus.received, 1)
}

func TestCheckHeartbeatsLeavesFreshOnline(t *testing.T) {
	cp := chargepoint.New("CP2")
	cp.MarkOnline()

	repos := &fakeRepos{cp: &fakeCPRepo{m: map[string]*chargepoint.ChargePoint{"CP2": cp}}, res: &fakeReservationRepo{}}
	bus := &fakeBus{}
	r := NewRunner(DefaultConfig(), repos, bus, zerolog.Nop())

	r.checkHeartbeats(context.Background())

	updated, _ := repos.cp.Get(context.Background(), "CP2")
	assert.Equal(t, chargepoint.StatusOnline, updated.Snapshot().Status)
	assert.Empty(t, bus.received)
}

func TestExpireReservationsTransitionsOverdue(t *testing.T) {
	res := &reservation.Reservation{ID: 1, ChargePointID: "CP1", ConnectorID: 1, ExpiryDate: time.Now().Add(-time.Minute), Status: reservation.StatusAccepted}
	resRepo := &fakeReservationRepo{m: map[int64]*reservation.Reservation{1: res}}
	repos := &fakeRepos{cp: &fakeCPRepo{}, res: resRepo}
	bus := &fakeBus{}
	r := NewRunner(DefaultConfig(), repos, bus, zerolog.Nop())

	r.expireReservations(context.Background())

	assert.Equal(t, reservation.StatusExpired, resRepo.m[1].Status)
	assert.Len(t, bus.received, 1)
}

func TestRunnerStartStopsOnContextCancel(t *testing.T) {
	repos := &fakeRepos{cp: &fakeCPRepo{}, res: &fakeReservationRepo{}}
	bus := &fakeBus{}
	cfg := DefaultConfig()
	cfg.HeartbeatCheckInterval = 10 * time.Millisecond
	cfg.ReservationCheckInterval = 10 * time.Millisecond
	r := NewRunner(cfg, repos, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
}

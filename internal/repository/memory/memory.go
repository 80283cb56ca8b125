// Package memory provides in-process, map-backed implementations of every
// ports.*Repository interface. Grounded on
// original_source/src/infrastructure/storage/memory.rs (InMemoryStorage:
// one map per aggregate, an atomic counter for transaction ids, a seeded
// default tariff and a handful of always-valid test id tags), translated
// from Rust's DashMap-per-field shape into the teacher's
// sync.RWMutex-guarded-map idiom (internal/session.Registry uses the same
// pattern for its connection table).
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/chargingprofile"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
	"github.com/ocpp-csms/central-system/internal/domain/reservation"
	"github.com/ocpp-csms/central-system/internal/domain/tariff"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
)

// Provider bundles all in-memory repositories behind ports.RepositoryProvider.
type Provider struct {
	chargePoints     *ChargePointRepository
	transactions     *TransactionRepository
	idTags           *IdTagRepository
	reservations     *ReservationRepository
	chargingProfiles *ChargingProfileRepository
	tariffs          *TariffRepository
	billing          *BillingRepository
}

// NewProvider builds a Provider seeded the way the reference memory store
// is: a default per-kWh tariff and a few always-accepted id tags for
// local testing against a fresh CSMS.
func NewProvider() *Provider {
	p := &Provider{
		chargePoints:     newChargePointRepository(),
		transactions:     newTransactionRepository(),
		idTags:           newIdTagRepository(),
		reservations:     newReservationRepository(),
		chargingProfiles: newChargingProfileRepository(),
		tariffs:          newTariffRepository(),
		billing:          newBillingRepository(),
	}
	p.seed()
	return p
}

func (p *Provider) seed() {
	for _, tag := range []string{"TEST001", "TEST002", "ADMIN"} {
		p.idTags.Upsert(context.Background(), &idtag.IdTag{
			Tag: tag, Status: idtag.StatusAccepted, IsActive: true,
		})
	}
	p.tariffs.Upsert(context.Background(), &tariff.Tariff{
		ID: 1, Type: tariff.TypePerKwh, PricePerKwh: 250, Currency: "USD",
		IsDefault: true, IsActive: true,
	})
}

func (p *Provider) ChargePoints() ports.ChargePointRepository         { return p.chargePoints }
func (p *Provider) Transactions() ports.TransactionRepository         { return p.transactions }
func (p *Provider) IdTags() ports.IdTagRepository                     { return p.idTags }
func (p *Provider) Reservations() ports.ReservationRepository         { return p.reservations }
func (p *Provider) ChargingProfiles() ports.ChargingProfileRepository { return p.chargingProfiles }
func (p *Provider) Tariffs() ports.TariffRepository                   { return p.tariffs }
func (p *Provider) Billing() ports.BillingRepository                  { return p.billing }

// --- ChargePointRepository ---

type ChargePointRepository struct {
	mu sync.RWMutex
	m  map[string]*chargepoint.ChargePoint
}

func newChargePointRepository() *ChargePointRepository {
	return &ChargePointRepository{m: make(map[string]*chargepoint.ChargePoint)}
}

func (r *ChargePointRepository) Get(ctx context.Context, id string) (*chargepoint.ChargePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "ChargePoint", Field: "id", Value: id}
	}
	return cp, nil
}

func (r *ChargePointRepository) Upsert(ctx context.Context, cp *chargepoint.ChargePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[cp.ID] = cp
	return nil
}

func (r *ChargePointRepository) List(ctx context.Context) ([]*chargepoint.ChargePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chargepoint.ChargePoint, 0, len(r.m))
	for _, cp := range r.m {
		out = append(out, cp)
	}
	return out, nil
}

func (r *ChargePointRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return &ports.NotFoundError{Entity: "ChargePoint", Field: "id", Value: id}
	}
	delete(r.m, id)
	return nil
}

// --- TransactionRepository ---

type TransactionRepository struct {
	mu        sync.RWMutex
	m         map[int64]*transactiondom.Transaction
	byExtID   map[string]int64 // "chargePointID/externalID" -> id
	nextID    int64
}

func newTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		m:       make(map[int64]*transactiondom.Transaction),
		byExtID: make(map[string]int64),
	}
}

func (r *TransactionRepository) Get(ctx context.Context, id int64) (*transactiondom.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Transaction", Field: "id", Value: ""}
	}
	return tx, nil
}

func (r *TransactionRepository) GetActive(ctx context.Context, chargePointID string, connectorID int) (*transactiondom.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.m {
		snap := tx.Snapshot()
		if snap.ChargePointID == chargePointID && snap.ConnectorID == connectorID && tx.IsActive() {
			return tx, nil
		}
	}
	return nil, &ports.NotFoundError{Entity: "Transaction", Field: "active", Value: chargePointID}
}

func (r *TransactionRepository) GetByExternalID(ctx context.Context, chargePointID, externalID string) (*transactiondom.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExtID[extKey(chargePointID, externalID)]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Transaction", Field: "externalId", Value: externalID}
	}
	tx, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Transaction", Field: "externalId", Value: externalID}
	}
	return tx, nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx *transactiondom.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := tx.Snapshot()
	r.m[snap.ID] = tx
	if snap.ExternalTransactionID != "" {
		r.byExtID[extKey(snap.ChargePointID, snap.ExternalTransactionID)] = snap.ID
	}
	return nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *transactiondom.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := tx.Snapshot()
	if _, ok := r.m[snap.ID]; !ok {
		return &ports.NotFoundError{Entity: "Transaction", Field: "id", Value: ""}
	}
	r.m[snap.ID] = tx
	if snap.ExternalTransactionID != "" {
		r.byExtID[extKey(snap.ChargePointID, snap.ExternalTransactionID)] = snap.ID
	}
	return nil
}

func (r *TransactionRepository) NextID(ctx context.Context) (int64, error) {
	return atomic.AddInt64(&r.nextID, 1), nil
}

func extKey(chargePointID, externalID string) string {
	return chargePointID + "/" + externalID
}

// --- IdTagRepository ---

type IdTagRepository struct {
	mu sync.RWMutex
	m  map[string]*idtag.IdTag
}

func newIdTagRepository() *IdTagRepository {
	return &IdTagRepository{m: make(map[string]*idtag.IdTag)}
}

func (r *IdTagRepository) Get(ctx context.Context, tag string) (*idtag.IdTag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.m[tag]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "IdTag", Field: "tag", Value: tag}
	}
	return t, nil
}

func (r *IdTagRepository) Upsert(ctx context.Context, t *idtag.IdTag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[t.Tag] = t
	return nil
}

// --- ReservationRepository ---

type ReservationRepository struct {
	mu sync.RWMutex
	m  map[int64]*reservation.Reservation
}

func newReservationRepository() *ReservationRepository {
	return &ReservationRepository{m: make(map[int64]*reservation.Reservation)}
}

func (r *ReservationRepository) Get(ctx context.Context, id int64) (*reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Reservation", Field: "id", Value: ""}
	}
	return res, nil
}

func (r *ReservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[res.ID] = res
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[res.ID]; !ok {
		return &ports.NotFoundError{Entity: "Reservation", Field: "id", Value: ""}
	}
	r.m[res.ID] = res
	return nil
}

func (r *ReservationRepository) FindAccepted(ctx context.Context, chargePointID string, connectorID int) (*reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.m {
		if res.Status != reservation.StatusAccepted || res.ChargePointID != chargePointID {
			continue
		}
		if res.ConnectorID == connectorID || res.ConnectorID == 0 {
			return res, nil
		}
	}
	return nil, &ports.NotFoundError{Entity: "Reservation", Field: "accepted", Value: chargePointID}
}

func (r *ReservationRepository) ListExpiring(ctx context.Context, before time.Time) ([]*reservation.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*reservation.Reservation
	for _, res := range r.m {
		if res.Status == reservation.StatusAccepted && res.ExpiryDate.Before(before) {
			out = append(out, res)
		}
	}
	return out, nil
}

// --- ChargingProfileRepository ---

type ChargingProfileRepository struct {
	mu sync.RWMutex
	m  map[int64]*chargingprofile.ChargingProfile
}

func newChargingProfileRepository() *ChargingProfileRepository {
	return &ChargingProfileRepository{m: make(map[int64]*chargingprofile.ChargingProfile)}
}

func (r *ChargingProfileRepository) Get(ctx context.Context, id int64) (*chargingprofile.ChargingProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "ChargingProfile", Field: "id", Value: ""}
	}
	return p, nil
}

func (r *ChargingProfileRepository) Upsert(ctx context.Context, p *chargingprofile.ChargingProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.ID] = p
	return nil
}

func (r *ChargingProfileRepository) ListActive(ctx context.Context, chargePointID string, evseID int) ([]*chargingprofile.ChargingProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*chargingprofile.ChargingProfile
	for _, p := range r.m {
		if p.IsActive && p.ChargePointID == chargePointID && (p.EVSEID == evseID || p.EVSEID == 0) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *ChargingProfileRepository) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[id]
	if !ok {
		return &ports.NotFoundError{Entity: "ChargingProfile", Field: "id", Value: ""}
	}
	p.IsActive = false
	return nil
}

// --- TariffRepository ---

type TariffRepository struct {
	mu      sync.RWMutex
	m       map[int64]*tariff.Tariff
	nextID  int64
}

func newTariffRepository() *TariffRepository {
	return &TariffRepository{m: make(map[int64]*tariff.Tariff)}
}

func (r *TariffRepository) Get(ctx context.Context, id int64) (*tariff.Tariff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Tariff", Field: "id", Value: ""}
	}
	return t, nil
}

func (r *TariffRepository) GetDefault(ctx context.Context) (*tariff.Tariff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.m {
		if t.IsDefault && t.IsActive {
			return t, nil
		}
	}
	return nil, &ports.NotFoundError{Entity: "Tariff", Field: "default", Value: ""}
}

func (r *TariffRepository) List(ctx context.Context) ([]*tariff.Tariff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tariff.Tariff, 0, len(r.m))
	for _, t := range r.m {
		out = append(out, t)
	}
	return out, nil
}

func (r *TariffRepository) Upsert(ctx context.Context, t *tariff.Tariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	} else if t.ID > r.nextID {
		r.nextID = t.ID
	}
	r.m[t.ID] = t
	return nil
}

func (r *TariffRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return &ports.NotFoundError{Entity: "Tariff", Field: "id", Value: ""}
	}
	delete(r.m, id)
	return nil
}

// --- BillingRepository ---

type BillingRepository struct {
	mu sync.RWMutex
	m  map[int64]*tariff.TransactionBilling
}

func newBillingRepository() *BillingRepository {
	return &BillingRepository{m: make(map[int64]*tariff.TransactionBilling)}
}

func (r *BillingRepository) Get(ctx context.Context, transactionID int64) (*tariff.TransactionBilling, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.m[transactionID]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "TransactionBilling", Field: "transactionId", Value: ""}
	}
	return b, nil
}

func (r *BillingRepository) Upsert(ctx context.Context, b *tariff.TransactionBilling) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[b.TransactionID] = b
	return nil
}

func (r *BillingRepository) UpdateStatus(ctx context.Context, transactionID int64, status tariff.BillingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[transactionID]
	if !ok {
		return &ports.NotFoundError{Entity: "TransactionBilling", Field: "transactionId", Value: ""}
	}
	b.Status = status
	return nil
}

package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocpp-csms/central-system/internal/command"
	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/chargingprofile"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
	"github.com/ocpp-csms/central-system/internal/domain/reservation"
	"github.com/ocpp-csms/central-system/internal/domain/tariff"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
	"github.com/ocpp-csms/central-system/internal/ocppframe"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

// --- minimal in-memory fakes, local to this test file ---

type fakeChargePointRepo struct {
	mu sync.Mutex
	m  map[string]*chargepoint.ChargePoint
}

func (r *fakeChargePointRepo) Get(ctx context.Context, id string) (*chargepoint.ChargePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp, ok := r.m[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "ChargePoint", Field: "id", Value: id}
	}
	return cp, nil
}
func (r *fakeChargePointRepo) Upsert(ctx context.Context, cp *chargepoint.ChargePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[string]*chargepoint.ChargePoint{}
	}
	r.m[cp.ID] = cp
	return nil
}
func (r *fakeChargePointRepo) List(ctx context.Context) ([]*chargepoint.ChargePoint, error) {
	return nil, nil
}
func (r *fakeChargePointRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeTransactionRepo struct {
	mu       sync.Mutex
	byID     map[int64]*transactiondom.Transaction
	byExtID  map[string]*transactiondom.Transaction
	nextID   int64
}

func (r *fakeTransactionRepo) Get(ctx context.Context, id int64) (*transactiondom.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Transaction"}
	}
	return tx, nil
}
func (r *fakeTransactionRepo) GetActive(ctx context.Context, chargePointID string, connectorID int) (*transactiondom.Transaction, error) {
	return nil, &ports.NotFoundError{Entity: "Transaction"}
}
func (r *fakeTransactionRepo) GetByExternalID(ctx context.Context, chargePointID, externalID string) (*transactiondom.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byExtID[externalID]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "Transaction"}
	}
	return tx, nil
}
func (r *fakeTransactionRepo) Create(ctx context.Context, tx *transactiondom.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byID == nil {
		r.byID = map[int64]*transactiondom.Transaction{}
		r.byExtID = map[string]*transactiondom.Transaction{}
	}
	r.byID[tx.ID] = tx
	if tx.ExternalTransactionID != "" {
		r.byExtID[tx.ExternalTransactionID] = tx
	}
	return nil
}
func (r *fakeTransactionRepo) Update(ctx context.Context, tx *transactiondom.Transaction) error {
	return r.Create(ctx, tx)
}
func (r *fakeTransactionRepo) NextID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID, nil
}

type fakeIdTagRepo struct{ m map[string]*idtag.IdTag }

func (r *fakeIdTagRepo) Get(ctx context.Context, tag string) (*idtag.IdTag, error) {
	t, ok := r.m[tag]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "IdTag"}
	}
	return t, nil
}
func (r *fakeIdTagRepo) Upsert(ctx context.Context, t *idtag.IdTag) error {
	if r.m == nil {
		r.m = map[string]*idtag.IdTag{}
	}
	r.m[t.Tag] = t
	return nil
}

type fakeRepos struct {
	cp      *fakeChargePointRepo
	tx      *fakeTransactionRepo
	id      *fakeIdTagRepo
	tariffs *fakeTariffRepo
	billing *fakeBillingRepo
}

func (f *fakeRepos) ChargePoints() ports.ChargePointRepository     { return f.cp }
func (f *fakeRepos) Transactions() ports.TransactionRepository     { return f.tx }
func (f *fakeRepos) IdTags() ports.IdTagRepository                 { return f.id }
func (f *fakeRepos) Reservations() ports.ReservationRepository     { return fakeReservationRepo{} }
func (f *fakeRepos) ChargingProfiles() ports.ChargingProfileRepository { return fakeChargingProfileRepo{} }
func (f *fakeRepos) Tariffs() ports.TariffRepository {
	if f.tariffs == nil {
		f.tariffs = &fakeTariffRepo{}
	}
	return f.tariffs
}
func (f *fakeRepos) Billing() ports.BillingRepository {
	if f.billing == nil {
		f.billing = &fakeBillingRepo{}
	}
	return f.billing
}

type fakeReservationRepo struct{}

func (fakeReservationRepo) Get(ctx context.Context, id int64) (*reservation.Reservation, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeReservationRepo) Create(ctx context.Context, r *reservation.Reservation) error { return nil }
func (fakeReservationRepo) Update(ctx context.Context, r *reservation.Reservation) error { return nil }
func (fakeReservationRepo) FindAccepted(ctx context.Context, chargePointID string, connectorID int) (*reservation.Reservation, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeReservationRepo) ListExpiring(ctx context.Context, before time.Time) ([]*reservation.Reservation, error) {
	return nil, nil
}

type fakeChargingProfileRepo struct{}

func (fakeChargingProfileRepo) Get(ctx context.Context, id int64) (*chargingprofile.ChargingProfile, error) {
	return nil, &ports.NotFoundError{}
}
func (fakeChargingProfileRepo) Upsert(ctx context.Context, p *chargingprofile.ChargingProfile) error {
	return nil
}
func (fakeChargingProfileRepo) ListActive(ctx context.Context, chargePointID string, evseID int) ([]*chargingprofile.ChargingProfile, error) {
	return nil, nil
}
func (fakeChargingProfileRepo) Deactivate(ctx context.Context, id int64) error { return nil }

type fakeTariffRepo struct {
	mu  sync.Mutex
	def *tariff.Tariff
}

func (r *fakeTariffRepo) Get(ctx context.Context, id int64) (*tariff.Tariff, error) {
	return nil, &ports.NotFoundError{}
}
func (r *fakeTariffRepo) GetDefault(ctx context.Context) (*tariff.Tariff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def == nil {
		return nil, &ports.NotFoundError{Entity: "Tariff"}
	}
	return r.def, nil
}
func (r *fakeTariffRepo) List(ctx context.Context) ([]*tariff.Tariff, error) { return nil, nil }
func (r *fakeTariffRepo) Upsert(ctx context.Context, t *tariff.Tariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IsDefault {
		r.def = t
	}
	return nil
}
func (r *fakeTariffRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeBillingRepo struct {
	mu sync.Mutex
	m  map[int64]*tariff.TransactionBilling
}

func (r *fakeBillingRepo) Get(ctx context.Context, transactionID int64) (*tariff.TransactionBilling, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[transactionID]
	if !ok {
		return nil, &ports.NotFoundError{Entity: "TransactionBilling"}
	}
	return b, nil
}
func (r *fakeBillingRepo) Upsert(ctx context.Context, b *tariff.TransactionBilling) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[int64]*tariff.TransactionBilling{}
	}
	r.m[b.TransactionID] = b
	return nil
}
func (r *fakeBillingRepo) UpdateStatus(ctx context.Context, transactionID int64, status tariff.BillingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[transactionID]; ok {
		b.Status = status
	}
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

type fakeResultHandler struct{}

func (fakeResultHandler) HandleResult(chargePointID, uniqueID string, payload json.RawMessage) {}
func (fakeResultHandler) HandleError(chargePointID, uniqueID, code, description string)        {}

// fakeLimitEnforcer is the default no-op LimitEnforcer: nothing is ever
// staked, and a breach would be a test bug.
type fakeLimitEnforcer struct{}

func (fakeLimitEnforcer) TakeLimit(chargePointID string, connectorID int) *transactiondom.Limit {
	return nil
}
func (fakeLimitEnforcer) RemoteStop(ctx context.Context, chargePointID string, transactionID int64) (command.Result, error) {
	return command.Result{}, nil
}

// stakingLimitEnforcer is a stateful LimitEnforcer for tests that stake a
// pending charging limit and assert on the RemoteStop it triggers.
type stakingLimitEnforcer struct {
	mu      sync.Mutex
	staked  map[string]*transactiondom.Limit
	stopped chan int64
}

func newStakingLimitEnforcer() *stakingLimitEnforcer {
	return &stakingLimitEnforcer{staked: map[string]*transactiondom.Limit{}, stopped: make(chan int64, 8)}
}

func (f *stakingLimitEnforcer) stake(chargePointID string, connectorID int, limit *transactiondom.Limit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staked[limitKeyFor(chargePointID, connectorID)] = limit
}

func (f *stakingLimitEnforcer) TakeLimit(chargePointID string, connectorID int) *transactiondom.Limit {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := limitKeyFor(chargePointID, connectorID)
	l := f.staked[key]
	delete(f.staked, key)
	return l
}

func (f *stakingLimitEnforcer) RemoteStop(ctx context.Context, chargePointID string, transactionID int64) (command.Result, error) {
	f.stopped <- transactionID
	return command.Result{Status: "Accepted"}, nil
}

func limitKeyFor(chargePointID string, connectorID int) string {
	return fmt.Sprintf("%s/%d", chargePointID, connectorID)
}

func newTestRepos() *fakeRepos {
	return &fakeRepos{
		cp: &fakeChargePointRepo{},
		tx: &fakeTransactionRepo{},
		id: &fakeIdTagRepo{m: map[string]*idtag.IdTag{
			"TAG1": {Tag: "TAG1", Status: idtag.StatusAccepted, IsActive: true},
		}},
	}
}

func newTestAdapter() (*Adapter, *fakeRepos, *fakeBus) {
	return newTestAdapterWithLimits(fakeLimitEnforcer{})
}

func newTestAdapterWithLimits(limits LimitEnforcer) (*Adapter, *fakeRepos, *fakeBus) {
	repos := newTestRepos()
	bus := &fakeBus{}
	return NewAdapter(repos, bus, fakeResultHandler{}, limits, zerolog.Nop()), repos, bus
}

func TestBootNotificationV16Accepted(t *testing.T) {
	a, repos, bus := newTestAdapter()
	reply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"1","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"X1"}]`)

	f, err := ocppframe.Parse([]byte(reply))
	require.NoError(t, err)
	assert.Equal(t, ocppframe.CallResult, f.Kind)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, "Accepted", payload["status"])

	cp, err := repos.cp.Get(context.Background(), "CP1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", cp.Vendor)
	assert.Len(t, bus.received, 1)
}

func TestStartTransactionThenStopV16(t *testing.T) {
	a, _, _ := newTestAdapter()
	startReply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"2","StartTransaction",{"connectorId":1,"idTag":"TAG1","meterStart":1000,"timestamp":"2026-07-31T10:00:00Z"}]`)
	f, err := ocppframe.Parse([]byte(startReply))
	require.NoError(t, err)
	var startPayload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Payload, &startPayload))
	txID := int(startPayload["transactionId"].(float64))
	assert.Equal(t, 1, txID)

	stopReply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"3","StopTransaction",{"transactionId":1,"meterStop":5000,"timestamp":"2026-07-31T11:00:00Z","reason":"Local"}]`)
	f2, err := ocppframe.Parse([]byte(stopReply))
	require.NoError(t, err)
	assert.Equal(t, ocppframe.CallResult, f2.Kind)
}

func TestStartTransactionRejectsUnauthorizedTag(t *testing.T) {
	a, repos, _ := newTestAdapter()
	startReply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"2","StartTransaction",{"connectorId":1,"idTag":"UNKNOWN","meterStart":1000,"timestamp":"2026-07-31T10:00:00Z"}]`)
	f, err := ocppframe.Parse([]byte(startReply))
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.EqualValues(t, 0, payload["transactionId"])
	idTagInfo := payload["idTagInfo"].(map[string]interface{})
	assert.Equal(t, "Invalid", idTagInfo["status"])

	_, err = repos.tx.Get(context.Background(), 1)
	assert.Error(t, err, "no Transaction row should be created for a rejected tag")
}

func TestStopTransactionPublishesBilling(t *testing.T) {
	a, repos, bus := newTestAdapter()
	repos.Tariffs().Upsert(context.Background(), &tariff.Tariff{
		ID: 1, Type: tariff.TypePerKwh, PricePerKwh: 1000, Currency: "USD", IsDefault: true, IsActive: true,
	})

	startReply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"2","StartTransaction",{"connectorId":1,"idTag":"TAG1","meterStart":1000,"timestamp":"2026-07-31T10:00:00Z"}]`)
	f, err := ocppframe.Parse([]byte(startReply))
	require.NoError(t, err)
	var startPayload map[string]interface{}
	require.NoError(t, json.Unmarshal(f.Payload, &startPayload))
	txID := int64(startPayload["transactionId"].(float64))

	a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"3","StopTransaction",{"transactionId":1,"meterStop":2000,"timestamp":"2026-07-31T11:00:00Z","reason":"Local"}]`)

	billing, err := repos.Billing().Get(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, tariff.BillingCalculated, billing.Status)
	assert.Equal(t, int64(1000), billing.EnergyWh)
	assert.EqualValues(t, 1000, billing.TotalCost)

	var sawBilled bool
	for _, evt := range bus.received {
		if _, ok := evt.(*events.TransactionBilled); ok {
			sawBilled = true
		}
	}
	assert.True(t, sawBilled, "expected TransactionBilled to be published")
}

func TestStartTransactionConsumesStakedLimit(t *testing.T) {
	enforcer := newStakingLimitEnforcer()
	enforcer.stake("CP1", 1, &transactiondom.Limit{Type: transactiondom.LimitEnergy, Value: 2})
	a, repos, _ := newTestAdapterWithLimits(enforcer)

	a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"2","StartTransaction",{"connectorId":1,"idTag":"TAG1","meterStart":1000,"timestamp":"2026-07-31T10:00:00Z"}]`)

	tx, err := repos.tx.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, tx.Limit)
	assert.Equal(t, transactiondom.LimitEnergy, tx.Limit.Type)
}

func TestMeterValuesBreachTriggersAsyncRemoteStop(t *testing.T) {
	enforcer := newStakingLimitEnforcer()
	enforcer.stake("CP1", 1, &transactiondom.Limit{Type: transactiondom.LimitEnergy, Value: 2})
	a, _, _ := newTestAdapterWithLimits(enforcer)

	a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"2","StartTransaction",{"connectorId":1,"idTag":"TAG1","meterStart":1000,"timestamp":"2026-07-31T10:00:00Z"}]`)
	a.HandleMessage(context.Background(), "CP1", ocppversion.V16,
		`[2,"3","MeterValues",{"connectorId":1,"transactionId":1,"meterValue":[{"timestamp":"2026-07-31T10:05:00Z",
		  "sampledValue":[{"value":"3500","measurand":"Energy.Active.Import.Register"}]}]}]`)

	select {
	case txID := <-enforcer.stopped:
		assert.EqualValues(t, 1, txID)
	case <-time.After(time.Second):
		t.Fatal("expected a RemoteStop call after the energy limit was breached")
	}
}

func TestMalformedFrameIsDroppedNotClosed(t *testing.T) {
	a, _, _ := newTestAdapter()
	reply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16, `[]`)
	assert.Equal(t, "", reply)
}

func TestUnsupportedActionReturnsCallError(t *testing.T) {
	a, _, _ := newTestAdapter()
	reply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16, `[2,"9","NoSuchAction",{}]`)
	f, err := ocppframe.Parse([]byte(reply))
	require.NoError(t, err)
	assert.Equal(t, ocppframe.CallError, f.Kind)
	assert.Equal(t, "NotImplemented", f.ErrorCode)
}

func TestCallResultFrameRoutesToResultHandlerNotReplied(t *testing.T) {
	a, _, _ := newTestAdapter()
	reply := a.HandleMessage(context.Background(), "CP1", ocppversion.V16, `[3,"CS-1",{"status":"Accepted"}]`)
	assert.Equal(t, "", reply)
}

func TestNotifyReportAssemblesAcrossMultipleParts(t *testing.T) {
	a, repos, _ := newTestAdapter()

	reply1 := a.HandleMessage(context.Background(), "CP1", ocppversion.V201,
		`[2,"1","NotifyReport",{"requestId":7,"generatedAt":"2026-07-31T10:00:00Z","tbc":true,"seqNo":0,
		  "reportData":[{"component":{"name":"OCPPCommCtrlr"},"variable":{"name":"HeartbeatInterval"},
		  "variableAttribute":[{"value":"300"}]}]}]`)
	f1, err := ocppframe.Parse([]byte(reply1))
	require.NoError(t, err)
	assert.Equal(t, ocppframe.CallResult, f1.Kind)

	reply2 := a.HandleMessage(context.Background(), "CP1", ocppversion.V201,
		`[2,"2","NotifyReport",{"requestId":7,"generatedAt":"2026-07-31T10:00:01Z","tbc":false,"seqNo":1,
		  "reportData":[{"component":{"name":"EVSE","instance":"1"},"variable":{"name":"Available"},
		  "variableAttribute":[{"value":"true"}]}]}]`)
	f2, err := ocppframe.Parse([]byte(reply2))
	require.NoError(t, err)
	assert.Equal(t, ocppframe.CallResult, f2.Kind)

	cp, err := repos.cp.Get(context.Background(), "CP1")
	require.NoError(t, err)
	requestID, components, _ := cp.LatestReport()
	assert.Equal(t, 7, requestID)
	require.Len(t, components, 2)
	assert.Equal(t, "HeartbeatInterval", components[0].Variable)
	assert.Equal(t, "300", components[0].Value)
	assert.Equal(t, "Available", components[1].Variable)
	assert.Equal(t, "true", components[1].Value)
}

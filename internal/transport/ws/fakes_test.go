package ws

import (
	"context"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
)

// fakeCPRepo and fakeRepoProvider exist only to drive checkBasicAuth in
// isolation; every other port method is unreachable from these tests.

type fakeCPRepo struct {
	cp *chargepoint.ChargePoint
}

func (r *fakeCPRepo) Get(ctx context.Context, id string) (*chargepoint.ChargePoint, error) {
	if r.cp == nil {
		return nil, &ports.NotFoundError{Entity: "ChargePoint", Field: "id", Value: id}
	}
	return r.cp, nil
}
func (r *fakeCPRepo) Upsert(ctx context.Context, cp *chargepoint.ChargePoint) error { return nil }
func (r *fakeCPRepo) List(ctx context.Context) ([]*chargepoint.ChargePoint, error)  { return nil, nil }
func (r *fakeCPRepo) Delete(ctx context.Context, id string) error                   { return nil }

type fakeRepoProvider struct {
	cp *fakeCPRepo
}

func (p *fakeRepoProvider) ChargePoints() ports.ChargePointRepository         { return p.cp }
func (p *fakeRepoProvider) Transactions() ports.TransactionRepository         { return nil }
func (p *fakeRepoProvider) IdTags() ports.IdTagRepository                     { return nil }
func (p *fakeRepoProvider) Reservations() ports.ReservationRepository        { return nil }
func (p *fakeRepoProvider) ChargingProfiles() ports.ChargingProfileRepository { return nil }
func (p *fakeRepoProvider) Tariffs() ports.TariffRepository                   { return nil }
func (p *fakeRepoProvider) Billing() ports.BillingRepository                  { return nil }

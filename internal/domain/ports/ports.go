// Package ports declares the abstract capability sets the core consumes
// from its collaborators: persistence, the event bus, and password
// verification. Per spec §9, these model the source's trait/interface
// polymorphism as plain Go interfaces with no core-side implementation
// detail leaking through them.
package ports

import (
	"context"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/chargingprofile"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/domain/reservation"
	"github.com/ocpp-csms/central-system/internal/domain/tariff"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
)

// NotFoundError is the domain error kind for a missing entity.
type NotFoundError struct {
	Entity string
	Field  string
	Value  string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found: " + e.Field + "=" + e.Value
}

// ConflictError is the domain error kind for an invariant violation.
type ConflictError struct{ Detail string }

func (e *ConflictError) Error() string { return "conflict: " + e.Detail }

// ValidationError is the domain error kind for invalid input or a wrapped
// persistence failure (spec §7.6 treats DB failures as non-retryable
// Validation errors in the handler path).
type ValidationError struct{ Detail string }

func (e *ValidationError) Error() string { return "validation: " + e.Detail }

// ChargePointRepository persists ChargePoint and Connector state.
type ChargePointRepository interface {
	Get(ctx context.Context, id string) (*chargepoint.ChargePoint, error)
	Upsert(ctx context.Context, cp *chargepoint.ChargePoint) error
	List(ctx context.Context) ([]*chargepoint.ChargePoint, error)
	Delete(ctx context.Context, id string) error
}

// TransactionRepository persists Transaction state.
type TransactionRepository interface {
	Get(ctx context.Context, id int64) (*transactiondom.Transaction, error)
	GetActive(ctx context.Context, chargePointID string, connectorID int) (*transactiondom.Transaction, error)
	GetByExternalID(ctx context.Context, chargePointID, externalID string) (*transactiondom.Transaction, error)
	Create(ctx context.Context, tx *transactiondom.Transaction) error
	Update(ctx context.Context, tx *transactiondom.Transaction) error
	NextID(ctx context.Context) (int64, error)
}

// IdTagRepository persists IdTag authorization records.
type IdTagRepository interface {
	Get(ctx context.Context, tag string) (*idtag.IdTag, error)
	Upsert(ctx context.Context, t *idtag.IdTag) error
}

// ReservationRepository persists Reservation state.
type ReservationRepository interface {
	Get(ctx context.Context, id int64) (*reservation.Reservation, error)
	Create(ctx context.Context, r *reservation.Reservation) error
	Update(ctx context.Context, r *reservation.Reservation) error
	FindAccepted(ctx context.Context, chargePointID string, connectorID int) (*reservation.Reservation, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*reservation.Reservation, error)
}

// ChargingProfileRepository persists ChargingProfile records.
type ChargingProfileRepository interface {
	Get(ctx context.Context, id int64) (*chargingprofile.ChargingProfile, error)
	Upsert(ctx context.Context, p *chargingprofile.ChargingProfile) error
	ListActive(ctx context.Context, chargePointID string, evseID int) ([]*chargingprofile.ChargingProfile, error)
	Deactivate(ctx context.Context, id int64) error
}

// TariffRepository persists Tariff pricing policy.
type TariffRepository interface {
	Get(ctx context.Context, id int64) (*tariff.Tariff, error)
	GetDefault(ctx context.Context) (*tariff.Tariff, error)
	List(ctx context.Context) ([]*tariff.Tariff, error)
	Upsert(ctx context.Context, t *tariff.Tariff) error
	Delete(ctx context.Context, id int64) error
}

// BillingRepository persists TransactionBilling records.
type BillingRepository interface {
	Get(ctx context.Context, transactionID int64) (*tariff.TransactionBilling, error)
	Upsert(ctx context.Context, b *tariff.TransactionBilling) error
	UpdateStatus(ctx context.Context, transactionID int64, status tariff.BillingStatus) error
}

// RepositoryProvider bundles per-aggregate repositories behind a single
// seam between the core and persistence.
type RepositoryProvider interface {
	ChargePoints() ChargePointRepository
	Transactions() TransactionRepository
	IdTags() IdTagRepository
	Reservations() ReservationRepository
	ChargingProfiles() ChargingProfileRepository
	Tariffs() TariffRepository
	Billing() BillingRepository
}

// EventBus publishes domain events to subscribers. Publish never blocks;
// a bounded, lag-tolerant implementation is required by spec §5/§9.
type EventBus interface {
	Publish(evt events.Event)
	Subscribe() (ch <-chan events.Event, cancel func())
}

// PasswordHasher verifies a plaintext password against a stored hash.
// The comparison must be constant-time on the critical path (bcrypt-class).
type PasswordHasher interface {
	Verify(plain, hash string) bool
}

// Package events defines the Event variants published on the in-process
// event bus (spec §6), adapted from the teacher's EventType/BaseEvent/
// EventFactory pattern and narrowed to exactly the variants spec.md names.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an Event variant.
type Type string

const (
	TypeChargePointConnected    Type = "charge_point.connected"
	TypeChargePointDisconnected Type = "charge_point.disconnected"
	TypeChargePointStatusChanged Type = "charge_point.status_changed"
	TypeConnectorStatusChanged  Type = "connector.status_changed"
	TypeTransactionStarted      Type = "transaction.started"
	TypeTransactionStopped      Type = "transaction.stopped"
	TypeTransactionBilled       Type = "transaction.billed"
	TypeMeterValuesReceived     Type = "meter_values.received"
	TypeHeartbeatReceived       Type = "heartbeat.received"
	TypeAuthorizationResult     Type = "authorization.result"
	TypeBootNotification        Type = "boot_notification.received"
	TypeReservationExpired      Type = "reservation.expired"
	TypeError                   Type = "error"
)

// Event is the common interface every published event satisfies.
type Event interface {
	EventType() Type
	CPID() string
	OccurredAt() time.Time
}

// Base carries the fields every event shares.
type Base struct {
	ID            string
	Type          Type
	ChargePointID string
	At            time.Time
}

func (b Base) EventType() Type       { return b.Type }
func (b Base) CPID() string          { return b.ChargePointID }
func (b Base) OccurredAt() time.Time { return b.At }

func newBase(t Type, cpID string) Base {
	return Base{ID: uuid.New().String(), Type: t, ChargePointID: cpID, At: time.Now()}
}

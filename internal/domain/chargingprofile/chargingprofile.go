// Package chargingprofile models the ChargingProfile entity from spec §3,
// grounded in the teacher's internal/domain/ocpp16.ChargingProfile wire
// shape (same field set, reused here as the persisted domain form).
package chargingprofile

import "time"

// Purpose is the OCPP charging profile purpose.
type Purpose string

const (
	PurposeChargePointMaxProfile Purpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      Purpose = "TxDefaultProfile"
	PurposeTxProfile             Purpose = "TxProfile"
)

// Kind is the OCPP charging profile kind.
type Kind string

const (
	KindAbsolute  Kind = "Absolute"
	KindRecurring Kind = "Recurring"
	KindRelative  Kind = "Relative"
)

// RecurrencyKind is the OCPP recurrency kind for Recurring profiles.
type RecurrencyKind string

const (
	RecurrencyDaily  RecurrencyKind = "Daily"
	RecurrencyWeekly RecurrencyKind = "Weekly"
)

// ChargingProfile is a power-limit schedule imposed on a CP. Profiles are
// never deleted; they are deactivated (spec §3 invariant).
type ChargingProfile struct {
	ID              int64
	ChargePointID   string
	EVSEID          int // 0 = station
	OCPPProfileID   int
	StackLevel      int
	Purpose         Purpose
	Kind            Kind
	RecurrencyKind  RecurrencyKind
	ValidFrom       *time.Time
	ValidTo         *time.Time
	ScheduleJSON    string // serialized ChargingSchedule blob, opaque here
	IsActive        bool
}

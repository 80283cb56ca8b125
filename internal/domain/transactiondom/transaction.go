// Package transactiondom models the single canonical Transaction entity
// from spec §3. It consolidates the teacher's two divergent transaction
// structs (business/chargepoint and business/transaction) into one type,
// enriched with the live meter fields, charging limits, and billing
// linkage the spec requires.
package transactiondom

import (
	"sync"
	"time"
)

// Status is the Transaction lifecycle status.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// LimitType enumerates the charging-limit kinds a RemoteStart can stake
// for the transaction it is about to cause (spec §4.5, §9).
type LimitType string

const (
	LimitEnergy LimitType = "energy" // kWh
	LimitAmount LimitType = "amount" // minor currency units
	LimitSoC    LimitType = "soc"    // percent
)

// Limit is a pending or applied charging limit.
type Limit struct {
	Type  LimitType
	Value float64
}

// Transaction is a single charging session bounded by Start/Stop (or,
// in v2.0.1/2.1, TransactionEvent Started/Ended).
type Transaction struct {
	mu sync.RWMutex

	ID            int64
	ChargePointID string
	ConnectorID   int
	IdTag         string

	// ExternalTransactionID stores the CP-supplied v2.0.1 transaction id
	// string verbatim, resolving the open question in spec §9: the
	// domain id stays an internally issued int64, and the external
	// string id is kept alongside it rather than hashed, so a later
	// TransactionEvent{Updated|Ended} can be resolved back to this
	// Transaction via the per-CP external-id index the transaction
	// repository maintains.
	ExternalTransactionID string

	MeterStart int64 // Wh
	MeterStop  *int64 // Wh, nil while active

	StartedAt  time.Time
	StoppedAt  *time.Time
	StopReason string

	Status Status

	// Live fields, updated by MeterValues while Active.
	LastMeterValue  int64 // Wh
	CurrentPowerW   float64
	CurrentSoC      *int
	LastMeterUpdate time.Time

	Limit *Limit

	ExternalOrderID string
}

// New creates a new Active Transaction.
func New(id int64, chargePointID string, connectorID int, idTag string, meterStart int64, startedAt time.Time) *Transaction {
	return &Transaction{
		ID:            id,
		ChargePointID: chargePointID,
		ConnectorID:   connectorID,
		IdTag:         idTag,
		MeterStart:    meterStart,
		StartedAt:     startedAt,
		Status:        StatusActive,
		LastMeterValue: meterStart,
		LastMeterUpdate: startedAt,
	}
}

// IsActive reports whether the transaction is still open. Invariant from
// spec §3: Active <=> stopped_at is null.
func (t *Transaction) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.StoppedAt == nil
}

// ApplyLimit attaches a pending charging limit staked by a prior
// RemoteStart (taken from the pending-limit map on use, spec §5). The
// limit is checked on every meter sample and cleared with ApplyLimit(nil)
// once it is breached.
func (t *Transaction) ApplyLimit(l *Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Limit = l
}

// RecordMeterValue updates the live fields from an inbound MeterValues
// sample.
func (t *Transaction) RecordMeterValue(meterWh int64, powerW float64, soc *int, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastMeterValue = meterWh
	t.CurrentPowerW = powerW
	if soc != nil {
		t.CurrentSoC = soc
	}
	t.LastMeterUpdate = at
}

// LiveEnergyConsumedWh returns last_meter_value - meter_start while
// Active.
func (t *Transaction) LiveEnergyConsumedWh() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.LastMeterValue - t.MeterStart
}

// Stop terminates the transaction: sets meter_stop, stopped_at, reason,
// and status=Completed. Calling Stop on an already-stopped transaction is
// idempotent and returns false to signal no state change occurred (spec
// §4.5: "stopping an already-stopped tx returns Completed idempotently").
func (t *Transaction) Stop(meterStop int64, stoppedAt time.Time, reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.StoppedAt != nil {
		return false
	}
	stop := meterStop
	t.MeterStop = &stop
	t.StoppedAt = &stoppedAt
	t.StopReason = reason
	t.Status = StatusCompleted
	return true
}

// EnergyConsumedWh returns meter_stop - meter_start once completed, and
// ok=false while still active.
func (t *Transaction) EnergyConsumedWh() (wh int64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.MeterStop == nil {
		return 0, false
	}
	return *t.MeterStop - t.MeterStart, true
}

// DurationSeconds returns the session duration once completed.
func (t *Transaction) DurationSeconds() (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.StoppedAt == nil {
		return 0, false
	}
	return int64(t.StoppedAt.Sub(t.StartedAt).Seconds()), true
}

// Snapshot returns a value copy safe to read without the Transaction's
// lock, excluding the internal mutex.
func (t *Transaction) Snapshot() Transaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := *t
	cp.mu = sync.RWMutex{}
	return cp
}

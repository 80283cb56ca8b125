// Package tariff models the Tariff pricing policy and the per-transaction
// TransactionBilling record from spec §3, plus the cost-breakdown formula
// spec §4.5 spells out, grounded on
// _examples/original_source/src/application/charging/services/billing.rs
// (BillingService::calculate_transaction_billing delegates to
// Tariff::calculate_cost_breakdown, which this package implements per the
// prose formula since domain/tariff/model.rs was not present in the
// retrieved source set).
package tariff

// Type is the tariff pricing type.
type Type string

const (
	TypePerKwh    Type = "PerKwh"
	TypePerMinute Type = "PerMinute"
	TypePerSession Type = "PerSession"
	TypeCombined  Type = "Combined"
)

// Tariff holds pricing policy. Prices are in minor currency units.
type Tariff struct {
	ID              int64
	Type            Type
	PricePerKwh     int64 // minor units per kWh
	PricePerMinute  int64 // minor units per minute
	SessionFee      int64 // minor units
	MinFee          int64 // minor units, 0 = no floor
	MaxFee          int64 // minor units, 0 = unlimited
	Currency        string
	IsDefault       bool
	IsActive        bool
}

// CostBreakdown is the itemized result of applying a Tariff to a
// completed transaction's energy and duration.
type CostBreakdown struct {
	EnergyCost int64
	TimeCost   int64
	SessionFee int64
	Subtotal   int64
	Total      int64
	Currency   string
}

// CalculateCostBreakdown applies the tariff's pricing formula (spec §4.5)
// to a completed transaction's consumption. energyWh and durationSeconds
// must both be >= 0.
func (t *Tariff) CalculateCostBreakdown(energyWh int64, durationSeconds int64) CostBreakdown {
	energyKwh := float64(energyWh) / 1000.0
	durationMin := float64(durationSeconds) / 60.0

	var energyCost, timeCost, sessionFee int64

	switch t.Type {
	case TypePerKwh:
		energyCost = round(energyKwh * float64(t.PricePerKwh))
	case TypePerMinute:
		timeCost = round(durationMin * float64(t.PricePerMinute))
	case TypePerSession:
		sessionFee = t.SessionFee
	case TypeCombined:
		energyCost = round(energyKwh * float64(t.PricePerKwh))
		timeCost = round(durationMin * float64(t.PricePerMinute))
		sessionFee = t.SessionFee
	}

	subtotal := energyCost + timeCost + sessionFee
	total := subtotal
	if t.MinFee > 0 && total < t.MinFee {
		total = t.MinFee
	}
	if t.MaxFee > 0 && total > t.MaxFee {
		total = t.MaxFee
	}

	return CostBreakdown{
		EnergyCost: energyCost,
		TimeCost:   timeCost,
		SessionFee: sessionFee,
		Subtotal:   subtotal,
		Total:      total,
		Currency:   t.Currency,
	}
}

func round(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

// BillingStatus is the TransactionBilling lifecycle status.
type BillingStatus string

const (
	BillingPending    BillingStatus = "Pending"
	BillingCalculated BillingStatus = "Calculated"
	BillingInvoiced   BillingStatus = "Invoiced"
	BillingPaid       BillingStatus = "Paid"
	BillingFailed     BillingStatus = "Failed"
)

// TransactionBilling is computed per completed transaction and stored
// keyed by transaction_id.
type TransactionBilling struct {
	TransactionID   int64
	TariffID        int64
	EnergyWh        int64
	DurationSeconds int64
	EnergyCost      int64
	TimeCost        int64
	SessionFee      int64
	TotalCost       int64
	Currency        string
	Status          BillingStatus
}

// NewBilling builds a Calculated TransactionBilling from a breakdown.
func NewBilling(transactionID, tariffID, energyWh, durationSeconds int64, b CostBreakdown) *TransactionBilling {
	return &TransactionBilling{
		TransactionID:   transactionID,
		TariffID:        tariffID,
		EnergyWh:        energyWh,
		DurationSeconds: durationSeconds,
		EnergyCost:      b.EnergyCost,
		TimeCost:        b.TimeCost,
		SessionFee:      b.SessionFee,
		TotalCost:       b.Total,
		Currency:        b.Currency,
		Status:          BillingCalculated,
	}
}

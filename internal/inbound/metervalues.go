package inbound

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type sampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type meterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

type meterValuesV16Request struct {
	ConnectorId   int               `json:"connectorId"`
	TransactionId *int64            `json:"transactionId,omitempty"`
	MeterValue    []meterValueEntry `json:"meterValue"`
}

func handleMeterValuesV16(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req meterValuesV16Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}

	if req.TransactionId != nil {
		tx, err := a.Repos.Transactions().Get(ctx, *req.TransactionId)
		if err == nil {
			applyMeterValueSamples(tx, toGenericMeterValues(req.MeterValue), time.Now())
			_ = a.Repos.Transactions().Update(ctx, tx)
			a.Bus.Publish(events.NewMeterValuesReceived(chargePointID, tx.ID, tx.ConnectorID))
			checkLimitBreach(ctx, a, chargePointID, tx)
		}
	}

	return map[string]interface{}{}, nil
}

func handleMeterValuesV2(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req struct {
		EvseId        int               `json:"evseId"`
		TransactionId string            `json:"transactionId,omitempty"`
		MeterValue    []meterValueEntry `json:"meterValue"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}

	if req.TransactionId != "" {
		tx, err := a.Repos.Transactions().GetByExternalID(ctx, chargePointID, req.TransactionId)
		if err == nil {
			applyMeterValueSamples(tx, toGenericMeterValues(req.MeterValue), time.Now())
			_ = a.Repos.Transactions().Update(ctx, tx)
			a.Bus.Publish(events.NewMeterValuesReceived(chargePointID, tx.ID, tx.ConnectorID))
			checkLimitBreach(ctx, a, chargePointID, tx)
		}
	}

	return map[string]interface{}{}, nil
}

// checkLimitBreach checks a just-updated transaction's live consumption
// against its pending charging limit (if any) and issues an asynchronous
// RemoteStop when the limit is reached (spec §4.4/§4.5: "when
// limit_type/limit_value is set and the limit is reached... issue a
// RemoteStop via the dispatcher asynchronously"). The limit is cleared as
// soon as a breach is detected so later samples don't re-trigger the stop
// while the RemoteStop call is still in flight.
func checkLimitBreach(ctx context.Context, a *Adapter, chargePointID string, tx *transactiondom.Transaction) {
	limit := tx.Limit
	if limit == nil || a.Limits == nil {
		return
	}

	breached := false
	switch limit.Type {
	case transactiondom.LimitEnergy:
		breached = float64(tx.LiveEnergyConsumedWh())/1000.0 >= limit.Value
	case transactiondom.LimitSoC:
		breached = tx.CurrentSoC != nil && float64(*tx.CurrentSoC) >= limit.Value
	case transactiondom.LimitAmount:
		if t, err := a.Repos.Tariffs().GetDefault(ctx); err == nil {
			durationSeconds := int64(time.Since(tx.StartedAt).Seconds())
			breakdown := t.CalculateCostBreakdown(tx.LiveEnergyConsumedWh(), durationSeconds)
			breached = float64(breakdown.Total) >= limit.Value
		}
	}
	if !breached {
		return
	}

	tx.ApplyLimit(nil)
	txID := tx.ID
	go func() {
		if _, err := a.Limits.RemoteStop(context.Background(), chargePointID, txID); err != nil {
			a.log.Warn().Str("charge_point_id", chargePointID).Int64("transaction_id", txID).Err(err).Msg("limit-breach RemoteStop failed")
		}
	}()
}

// genericMeterValue is the shape applyMeterValueSamples works against,
// shared by the v1.6 MeterValues path and the v2.x TransactionEvent path.
type genericMeterValue struct {
	Timestamp    string
	SampledValue []sampledValue
}

func toGenericMeterValues(entries []meterValueEntry) []genericMeterValue {
	out := make([]genericMeterValue, 0, len(entries))
	for _, e := range entries {
		out = append(out, genericMeterValue{Timestamp: e.Timestamp, SampledValue: e.SampledValue})
	}
	return out
}

// applyMeterValueSamples extracts Energy.Active.Import.Register (Wh),
// Power.Active.Import (W), and SoC (%) from the most recent sample set
// and records them on the transaction. Unrecognized measurands are
// ignored rather than rejected, since OCPP meter values commonly carry
// measurands this CSMS has no use for.
func applyMeterValueSamples(tx *transactiondom.Transaction, entries []genericMeterValue, fallback time.Time) {
	if len(entries) == 0 {
		return
	}
	last := entries[len(entries)-1]
	at := parseOCPPTime(last.Timestamp, fallback)

	var meterWh = tx.LastMeterValue
	var powerW = tx.CurrentPowerW
	var soc *int

	for _, s := range last.SampledValue {
		switch s.Measurand {
		case "", "Energy.Active.Import.Register":
			if v, err := strconv.ParseFloat(s.Value, 64); err == nil {
				meterWh = int64(v)
			}
		case "Power.Active.Import":
			if v, err := strconv.ParseFloat(s.Value, 64); err == nil {
				powerW = v
			}
		case "SoC":
			if v, err := strconv.Atoi(s.Value); err == nil {
				soc = &v
			}
		}
	}

	tx.RecordMeterValue(meterWh, powerW, soc, at)
}

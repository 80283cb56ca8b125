package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/domain/tariff"
	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type startTransactionRequest struct {
	ConnectorId   int    `json:"connectorId" validate:"ocpp_connector_id"`
	IdTag         string `json:"idTag" validate:"required,ocpp_id_token"`
	MeterStart    int64  `json:"meterStart"`
	Timestamp     string `json:"timestamp" validate:"ocpp_datetime"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

type stopTransactionRequest struct {
	TransactionId int64  `json:"transactionId"`
	IdTag         string `json:"idTag,omitempty" validate:"omitempty,ocpp_id_token"`
	MeterStop     int64  `json:"meterStop"`
	Timestamp     string `json:"timestamp" validate:"ocpp_datetime"`
	Reason        string `json:"reason,omitempty"`
}

func parseOCPPTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t
}

func handleStartTransaction(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req startTransactionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	status := resolveAuthStatus(ctx, a, req.IdTag)
	if status != idtag.StatusAccepted {
		return map[string]interface{}{
			"transactionId": 0,
			"idTagInfo":     map[string]interface{}{"status": string(status)},
		}, nil
	}

	txRepo := a.Repos.Transactions()
	id, err := txRepo.NextID(ctx)
	if err != nil {
		return nil, internalError(err.Error())
	}

	startedAt := parseOCPPTime(req.Timestamp, time.Now())
	tx := transactiondom.New(id, chargePointID, req.ConnectorId, req.IdTag, req.MeterStart, startedAt)
	if a.Limits != nil {
		if limit := a.Limits.TakeLimit(chargePointID, req.ConnectorId); limit != nil {
			tx.ApplyLimit(limit)
		}
	}
	if err := txRepo.Create(ctx, tx); err != nil {
		return nil, internalError(err.Error())
	}

	a.Bus.Publish(events.NewTransactionStarted(chargePointID, tx.ID, tx.ConnectorID, tx.IdTag, tx.MeterStart))

	return map[string]interface{}{
		"idTagInfo":     map[string]interface{}{"status": string(status)},
		"transactionId": int(tx.ID),
	}, nil
}

// billTransaction computes and persists the cost of a just-completed
// transaction against its tariff (the default tariff, since a Transaction
// carries no per-transaction tariff assignment) and publishes
// TransactionBilled (spec §4.5: "Billing computation (triggered on
// transaction stop)... persist a TransactionBilling record and publish
// TransactionBilled"). A missing default tariff is logged and skipped
// rather than failing the stop itself — billing is a side effect of a
// stop that already succeeded, not a precondition for it.
func billTransaction(ctx context.Context, a *Adapter, chargePointID string, tx *transactiondom.Transaction) {
	energyWh, ok := tx.EnergyConsumedWh()
	if !ok {
		return
	}
	durationSeconds, ok := tx.DurationSeconds()
	if !ok {
		return
	}

	t, err := a.Repos.Tariffs().GetDefault(ctx)
	if err != nil {
		a.log.Warn().Str("charge_point_id", chargePointID).Int64("transaction_id", tx.ID).Err(err).Msg("no default tariff, skipping billing")
		return
	}

	breakdown := t.CalculateCostBreakdown(energyWh, durationSeconds)
	billing := tariff.NewBilling(tx.ID, t.ID, energyWh, durationSeconds, breakdown)
	if err := a.Repos.Billing().Upsert(ctx, billing); err != nil {
		a.log.Error().Str("charge_point_id", chargePointID).Int64("transaction_id", tx.ID).Err(err).Msg("failed to persist transaction billing")
		return
	}

	a.Bus.Publish(events.NewTransactionBilled(chargePointID, tx.ID, billing.TotalCost, billing.Currency))
}

func handleStopTransaction(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req stopTransactionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	txRepo := a.Repos.Transactions()
	tx, err := txRepo.Get(ctx, req.TransactionId)
	if err != nil {
		return nil, internalError(err.Error())
	}

	stoppedAt := parseOCPPTime(req.Timestamp, time.Now())
	// Stop never synthesizes a ConnectorStatusChanged event; the connector
	// status comes from the charge point's own StatusNotification. The
	// limit-breach force stop (checkLimitBreach) only sends a RemoteStop and
	// does not synthesize one either (spec §9 open question: resolved as
	// "normal stop stays silent").
	if tx.Stop(req.MeterStop, stoppedAt, req.Reason) {
		if err := txRepo.Update(ctx, tx); err != nil {
			return nil, internalError(err.Error())
		}
		a.Bus.Publish(events.NewTransactionStopped(chargePointID, tx.ID, req.MeterStop, req.Reason))
		billTransaction(ctx, a, chargePointID, tx)
	}

	resp := map[string]interface{}{}
	if req.IdTag != "" {
		resp["idTagInfo"] = map[string]interface{}{"status": string(resolveAuthStatus(ctx, a, req.IdTag))}
	}
	return resp, nil
}

type transactionEventRequest struct {
	EventType       string `json:"eventType" validate:"required"`
	TransactionInfo struct {
		TransactionId string `json:"transactionId"`
	} `json:"transactionInfo"`
	Timestamp string `json:"timestamp" validate:"ocpp_datetime"`
	Evse      *struct {
		Id int `json:"id"`
	} `json:"evse,omitempty"`
	IdToken *struct {
		IdToken string `json:"idToken" validate:"omitempty,ocpp_id_token"`
	} `json:"idToken,omitempty"`
	MeterValue []meterValueEntry `json:"meterValue,omitempty"`
}

// handleTransactionEvent processes the v2.0.1/2.1 TransactionEvent action,
// which replaces v1.6's Start/MeterValues/Stop triad with a single
// Started/Updated/Ended stream correlated by a CP-issued string
// transaction id.
func handleTransactionEvent(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req transactionEventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	txRepo := a.Repos.Transactions()
	at := parseOCPPTime(req.Timestamp, time.Now())

	switch req.EventType {
	case "Started":
		id, err := txRepo.NextID(ctx)
		if err != nil {
			return nil, internalError(err.Error())
		}
		connectorID := 0
		if req.Evse != nil {
			connectorID = req.Evse.Id
		}
		idTag := ""
		if req.IdToken != nil {
			idTag = req.IdToken.IdToken
		}
		tx := transactiondom.New(id, chargePointID, connectorID, idTag, 0, at)
		tx.ExternalTransactionID = req.TransactionInfo.TransactionId
		if a.Limits != nil {
			if limit := a.Limits.TakeLimit(chargePointID, connectorID); limit != nil {
				tx.ApplyLimit(limit)
			}
		}
		if err := txRepo.Create(ctx, tx); err != nil {
			return nil, internalError(err.Error())
		}
		a.Bus.Publish(events.NewTransactionStarted(chargePointID, tx.ID, tx.ConnectorID, tx.IdTag, tx.MeterStart))

	case "Updated":
		tx, err := txRepo.GetByExternalID(ctx, chargePointID, req.TransactionInfo.TransactionId)
		if err != nil {
			return nil, internalError(err.Error())
		}
		applyMeterValueSamples(tx, toGenericMeterValues(req.MeterValue), at)
		if err := txRepo.Update(ctx, tx); err != nil {
			return nil, internalError(err.Error())
		}
		a.Bus.Publish(events.NewMeterValuesReceived(chargePointID, tx.ID, tx.ConnectorID))
		checkLimitBreach(ctx, a, chargePointID, tx)

	case "Ended":
		tx, err := txRepo.GetByExternalID(ctx, chargePointID, req.TransactionInfo.TransactionId)
		if err != nil {
			return nil, internalError(err.Error())
		}
		applyMeterValueSamples(tx, toGenericMeterValues(req.MeterValue), at)
		if tx.Stop(tx.LastMeterValue, at, "Local") {
			if err := txRepo.Update(ctx, tx); err != nil {
				return nil, internalError(err.Error())
			}
			a.Bus.Publish(events.NewTransactionStopped(chargePointID, tx.ID, tx.LastMeterValue, "Local"))
			billTransaction(ctx, a, chargePointID, tx)
		}
	}

	return map[string]interface{}{}, nil
}

package inbound

import (
	"context"
	"encoding/json"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type statusNotificationV16Request struct {
	ConnectorId     int    `json:"connectorId" validate:"ocpp_connector_id"`
	Status          string `json:"status" validate:"ocpp_status"`
	ErrorCode       string `json:"errorCode" validate:"required"`
	Info            string `json:"info,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

type statusNotificationV2Request struct {
	EvseId          int    `json:"evseId" validate:"ocpp_connector_id"`
	ConnectorStatus string `json:"connectorStatus" validate:"ocpp_status"`
	ConnectorId     int    `json:"connectorId,omitempty"`
}

func handleStatusNotificationV16(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req statusNotificationV16Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	publishConnectorStatus(ctx, a, chargePointID, req.ConnectorId, req.Status, req.ErrorCode, req.Info, req.VendorErrorCode)
	return map[string]interface{}{}, nil
}

func handleStatusNotificationV2(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req statusNotificationV2Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	publishConnectorStatus(ctx, a, chargePointID, req.EvseId, req.ConnectorStatus, "NoError", "", "")
	return map[string]interface{}{}, nil
}

func publishConnectorStatus(ctx context.Context, a *Adapter, chargePointID string, connectorID int, status, errorCode, info, vendorCode string) {
	repo := a.Repos.ChargePoints()
	cp, err := repo.Get(ctx, chargePointID)
	if err != nil {
		cp = chargepoint.New(chargePointID)
	}
	// Connector id 0 addresses the station as a whole: it is published as
	// an event but never stored as a Connector.
	if connectorID > 0 {
		cp.UpdateConnectorStatus(connectorID, chargepoint.ConnectorStatus(status), errorCode, info, vendorCode)
	}
	_ = repo.Upsert(ctx, cp)

	a.Bus.Publish(events.NewConnectorStatusChanged(chargePointID, connectorID, status, errorCode))
}

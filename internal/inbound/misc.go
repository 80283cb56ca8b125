package inbound

import (
	"context"
	"encoding/json"

	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type dataTransferRequest struct {
	VendorId  string `json:"vendorId"`
	MessageId string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

func handleDataTransfer(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req dataTransferRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}

	a.log.Info().Str("charge_point_id", chargePointID).Str("vendor_id", req.VendorId).Msg("received DataTransfer")
	return map[string]interface{}{"status": "Accepted"}, nil
}

type diagnosticsStatusNotificationRequest struct {
	Status string `json:"status"`
}

func handleDiagnosticsStatusNotification(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req diagnosticsStatusNotificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	a.log.Info().Str("charge_point_id", chargePointID).Str("status", req.Status).Msg("DiagnosticsStatusNotification")
	return map[string]interface{}{}, nil
}

type firmwareStatusNotificationRequest struct {
	Status string `json:"status"`
}

func handleFirmwareStatusNotification(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req firmwareStatusNotificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	a.log.Info().Str("charge_point_id", chargePointID).Str("status", req.Status).Msg("FirmwareStatusNotification")
	return map[string]interface{}{}, nil
}

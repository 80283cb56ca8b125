package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type bootNotificationV16Request struct {
	ChargePointVendor       string `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type bootNotificationV2Request struct {
	Reason          string `json:"reason"`
	ChargingStation struct {
		VendorName      string `json:"vendorName" validate:"required"`
		Model           string `json:"model" validate:"required"`
		SerialNumber    string `json:"serialNumber,omitempty"`
		FirmwareVersion string `json:"firmwareVersion,omitempty"`
	} `json:"chargingStation"`
}

const defaultHeartbeatIntervalSeconds = 300

func handleBootNotificationV16(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req bootNotificationV16Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	cp, err := upsertBootedChargePoint(ctx, a, chargePointID, req.ChargePointVendor, req.ChargePointModel, req.ChargePointSerialNumber, req.FirmwareVersion, req.Iccid, req.Imsi, req.MeterType, req.MeterSerialNumber)
	if err != nil {
		return nil, internalError(err.Error())
	}

	a.Bus.Publish(events.NewBootNotification(chargePointID, cp.Vendor, cp.Model))

	return map[string]interface{}{
		"status":      "Accepted",
		"currentTime": time.Now().UTC().Format(time.RFC3339),
		"interval":    defaultHeartbeatIntervalSeconds,
	}, nil
}

func handleBootNotificationV2(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req bootNotificationV2Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req.ChargingStation); err != nil {
		return nil, err
	}

	cp, err := upsertBootedChargePoint(ctx, a, chargePointID, req.ChargingStation.VendorName, req.ChargingStation.Model, req.ChargingStation.SerialNumber, req.ChargingStation.FirmwareVersion, "", "", "", "")
	if err != nil {
		return nil, internalError(err.Error())
	}

	a.Bus.Publish(events.NewBootNotification(chargePointID, cp.Vendor, cp.Model))

	return map[string]interface{}{
		"status":      "Accepted",
		"currentTime": time.Now().UTC().Format(time.RFC3339),
		"interval":    defaultHeartbeatIntervalSeconds,
	}, nil
}

func upsertBootedChargePoint(ctx context.Context, a *Adapter, chargePointID, vendor, model, serial, firmware, iccid, imsi, meterType, meterSerial string) (*chargepoint.ChargePoint, error) {
	repo := a.Repos.ChargePoints()
	cp, err := repo.Get(ctx, chargePointID)
	if err != nil {
		cp = chargepoint.New(chargePointID)
	}
	cp.Vendor = vendor
	cp.Model = model
	cp.Serial = serial
	cp.Firmware = firmware
	cp.ICCID = iccid
	cp.IMSI = imsi
	cp.MeterType = meterType
	cp.MeterSerial = meterSerial
	cp.MarkOnline()

	if err := repo.Upsert(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

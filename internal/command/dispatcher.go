package command

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocpp-csms/central-system/internal/domain/transactiondom"
	"github.com/ocpp-csms/central-system/internal/metrics"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
	"github.com/ocpp-csms/central-system/internal/session"
)

// Dispatcher is the version-agnostic façade described in spec §4.4: it
// resolves the CP's negotiated version, records metrics, and routes each
// verb to a version-specific payload. The dispatcher owns the version
// switch; per-version shape differences live in the small helper
// functions below rather than separate packages, since every verb's
// v1.6/v2.x difference is a handful of field renames rather than a
// distinct module surface.
type Dispatcher struct {
	sender   *Sender
	registry *session.Registry
	limits   *PendingLimits
	log      zerolog.Logger
}

// NewDispatcher builds a Dispatcher over a Sender and the Registry it
// shares.
func NewDispatcher(sender *Sender, registry *session.Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		registry: registry,
		limits:   NewPendingLimits(),
		log:      log.With().Str("component", "command_dispatcher").Logger(),
	}
}

// TakeLimit consumes the pending charging limit staked for (chargePointID,
// connectorID), if any (spec §5/§9 take-on-use semantics).
func (d *Dispatcher) TakeLimit(chargePointID string, connectorID int) *transactiondom.Limit {
	return d.limits.Take(chargePointID, connectorID)
}

func (d *Dispatcher) resolveVersion(chargePointID string) (ocppversion.Version, error) {
	v, ok := d.registry.GetVersion(chargePointID)
	if !ok {
		return ocppversion.Unknown, &NotConnectedError{ChargePointID: chargePointID}
	}
	return v, nil
}

// call sends action/payload and records the standard metric pair. It
// does not record a latency sample for UnsupportedVersion rejections,
// since no frame is ever sent (spec §8 scenario 4).
func (d *Dispatcher) call(ctx context.Context, chargePointID, metricAction, action string, payload interface{}) (json.RawMessage, error) {
	start := time.Now()
	raw, err := d.sender.Send(ctx, chargePointID, action, payload)
	metrics.CommandLatency.WithLabelValues(metricAction).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch err.(type) {
	case *NotConnectedError:
		outcome = "not_connected"
	case *TimeoutError:
		outcome = "timeout"
	case *CallErrorError:
		outcome = "call_error"
	case *InvalidResponseError:
		outcome = "invalid_response"
	}
	metrics.CommandsTotal.WithLabelValues(metricAction, outcome).Inc()
	return raw, err
}

func statusFromPayload(raw json.RawMessage) (string, map[string]interface{}) {
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	status, _ := m["status"].(string)
	return status, m
}

// RemoteStart issues RemoteStartTransaction (v1.6) or RequestStartTransaction
// (v2.x, connector_id mapped to evse_id). When limit is non-nil and the CP
// accepts the start, the limit is staked in the per-CP pending charging
// limit map (spec §4.4/§4.5/§9) for the next StartTransaction on
// connectorID (or on any connector, if connectorID is nil) to consume.
func (d *Dispatcher) RemoteStart(ctx context.Context, chargePointID, idTag string, connectorID *int, limit *transactiondom.Limit) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}

	var payload map[string]interface{}
	var action string
	if v.IsV2() {
		action = "RequestStartTransaction"
		payload = map[string]interface{}{"idToken": map[string]interface{}{"idToken": idTag, "type": "ISO14443"}}
		if connectorID != nil {
			payload["evseId"] = *connectorID
		}
	} else {
		action = "RemoteStartTransaction"
		payload = map[string]interface{}{"idTag": idTag}
		if connectorID != nil {
			payload["connectorId"] = *connectorID
		}
	}

	raw, err := d.call(ctx, chargePointID, "remote_start", action, payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	if status == "Accepted" && limit != nil {
		key := 0
		if connectorID != nil {
			key = *connectorID
		}
		d.limits.Stake(chargePointID, key, limit)
	}
	return Result{Status: status, Payload: m}, nil
}

// RemoteStop issues RemoteStopTransaction (v1.6) or RequestStopTransaction
// (v2.x, transaction_id stringified).
func (d *Dispatcher) RemoteStop(ctx context.Context, chargePointID string, transactionID int64) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}

	var payload map[string]interface{}
	var action string
	if v.IsV2() {
		action = "RequestStopTransaction"
		payload = map[string]interface{}{"transactionId": strconv.FormatInt(transactionID, 10)}
	} else {
		action = "RemoteStopTransaction"
		payload = map[string]interface{}{"transactionId": int(transactionID)}
	}

	raw, err := d.call(ctx, chargePointID, "remote_stop", action, payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// Reset issues Reset{Soft|Hard} (v1.6) or Reset{OnIdle|Immediate} (v2.x).
func (d *Dispatcher) Reset(ctx context.Context, chargePointID string, kind ResetKind) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}

	typeValue := string(kind)
	if v.IsV2() {
		if kind == ResetSoft {
			typeValue = "OnIdle"
		} else {
			typeValue = "Immediate"
		}
	}

	raw, err := d.call(ctx, chargePointID, "reset", "Reset", map[string]interface{}{"type": typeValue})
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// ChangeAvailability issues ChangeAvailability, mapping connector_id to
// evse_id in v2.x.
func (d *Dispatcher) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availability Availability) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}

	payload := map[string]interface{}{"type": string(availability)}
	if v.IsV2() {
		payload["evseId"] = connectorID
	} else {
		payload["connectorId"] = connectorID
	}

	raw, err := d.call(ctx, chargePointID, "change_availability", "ChangeAvailability", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// ChangeConfiguration is v1.6-only; at v2.x it is a hard UnsupportedVersion
// error and no frame is sent.
func (d *Dispatcher) ChangeConfiguration(ctx context.Context, chargePointID, key, value string) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	if v.IsV2() {
		return Result{}, &UnsupportedVersionError{Message: "use SetVariables"}
	}

	raw, err := d.call(ctx, chargePointID, "change_configuration", "ChangeConfiguration", map[string]interface{}{"key": key, "value": value})
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// GetConfiguration is v1.6-only.
func (d *Dispatcher) GetConfiguration(ctx context.Context, chargePointID string, keys []string) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	if v.IsV2() {
		return Result{}, &UnsupportedVersionError{Message: "use GetVariables"}
	}

	payload := map[string]interface{}{}
	if len(keys) > 0 {
		payload["key"] = keys
	}
	raw, err := d.call(ctx, chargePointID, "get_configuration", "GetConfiguration", payload)
	if err != nil {
		return Result{}, err
	}
	_, m := statusFromPayload(raw)
	return Result{Payload: m}, nil
}

// SetVariables is v2.x-only.
func (d *Dispatcher) SetVariables(ctx context.Context, chargePointID string, entries []map[string]interface{}) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	if !v.IsV2() {
		return Result{}, &UnsupportedVersionError{Message: "SetVariables requires OCPP 2.0.1 or later"}
	}

	raw, err := d.call(ctx, chargePointID, "set_variables", "SetVariables", map[string]interface{}{"setVariableData": entries})
	if err != nil {
		return Result{}, err
	}
	_, m := statusFromPayload(raw)
	return Result{Payload: m}, nil
}

// GetVariables is v2.x-only.
func (d *Dispatcher) GetVariables(ctx context.Context, chargePointID string, entries []map[string]interface{}) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	if !v.IsV2() {
		return Result{}, &UnsupportedVersionError{Message: "GetVariables requires OCPP 2.0.1 or later"}
	}

	raw, err := d.call(ctx, chargePointID, "get_variables", "GetVariables", map[string]interface{}{"getVariableData": entries})
	if err != nil {
		return Result{}, err
	}
	_, m := statusFromPayload(raw)
	return Result{Payload: m}, nil
}

// GetReport is v2.x-only. It asks the charging station to assemble a
// component/variable report and send it back asynchronously as one or
// more NotifyReport Call frames (handled by internal/inbound's
// handleNotifyReport), correlated by requestID; the CallResult this
// method returns is only the station's GenericDeviceModelStatus
// acceptance, not the report contents.
func (d *Dispatcher) GetReport(ctx context.Context, chargePointID string, requestID int, componentCriteria []string) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	if !v.IsV2() {
		return Result{}, &UnsupportedVersionError{Message: "GetReport requires OCPP 2.0.1 or later"}
	}

	payload := map[string]interface{}{"requestId": requestID}
	if len(componentCriteria) > 0 {
		payload["componentCriteria"] = componentCriteria
	}
	raw, err := d.call(ctx, chargePointID, "get_report", "GetReport", payload)
	if err != nil {
		return Result{}, err
	}
	_, m := statusFromPayload(raw)
	return Result{Payload: m}, nil
}

// ClearCache issues ClearCache, identical on both version families.
func (d *Dispatcher) ClearCache(ctx context.Context, chargePointID string) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	raw, err := d.call(ctx, chargePointID, "clear_cache", "ClearCache", map[string]interface{}{})
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// DataTransfer issues DataTransfer, identical on both version families.
func (d *Dispatcher) DataTransfer(ctx context.Context, chargePointID, vendorID string, messageID, data *string) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{"vendorId": vendorID}
	if messageID != nil {
		payload["messageId"] = *messageID
	}
	if data != nil {
		payload["data"] = *data
	}
	raw, err := d.call(ctx, chargePointID, "data_transfer", "DataTransfer", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// GetLocalListVersion issues GetLocalListVersion, identical on both
// version families.
func (d *Dispatcher) GetLocalListVersion(ctx context.Context, chargePointID string) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	raw, err := d.call(ctx, chargePointID, "get_local_list_version", "GetLocalListVersion", map[string]interface{}{})
	if err != nil {
		return Result{}, err
	}
	_, m := statusFromPayload(raw)
	return Result{Payload: m}, nil
}

// TriggerMessage issues TriggerMessage, identical on both version
// families.
func (d *Dispatcher) TriggerMessage(ctx context.Context, chargePointID string, kind TriggerType, connectorID *int) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{"requestedMessage": string(kind)}
	if connectorID != nil {
		payload["connectorId"] = *connectorID
	}
	raw, err := d.call(ctx, chargePointID, "trigger_message", "TriggerMessage", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// UnlockConnector issues UnlockConnector, mapping connector_id to
// evse_id/connector_id_in_evse on v2.x.
func (d *Dispatcher) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	var payload map[string]interface{}
	if v.IsV2() {
		payload = map[string]interface{}{"evseId": connectorID, "connectorId": 1}
	} else {
		payload = map[string]interface{}{"connectorId": connectorID}
	}
	raw, err := d.call(ctx, chargePointID, "unlock_connector", "UnlockConnector", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// ReserveNow issues ReserveNow.
func (d *Dispatcher) ReserveNow(ctx context.Context, chargePointID string, reservationID int64, connectorID int, idTag, parentIdTag, expiryDate string) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{
		"reservationId": reservationID,
		"connectorId":   connectorID,
		"idTag":         idTag,
		"expiryDate":    expiryDate,
	}
	if parentIdTag != "" {
		payload["parentIdTag"] = parentIdTag
	}
	raw, err := d.call(ctx, chargePointID, "reserve_now", "ReserveNow", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// CancelReservation issues CancelReservation.
func (d *Dispatcher) CancelReservation(ctx context.Context, chargePointID string, reservationID int64) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	raw, err := d.call(ctx, chargePointID, "cancel_reservation", "CancelReservation", map[string]interface{}{"reservationId": reservationID})
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// SendLocalList issues SendLocalList.
func (d *Dispatcher) SendLocalList(ctx context.Context, chargePointID string, listVersion int, updateType string, entries []LocalAuthEntry) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{
		"listVersion":          listVersion,
		"updateType":           updateType,
		"localAuthorizationList": entries,
	}
	raw, err := d.call(ctx, chargePointID, "send_local_list", "SendLocalList", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// SetChargingProfile issues SetChargingProfile, mapping connector_id to
// evse_id on v2.x.
func (d *Dispatcher) SetChargingProfile(ctx context.Context, chargePointID string, connectorID int, profile map[string]interface{}) (Result, error) {
	v, err := d.resolveVersion(chargePointID)
	if err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{"csChargingProfiles": profile}
	if v.IsV2() {
		payload["evseId"] = connectorID
	} else {
		payload["connectorId"] = connectorID
	}
	raw, err := d.call(ctx, chargePointID, "set_charging_profile", "SetChargingProfile", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// ClearChargingProfile issues ClearChargingProfile.
func (d *Dispatcher) ClearChargingProfile(ctx context.Context, chargePointID string, profileID *int) (Result, error) {
	if _, err := d.resolveVersion(chargePointID); err != nil {
		return Result{}, err
	}
	payload := map[string]interface{}{}
	if profileID != nil {
		payload["id"] = *profileID
	}
	raw, err := d.call(ctx, chargePointID, "clear_charging_profile", "ClearChargingProfile", payload)
	if err != nil {
		return Result{}, err
	}
	status, m := statusFromPayload(raw)
	return Result{Status: status, Payload: m}, nil
}

// HandleResult and HandleError delegate to the underlying Sender; exposed
// here so the inbound adapter only needs a reference to the Dispatcher.
func (d *Dispatcher) HandleResult(chargePointID, uniqueID string, payload json.RawMessage) {
	d.sender.HandleResult(chargePointID, uniqueID, payload)
}

func (d *Dispatcher) HandleError(chargePointID, uniqueID, code, description string) {
	d.sender.HandleError(chargePointID, uniqueID, code, description)
}

// CleanupChargePoint delegates to the underlying Sender.
func (d *Dispatcher) CleanupChargePoint(chargePointID string) {
	d.sender.CleanupChargePoint(chargePointID)
}

package command

import "fmt"

// NotConnectedError is returned when the target charge point has no live
// session.
type NotConnectedError struct{ ChargePointID string }

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("command: %s not connected", e.ChargePointID)
}

// SendFailedError wraps a transport-level send failure.
type SendFailedError struct{ Reason string }

func (e *SendFailedError) Error() string { return "command: send failed: " + e.Reason }

// InvalidResponseError is returned when the reply channel closes without
// a value, which should not happen in normal operation.
type InvalidResponseError struct{ Detail string }

func (e *InvalidResponseError) Error() string { return "command: invalid response: " + e.Detail }

// TimeoutError is returned when no reply arrives within the command
// deadline.
type TimeoutError struct{ Action string }

func (e *TimeoutError) Error() string { return "command: timeout waiting for " + e.Action }

// CallErrorError wraps an OCPP CallError returned by the CP, surfaced to
// the caller verbatim (spec §7.3).
type CallErrorError struct {
	Code        string
	Description string
}

func (e *CallErrorError) Error() string {
	return fmt.Sprintf("command: call error %s: %s", e.Code, e.Description)
}

// UnsupportedVersionError is a hard dispatcher-side error for a verb that
// does not exist in the CP's negotiated version. It is never sent on the
// wire (spec §4.4).
type UnsupportedVersionError struct{ Message string }

func (e *UnsupportedVersionError) Error() string { return "command: unsupported version: " + e.Message }

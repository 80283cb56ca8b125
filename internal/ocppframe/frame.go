// Package ocppframe implements the OCPP-J wire envelope: parsing and
// serializing Call, CallResult and CallError frames. The codec is shared
// across every protocol version; it treats payloads as opaque JSON and
// never interprets action-specific fields.
package ocppframe

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the three OCPP-J frame types.
type Kind int

const (
	Call Kind = 2
	CallResult Kind = 3
	CallError Kind = 4
)

// Frame is the decoded form of an OCPP-J message array.
type Frame struct {
	Kind        Kind
	UniqueID    string
	Action      string          // only set for Call
	Payload     json.RawMessage // Call payload / CallResult payload
	ErrorCode   string          // only set for CallError
	ErrorDesc   string          // only set for CallError
	ErrorDetail json.RawMessage // only set for CallError, defaults to {}
}

// FrameError is the parse-failure taxonomy from the frame codec.
type FrameError struct {
	Reason      string
	MessageType int    // populated for UnknownMessageType
	Which       string // populated for FieldTypeMismatch
	Expected    int    // populated for MissingFields
	Got         int    // populated for MissingFields
}

func (e *FrameError) Error() string {
	switch e.Reason {
	case "UnknownMessageType":
		return fmt.Sprintf("unknown message type: %d", e.MessageType)
	case "FieldTypeMismatch":
		return fmt.Sprintf("field type mismatch: %s", e.Which)
	case "MissingFields":
		return fmt.Sprintf("missing fields: expected %d, got %d", e.Expected, e.Got)
	default:
		return e.Reason
	}
}

func errInvalidJSON() error    { return &FrameError{Reason: "InvalidJson"} }
func errEmptyArray() error     { return &FrameError{Reason: "EmptyArray"} }
func errInvalidMsgType() error { return &FrameError{Reason: "InvalidMessageType"} }
func errUnknownMsgType(n int) error {
	return &FrameError{Reason: "UnknownMessageType", MessageType: n}
}
func errMissingFields(expected, got int) error {
	return &FrameError{Reason: "MissingFields", Expected: expected, Got: got}
}
func errFieldTypeMismatch(which string) error {
	return &FrameError{Reason: "FieldTypeMismatch", Which: which}
}

var emptyObject = json.RawMessage(`{}`)

// Parse decodes raw text into a Frame, or returns a *FrameError.
func Parse(text []byte) (*Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(text, &raw); err != nil {
		return nil, errInvalidJSON()
	}
	if len(raw) == 0 {
		return nil, errEmptyArray()
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		// element present but not a number
		var anyVal interface{}
		if jerr := json.Unmarshal(raw[0], &anyVal); jerr == nil {
			return nil, errInvalidMsgType()
		}
		return nil, errInvalidJSON()
	}

	switch Kind(msgType) {
	case Call:
		return parseCall(raw)
	case CallResult:
		return parseCallResult(raw)
	case CallError:
		return parseCallError(raw)
	default:
		return nil, errUnknownMsgType(msgType)
	}
}

func parseUniqueID(raw []json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw[1], &id); err != nil {
		return "", errFieldTypeMismatch("uniqueId")
	}
	return id, nil
}

func parseCall(raw []json.RawMessage) (*Frame, error) {
	if len(raw) != 4 {
		return nil, errMissingFields(4, len(raw))
	}
	id, err := parseUniqueID(raw)
	if err != nil {
		return nil, err
	}
	var action string
	if err := json.Unmarshal(raw[2], &action); err != nil {
		return nil, errFieldTypeMismatch("action")
	}
	payload := raw[3]
	if len(payload) == 0 {
		payload = emptyObject
	}
	return &Frame{Kind: Call, UniqueID: id, Action: action, Payload: payload}, nil
}

func parseCallResult(raw []json.RawMessage) (*Frame, error) {
	if len(raw) != 3 {
		return nil, errMissingFields(3, len(raw))
	}
	id, err := parseUniqueID(raw)
	if err != nil {
		return nil, err
	}
	payload := raw[2]
	if len(payload) == 0 {
		payload = emptyObject
	}
	return &Frame{Kind: CallResult, UniqueID: id, Payload: payload}, nil
}

func parseCallError(raw []json.RawMessage) (*Frame, error) {
	if len(raw) != 4 && len(raw) != 5 {
		return nil, errMissingFields(4, len(raw))
	}
	id, err := parseUniqueID(raw)
	if err != nil {
		return nil, err
	}
	var code string
	if err := json.Unmarshal(raw[2], &code); err != nil {
		return nil, errFieldTypeMismatch("errorCode")
	}
	var desc string
	if err := json.Unmarshal(raw[3], &desc); err != nil {
		return nil, errFieldTypeMismatch("errorDescription")
	}
	details := emptyObject
	if len(raw) == 5 && len(raw[4]) > 0 {
		details = raw[4]
	}
	return &Frame{Kind: CallError, UniqueID: id, ErrorCode: code, ErrorDesc: desc, ErrorDetail: details}, nil
}

// Serialize encodes a Frame back into its OCPP-J wire array form.
func Serialize(f *Frame) ([]byte, error) {
	switch f.Kind {
	case Call:
		payload := f.Payload
		if len(payload) == 0 {
			payload = emptyObject
		}
		return json.Marshal([]interface{}{int(Call), f.UniqueID, f.Action, json.RawMessage(payload)})
	case CallResult:
		payload := f.Payload
		if len(payload) == 0 {
			payload = emptyObject
		}
		return json.Marshal([]interface{}{int(CallResult), f.UniqueID, json.RawMessage(payload)})
	case CallError:
		details := f.ErrorDetail
		if len(details) == 0 {
			details = emptyObject
		}
		return json.Marshal([]interface{}{int(CallError), f.UniqueID, f.ErrorCode, f.ErrorDesc, json.RawMessage(details)})
	default:
		return nil, fmt.Errorf("ocppframe: unknown frame kind %d", f.Kind)
	}
}

// ErrorResponse builds a CallError frame with empty details, the standard
// shape for replying to a failed or unrecognized Call.
func ErrorResponse(uniqueID, code, description string) *Frame {
	return &Frame{
		Kind:        CallError,
		UniqueID:    uniqueID,
		ErrorCode:   code,
		ErrorDesc:   description,
		ErrorDetail: emptyObject,
	}
}

// NewCall builds a Call frame ready for serialization.
func NewCall(uniqueID, action string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Kind: Call, UniqueID: uniqueID, Action: action, Payload: data}, nil
}

// NewCallResult builds a CallResult frame ready for serialization.
func NewCallResult(uniqueID string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Kind: CallResult, UniqueID: uniqueID, Payload: data}, nil
}

package command

// Availability is the shared CS->CP availability value object (spec §9:
// "a shared value object for common semantics").
type Availability string

const (
	AvailabilityOperative   Availability = "Operative"
	AvailabilityInoperative Availability = "Inoperative"
)

// ResetKind is the shared reset kind value object.
type ResetKind string

const (
	ResetSoft ResetKind = "Soft"
	ResetHard ResetKind = "Hard"
)

// TriggerType enumerates the messages a TriggerMessage can ask a CP to
// re-emit.
type TriggerType string

const (
	TriggerBootNotification       TriggerType = "BootNotification"
	TriggerHeartbeat              TriggerType = "Heartbeat"
	TriggerMeterValues            TriggerType = "MeterValues"
	TriggerStatusNotification     TriggerType = "StatusNotification"
	TriggerDiagnosticsStatus      TriggerType = "DiagnosticsStatusNotification"
	TriggerFirmwareStatus         TriggerType = "FirmwareStatusNotification"
)

// KeyValue is a single configuration entry (v1.6 GetConfiguration result).
type KeyValue struct {
	Key      string `json:"key"`
	ReadOnly bool   `json:"readonly"`
	Value    string `json:"value,omitempty"`
}

// LocalAuthEntry is one entry of a v1.6 SendLocalList update.
type LocalAuthEntry struct {
	IdTag       string `json:"idTag"`
	Status      string `json:"status,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	ParentIdTag string `json:"parentIdTag,omitempty"`
}

// Result is the outcome of a dispatcher call: the raw status string the
// CP reported, plus the full reply payload for verbs that return more
// than a status (e.g. GetConfiguration, GetVariables).
type Result struct {
	Status  string
	Payload map[string]interface{}
}

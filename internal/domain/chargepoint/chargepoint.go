// Package chargepoint models the ChargePoint and Connector aggregates
// from spec §3, adapted from the teacher's internal/domain/device model
// into the CSMS's simpler, boot/heartbeat/status-driven lifecycle.
package chargepoint

import (
	"fmt"
	"sync"
	"time"
)

// Status is the overall ChargePoint status.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
	StatusUnknown Status = "Unknown"
)

// ConnectorStatus is the OCPP connector status enumeration (spec §6).
type ConnectorStatus string

const (
	ConnectorAvailable     ConnectorStatus = "Available"
	ConnectorPreparing     ConnectorStatus = "Preparing"
	ConnectorCharging      ConnectorStatus = "Charging"
	ConnectorSuspendedEV   ConnectorStatus = "SuspendedEV"
	ConnectorSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	ConnectorFinishing     ConnectorStatus = "Finishing"
	ConnectorReserved      ConnectorStatus = "Reserved"
	ConnectorUnavailable   ConnectorStatus = "Unavailable"
	ConnectorFaulted       ConnectorStatus = "Faulted"
)

// Connector belongs to exactly one ChargePoint. Connector ids are >= 1;
// id 0 is reserved for station-wide status and is never stored here.
type Connector struct {
	ID         int
	Status     ConnectorStatus
	ErrorCode  string
	ErrorInfo  string
	VendorCode string
}

// ChargePoint is the station aggregate (spec §3).
type ChargePoint struct {
	mu sync.RWMutex

	ID       string
	Version  string // negotiated OCPP version label, empty if never connected
	Vendor   string
	Model    string
	Serial   string
	Firmware string
	ICCID    string
	IMSI     string
	MeterType   string
	MeterSerial string

	Status            Status
	SupportedFeatureProfiles []string

	connectors map[int]*Connector
	order      []int // insertion order, for a stable ordered list

	RegisteredAt  time.Time
	LastHeartbeat time.Time

	PasswordHash string // empty means Basic-Auth is not required for this CP

	report componentReport
}

// ReportedComponent is one component/variable pair out of a v2.x
// NotifyReport, as reported by GetBaseReport/GetReport (OCPP 2.0.1 part 2).
type ReportedComponent struct {
	Component string
	Variable  string
	Value     string
}

// componentReport holds the most recent NotifyReport assembly, keyed by
// the CP-chosen requestId so a multi-part report (tbc=true across several
// messages) accumulates into one set. It records no completion state.
type componentReport struct {
	requestID  int
	components []ReportedComponent
	generated  time.Time
}

// BeginReport starts (or restarts) accumulating a NotifyReport under
// requestID, discarding any stale components from a previous request.
func (cp *ChargePoint) BeginReport(requestID int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.report.requestID != requestID {
		cp.report = componentReport{requestID: requestID}
	}
}

// AppendReportComponents adds one NotifyReport message's components to
// the accumulating report for requestID. generatedAt is recorded on each
// call so the final timestamp reflects the last part received.
func (cp *ChargePoint) AppendReportComponents(requestID int, components []ReportedComponent, generatedAt time.Time) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.report.requestID != requestID {
		cp.report = componentReport{requestID: requestID}
	}
	cp.report.components = append(cp.report.components, components...)
	cp.report.generated = generatedAt
}

// LatestReport returns a snapshot of the most recently assembled
// NotifyReport's components.
func (cp *ChargePoint) LatestReport() (requestID int, components []ReportedComponent, generatedAt time.Time) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	out := make([]ReportedComponent, len(cp.report.components))
	copy(out, cp.report.components)
	return cp.report.requestID, out, cp.report.generated
}

// New creates a ChargePoint in Unknown status with no connectors.
func New(id string) *ChargePoint {
	return &ChargePoint{
		ID:           id,
		Status:       StatusUnknown,
		connectors:   make(map[int]*Connector),
		RegisteredAt: time.Now(),
	}
}

// MarkOnline sets the overall status to Online and updates last_heartbeat,
// per the invariant in spec §3 ("setting online updates last_heartbeat").
func (cp *ChargePoint) MarkOnline() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.Status = StatusOnline
	cp.LastHeartbeat = time.Now()
}

// MarkOffline sets the overall status to Offline without touching
// last_heartbeat.
func (cp *ChargePoint) MarkOffline() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.Status = StatusOffline
}

// RecordHeartbeat updates last_heartbeat to now.
func (cp *ChargePoint) RecordHeartbeat() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.LastHeartbeat = time.Now()
}

// EnsureConnectors guarantees connectors 1..n exist, creating any missing
// ones in Available status. Used by BootNotification-triggered setup and
// is idempotent: existing connectors are left untouched.
func (cp *ChargePoint) EnsureConnectors(n int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for i := 1; i <= n; i++ {
		cp.ensureConnectorLocked(i)
	}
}

// EnsureConnector returns the Connector with the given id, creating it in
// Available status if unseen. connectorID 0 is rejected by the caller
// before this is reached (spec §3: 0 targets the station as a whole).
func (cp *ChargePoint) EnsureConnector(connectorID int) *Connector {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.ensureConnectorLocked(connectorID)
}

func (cp *ChargePoint) ensureConnectorLocked(connectorID int) *Connector {
	if c, ok := cp.connectors[connectorID]; ok {
		return c
	}
	c := &Connector{ID: connectorID, Status: ConnectorAvailable}
	cp.connectors[connectorID] = c
	cp.order = append(cp.order, connectorID)
	return c
}

// Connector returns the connector with the given id, if it exists.
func (cp *ChargePoint) Connector(connectorID int) (*Connector, bool) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	c, ok := cp.connectors[connectorID]
	return c, ok
}

// Connectors returns a snapshot of all connectors in insertion order.
func (cp *ChargePoint) Connectors() []*Connector {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	out := make([]*Connector, 0, len(cp.order))
	for _, id := range cp.order {
		out = append(out, cp.connectors[id])
	}
	return out
}

// UpdateConnectorStatus sets a connector's status/error fields, creating
// the connector if unseen (spec §4.5 StatusNotification contract).
func (cp *ChargePoint) UpdateConnectorStatus(connectorID int, status ConnectorStatus, errorCode, errorInfo, vendorCode string) *Connector {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	c := cp.ensureConnectorLocked(connectorID)
	c.Status = status
	c.ErrorCode = errorCode
	c.ErrorInfo = errorInfo
	c.VendorCode = vendorCode
	return c
}

// Snapshot returns a value copy of the scalar fields (connectors,
// SupportedFeatureProfiles and the report are not copied), safe to read
// without holding the ChargePoint's lock afterward.
func (cp *ChargePoint) Snapshot() ChargePoint {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return ChargePoint{
		ID:            cp.ID,
		Version:       cp.Version,
		Vendor:        cp.Vendor,
		Model:         cp.Model,
		Serial:        cp.Serial,
		Firmware:      cp.Firmware,
		ICCID:         cp.ICCID,
		IMSI:          cp.IMSI,
		MeterType:     cp.MeterType,
		MeterSerial:   cp.MeterSerial,
		Status:        cp.Status,
		RegisteredAt:  cp.RegisteredAt,
		LastHeartbeat: cp.LastHeartbeat,
		PasswordHash:  cp.PasswordHash,
	}
}

// HeartbeatClass classifies a ChargePoint by how long it has been since
// its last heartbeat, for the background heartbeat monitor (spec §4.6).
type HeartbeatClass string

const (
	HeartbeatOnline  HeartbeatClass = "Online"
	HeartbeatOffline HeartbeatClass = "Offline"
	HeartbeatStale   HeartbeatClass = "Stale"
)

// ClassifyHeartbeat compares elapsed time since last heartbeat against a
// staleness threshold.
func ClassifyHeartbeat(lastHeartbeat time.Time, now time.Time, staleThreshold time.Duration) HeartbeatClass {
	if lastHeartbeat.IsZero() {
		return HeartbeatOffline
	}
	elapsed := now.Sub(lastHeartbeat)
	if elapsed > staleThreshold {
		return HeartbeatStale
	}
	return HeartbeatOnline
}

// ValidateConnectorID enforces the spec §3 invariant that stored
// connector ids are >= 1.
func ValidateConnectorID(id int) error {
	if id < 1 {
		return fmt.Errorf("chargepoint: connector id must be >= 1, got %d", id)
	}
	return nil
}

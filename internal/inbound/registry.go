package inbound

import "github.com/ocpp-csms/central-system/internal/ocppversion"

// SupportedActions lists the Call actions this CSMS will accept from a
// charge point at the given negotiated version, for introspection; no
// other package calls it (the health endpoint and the WebSocket layer do
// not consult it). Grounded on the
// teacher's gateway dispatcher's version->adapter map
// (internal/gateway/dispatcher.go), reduced here to a version->action-set
// lookup since HandleMessage itself does the real routing.
func SupportedActions(version ocppversion.Version) []string {
	actions := make([]string, 0, len(sharedActions)+len(v16Actions)+len(v2Actions))
	for action := range sharedActions {
		actions = append(actions, action)
	}
	if version.IsV2() {
		for action := range v2Actions {
			actions = append(actions, action)
		}
		return actions
	}
	for action := range v16Actions {
		actions = append(actions, action)
	}
	return actions
}

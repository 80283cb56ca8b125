package inbound

// actionError carries an OCPP CallError code/description pair back to the
// adapter, which turns it into a [4,...] frame instead of a [3,...] one.
type actionError struct {
	Code        string
	Description string
}

func (e *actionError) Error() string { return e.Code + ": " + e.Description }

func notImplemented(action string) *actionError {
	return &actionError{Code: "NotImplemented", Description: "unsupported action: " + action}
}

func formationViolation(detail string) *actionError {
	return &actionError{Code: "FormationViolation", Description: detail}
}

func internalError(detail string) *actionError {
	return &actionError{Code: "InternalError", Description: detail}
}

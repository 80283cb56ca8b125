// Package validation wraps go-playground/validator with the struct-tag
// rules the inbound action handlers and the WebSocket upgrade path apply
// to wire-level data: OCPP id tokens, connector ids, timestamps, and
// connector status values. Adapted from the teacher's
// internal/domain/validation.Validator (OCPP message/payload validator),
// trimmed to the checks this CSMS's handlers actually call — the message
// envelope and action-name checks it also carried are redundant with
// internal/ocppframe's frame parsing and internal/inbound's handler
// lookup table, so they were dropped rather than kept unused.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validator validates inbound OCPP wire structs against struct tags,
// including the custom ocpp_* tags registered below.
type Validator struct {
	validate *validator.Validate
}

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string { return e.Message }

// ValidationErrors collects every failed field from one ValidateStruct call.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator builds a Validator with the OCPP custom tags registered.
func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterValidation("ocpp_datetime", validateOCPPDateTime)
	validate.RegisterValidation("ocpp_id_token", validateOCPPIdToken)
	validate.RegisterValidation("ocpp_connector_id", validateOCPPConnectorID)
	validate.RegisterValidation("ocpp_status", validateOCPPStatus)
	return &Validator{validate: validate}
}

// ValidateStruct runs struct-tag validation and translates failures into
// ValidationErrors. A nil return means s passed every rule.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var out ValidationErrors
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			out = append(out, ValidationError{
				Field:   fe.Field(),
				Tag:     fe.Tag(),
				Value:   fmt.Sprintf("%v", fe.Value()),
				Message: errorMessage(fe),
			})
		}
	}
	return out
}

// ValidateChargePointID checks the identifier a charge point presents on
// WebSocket upgrade, before it is allowed to register a session.
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	if chargePointID == "" {
		return ValidationError{Field: "chargePointId", Tag: "required", Message: "charge point id is required"}
	}
	if len(chargePointID) > 48 {
		return ValidationError{Field: "chargePointId", Tag: "max", Value: chargePointID, Message: "charge point id must not exceed 48 characters"}
	}
	if matched, _ := regexp.MatchString(`^[a-zA-Z0-9_.\-]+$`, chargePointID); !matched {
		return ValidationError{Field: "chargePointId", Tag: "format", Value: chargePointID, Message: "charge point id can only contain alphanumerics, '-', '_', and '.'"}
	}
	return nil
}

func validateOCPPDateTime(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

func validateOCPPIdToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if len(value) > 20 {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9]+$`, value)
	return matched
}

func validateOCPPConnectorID(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= 0
}

func validateOCPPStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	validStatuses := map[string]bool{
		"Available": true, "Preparing": true, "Charging": true,
		"SuspendedEVSE": true, "SuspendedEV": true, "Finishing": true,
		"Reserved": true, "Unavailable": true, "Faulted": true,
	}
	return validStatuses[value]
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must not exceed %s", fe.Field(), fe.Param())
	case "ocpp_datetime":
		return fmt.Sprintf("field '%s' must be a valid RFC3339 datetime", fe.Field())
	case "ocpp_id_token":
		return fmt.Sprintf("field '%s' must be a valid id token (max 20 alphanumeric characters)", fe.Field())
	case "ocpp_connector_id":
		return fmt.Sprintf("field '%s' must be a valid connector id (>= 0)", fe.Field())
	case "ocpp_status":
		return fmt.Sprintf("field '%s' must be a valid OCPP connector status", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

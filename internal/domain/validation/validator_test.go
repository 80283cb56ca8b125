package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewValidator(t *testing.T) {
	v := NewValidator()
	assert.NotNil(t, v)
	assert.NotNil(t, v.validate)
}

func TestValidateChargePointID(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name          string
		chargePointID string
		wantErr       bool
	}{
		{"valid id", "CP001", false},
		{"valid id with hyphen and dot", "cp-001.site1", false},
		{"empty id", "", true},
		{"id too long", string(make([]byte, 49)), true},
		{"invalid characters", "CP@001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateChargePointID(tt.chargePointID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateStructRequiredField(t *testing.T) {
	v := NewValidator()

	type bootRequest struct {
		ChargePointVendor string `validate:"required"`
		ChargePointModel  string `validate:"required"`
	}

	err := v.ValidateStruct(bootRequest{ChargePointVendor: "Acme", ChargePointModel: "X1"})
	assert.NoError(t, err)

	err = v.ValidateStruct(bootRequest{ChargePointVendor: "", ChargePointModel: "X1"})
	assert.Error(t, err)

	validationErrors, ok := err.(ValidationErrors)
	assert.True(t, ok)
	assert.Len(t, validationErrors, 1)
	assert.Equal(t, "ChargePointVendor", validationErrors[0].Field)
	assert.Equal(t, "required", validationErrors[0].Tag)
}

func TestCustomValidations(t *testing.T) {
	v := NewValidator()

	type testStruct struct {
		DateTime    string `validate:"ocpp_datetime"`
		IdToken     string `validate:"ocpp_id_token"`
		ConnectorID int    `validate:"ocpp_connector_id"`
		Status      string `validate:"ocpp_status"`
	}

	tests := []struct {
		name    string
		data    testStruct
		wantErr bool
	}{
		{
			name: "valid data",
			data: testStruct{
				DateTime:    time.Now().Format(time.RFC3339),
				IdToken:     "RFID123456",
				ConnectorID: 1,
				Status:      "Available",
			},
			wantErr: false,
		},
		{
			name: "invalid datetime",
			data: testStruct{DateTime: "not-a-date", IdToken: "RFID123456", ConnectorID: 1, Status: "Available"},
			wantErr: true,
		},
		{
			name: "invalid id token",
			data: testStruct{DateTime: time.Now().Format(time.RFC3339), IdToken: "RFID@123456", ConnectorID: 1, Status: "Available"},
			wantErr: true,
		},
		{
			name: "invalid connector id",
			data: testStruct{DateTime: time.Now().Format(time.RFC3339), IdToken: "RFID123456", ConnectorID: -1, Status: "Available"},
			wantErr: true,
		},
		{
			name: "invalid status",
			data: testStruct{DateTime: time.Now().Format(time.RFC3339), IdToken: "RFID123456", ConnectorID: 1, Status: "NotAStatus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Field: "testField", Tag: "required", Message: "field is required"}
	assert.Equal(t, "field is required", err.Error())
}

func TestValidationErrors(t *testing.T) {
	errs := ValidationErrors{
		{Field: "field1", Message: "error 1"},
		{Field: "field2", Message: "error 2"},
	}
	assert.Equal(t, "error 1; error 2", errs.Error())
}

package ocppframe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallScenario(t *testing.T) {
	text := []byte(`[2,"abc","BootNotification",{"chargePointVendor":"V","chargePointModel":"M"}]`)
	f, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, Call, f.Kind)
	assert.Equal(t, "abc", f.UniqueID)
	assert.Equal(t, "BootNotification", f.Action)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(f.Payload, &payload))
	assert.Equal(t, "V", payload["chargePointVendor"])
	assert.Equal(t, "M", payload["chargePointModel"])
}

func TestParseCallErrorScenario(t *testing.T) {
	text := []byte(`[4,"abc","NotImplemented","X",{}]`)
	f, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, CallError, f.Kind)
	assert.Equal(t, "NotImplemented", f.ErrorCode)
}

func TestParseEmptyArray(t *testing.T) {
	_, err := Parse([]byte(`[]`))
	require.Error(t, err)
	fe, ok := err.(*FrameError)
	require.True(t, ok)
	assert.Equal(t, "EmptyArray", fe.Reason)
}

func TestParseUnknownMessageType(t *testing.T) {
	_, err := Parse([]byte(`[99,"id"]`))
	require.Error(t, err)
	fe, ok := err.(*FrameError)
	require.True(t, ok)
	assert.Equal(t, "UnknownMessageType", fe.Reason)
	assert.Equal(t, 99, fe.MessageType)
}

func TestParseFieldTypeMismatch(t *testing.T) {
	_, err := Parse([]byte(`[2,42,"a",{}]`))
	require.Error(t, err)
	fe, ok := err.(*FrameError)
	require.True(t, ok)
	assert.Equal(t, "FieldTypeMismatch", fe.Reason)
	assert.Equal(t, "uniqueId", fe.Which)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	require.Error(t, err)
	fe, ok := err.(*FrameError)
	require.True(t, ok)
	assert.Equal(t, "InvalidJson", fe.Reason)
}

func TestRoundTripAllKinds(t *testing.T) {
	cases := []*Frame{
		{Kind: Call, UniqueID: "1", Action: "Heartbeat", Payload: json.RawMessage(`{}`)},
		{Kind: CallResult, UniqueID: "1", Payload: json.RawMessage(`{"currentTime":"2024-01-01T00:00:00Z"}`)},
		{Kind: CallError, UniqueID: "1", ErrorCode: "NotImplemented", ErrorDesc: "X", ErrorDetail: json.RawMessage(`{}`)},
	}
	for _, f := range cases {
		data, err := Serialize(f)
		require.NoError(t, err)
		got, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, f.Kind, got.Kind)
		assert.Equal(t, f.UniqueID, got.UniqueID)
		assert.Equal(t, f.Action, got.Action)
		assert.JSONEq(t, string(f.Payload), string(got.Payload))
	}
}

func TestErrorResponseHasEmptyDetails(t *testing.T) {
	f := ErrorResponse("abc", "FormationViolation", "bad frame")
	assert.JSONEq(t, "{}", string(f.ErrorDetail))
	data, err := Serialize(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), "FormationViolation")
}

func TestEmptyPayloadDefaultsToObject(t *testing.T) {
	f, err := Parse([]byte(`[2,"1","Heartbeat"]`))
	assert.Error(t, err)
	assert.Nil(t, f)

	f2, err := Parse([]byte(`[2,"1","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(f2.Payload))
}

package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleResponse_Success(t *testing.T) {
	response := NewResponseMessage("req-1", true, json.RawMessage(`{"uptime":42}`))

	data, err := HandleResponse(response, "req-1")
	require.NoError(t, err, "a matching successful response should pass")
	assert.JSONEq(t, `{"uptime":42}`, string(data))
}

func TestHandleResponse_WrongType(t *testing.T) {
	_, err := HandleResponse(NewPingMessage(), "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected response message")
}

func TestHandleResponse_WrongRequest(t *testing.T) {
	response := NewResponseMessage("req-2", true, json.RawMessage(`{}`))

	_, err := HandleResponse(response, "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response for wrong request")
}

func TestHandleResponse_EmptyRequestIDMatches(t *testing.T) {
	// Servers may omit the request id; the response then answers the request
	// in flight
	response := NewMessage(MessageTypeResponse, json.RawMessage(`{"success":true,"data":{"ok":1}}`))

	data, err := HandleResponse(response, "req-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1}`, string(data))
}

func TestHandleResponse_Failure(t *testing.T) {
	response := NewMessage(MessageTypeResponse,
		json.RawMessage(`{"request_id":"req-1","success":false,"message":"no such command"}`))

	_, err := HandleResponse(response, "req-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "no such command")
}

func TestHandleResponse_FailureWithoutMessage(t *testing.T) {
	response := NewMessage(MessageTypeResponse, json.RawMessage(`{"request_id":"req-1","success":false}`))

	_, err := HandleResponse(response, "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown error")
}

func TestHandleResponse_MissingSuccessIsSuccess(t *testing.T) {
	response := NewMessage(MessageTypeResponse, json.RawMessage(`{"request_id":"req-1","data":{"state":"on"}}`))

	data, err := HandleResponse(response, "req-1")
	require.NoError(t, err, "an absent success field should count as success")
	assert.JSONEq(t, `{"state":"on"}`, string(data))
}

func TestHandleResponse_MissingDataYieldsEmptyDocument(t *testing.T) {
	response := NewMessage(MessageTypeResponse, json.RawMessage(`{"request_id":"req-1","success":true}`))

	data, err := HandleResponse(response, "req-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestHandleResponse_MalformedPayload(t *testing.T) {
	response := NewMessage(MessageTypeResponse, json.RawMessage(`{"success":"yes"}`))

	_, err := HandleResponse(response, "req-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

package protocol

import (
	"encoding/json"
)

// HandleResponse validates a response message against the request that
// produced it and extracts its data document.
//
// A message of the wrong type or correlated with a different request is a
// generic protocol error. A payload reporting success=false becomes a server
// error carrying the server's message. A payload without a success field is
// taken as successful, and a missing data field yields an empty document.
func HandleResponse(response *Message, requestID string) (json.RawMessage, error) {
	if response.Type != MessageTypeResponse {
		return nil, Otherf("expected response message, got %s", response.Type)
	}

	var payload struct {
		RequestID string          `json:"request_id"`
		Success   *bool           `json:"success"`
		Message   string          `json:"message"`
		Data      json.RawMessage `json:"data"`
	}
	if err := response.DecodePayload(&payload); err != nil {
		return nil, err
	}

	if payload.RequestID != "" && payload.RequestID != requestID {
		return nil, Otherf("response for wrong request: expected %s, got %s", requestID, payload.RequestID)
	}

	if payload.Success != nil && !*payload.Success {
		message := payload.Message
		if message == "" {
			message = "Unknown error"
		}
		return nil, NewProtocolError(ErrorCodeServerError, message, ErrServerError)
	}

	if payload.Data == nil {
		return json.RawMessage(`{}`), nil
	}
	return payload.Data, nil
}

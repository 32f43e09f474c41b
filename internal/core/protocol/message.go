package protocol

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MessageType tags a Message with its payload shape. The wire form is the
// lowercase token.
type MessageType string

const (
	MessageTypeAuth     MessageType = "auth"
	MessageTypeCommand  MessageType = "command"
	MessageTypeResponse MessageType = "response"
	MessageTypeEvent    MessageType = "event"
	MessageTypeError    MessageType = "error"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
)

// ParseMessageType converts a wire token into a MessageType. Unknown tokens
// are an error, never a silent default.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case MessageTypeAuth, MessageTypeCommand, MessageTypeResponse,
		MessageTypeEvent, MessageTypeError, MessageTypePing, MessageTypePong:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownMessageType, "%q", s)
	}
}

// String returns the wire token.
func (t MessageType) String() string {
	return string(t)
}

// UnmarshalJSON rejects unknown type tokens during decode.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ByteArray is a byte slice that serializes as a JSON array of integers
// instead of a base64 string, matching the wire convention for binary
// credential material.
type ByteArray []byte

// MarshalJSON implements json.Marshaler.
func (b ByteArray) MarshalJSON() ([]byte, error) {
	out := make([]byte, 0, len(b)*4+2)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	out = append(out, ']')
	return out, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return errors.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Message is the unit of protocol exchange. ID is assigned at construction
// and never changes; requests and responses correlate on it.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewMessage creates a Message with a fresh ID and the current timestamp.
// The payload must already be encoded.
func NewMessage(messageType MessageType, payload json.RawMessage) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      messageType,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
}

// NewAuthMessage builds an auth message carrying raw credential bytes.
func NewAuthMessage(username string, credentials []byte, method string) *Message {
	return NewMessage(MessageTypeAuth, encodePayload(AuthPayload{
		Username:    username,
		Credentials: mustRaw(ByteArray(credentials)),
		Method:      method,
	}, nil))
}

// NewCommandMessage builds a command message. Params must already be encoded.
func NewCommandMessage(command string, params json.RawMessage) *Message {
	return NewMessage(MessageTypeCommand, encodePayload(CommandPayload{
		Command: command,
		Params:  params,
	}, params))
}

// NewResponseMessage builds a response message. Data must already be encoded.
func NewResponseMessage(requestID string, success bool, data json.RawMessage) *Message {
	return NewMessage(MessageTypeResponse, encodePayload(ResponsePayload{
		RequestID: requestID,
		Success:   success,
		Data:      data,
	}, data))
}

// NewEventMessage builds an event message. Data must already be encoded.
func NewEventMessage(event string, data json.RawMessage) *Message {
	return NewMessage(MessageTypeEvent, encodePayload(EventPayload{
		Event: event,
		Data:  data,
	}, data))
}

// NewErrorMessage builds an error message. An empty requestID means the error
// is not correlated with a request.
func NewErrorMessage(requestID string, code uint32, message string) *Message {
	return NewMessage(MessageTypeError, encodePayload(ErrorPayload{
		RequestID: requestID,
		Code:      code,
		Message:   message,
	}, nil))
}

// NewPingMessage builds a ping message with an empty payload.
func NewPingMessage() *Message {
	return NewMessage(MessageTypePing, json.RawMessage(`{}`))
}

// NewPongMessage builds a pong message answering the ping with the given ID.
func NewPongMessage(pingID string) *Message {
	return NewMessage(MessageTypePong, encodePayload(PongPayload{PingID: pingID}, nil))
}

// DecodePayload unmarshals the message payload into v.
func (m *Message) DecodePayload(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return NewProtocolError(ErrorCodeMalformedPayload,
			"failed to decode "+m.Type.String()+" payload", err)
	}
	return nil
}

// AuthPayload is the payload of an auth message. Credentials stays raw
// because its encoding is method-dependent (a string for password and psk,
// a byte array for native and signature methods).
type AuthPayload struct {
	Username    string          `json:"username,omitempty"`
	Credentials json.RawMessage `json:"credentials"`
	Method      string          `json:"method"`
	OS          string          `json:"os,omitempty"`
}

// CommandPayload is the payload of a command message.
type CommandPayload struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params"`
}

// ResponsePayload is the payload of a response message.
type ResponsePayload struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Code      uint32 `json:"code"`
	Message   string `json:"message"`
}

// EventPayload is the payload of an event message. Event names route
// dispatcher subscriptions.
type EventPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PongPayload is the payload of a pong message.
type PongPayload struct {
	PingID string `json:"ping_id"`
}

// encodePayload marshals a typed payload. The marshal can only fail when a
// caller-supplied fragment inside v is not valid JSON; the fragment is then
// kept as the payload so the codec refuses the message at encode time
// instead of sending null.
func encodePayload(v any, fragment json.RawMessage) json.RawMessage {
	payload, err := json.Marshal(v)
	if err != nil {
		return fragment
	}
	return payload
}

func mustRaw(v json.Marshaler) json.RawMessage {
	data, _ := v.MarshalJSON()
	return data
}

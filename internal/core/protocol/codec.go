package protocol

import (
	"encoding/json"
)

// Codec turns a Message into its wire body and back. The length-prefix
// framing around the body belongs to the connection, not the codec.
type Codec interface {
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// JSONCodec implements the Codec interface using the JSON format.
// It's simple and human-readable, but can be replaced with a more
// performant binary codec like Protocol Buffers or MessagePack.
type JSONCodec struct{}

// NewJSONCodec creates a JSONCodec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode converts a Message into a JSON byte slice.
func (c *JSONCodec) Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, NewProtocolError(ErrorCodeMalformedPayload, "failed to encode message", err)
	}
	return data, nil
}

// Decode converts a JSON byte slice back into a Message. A structurally
// invalid body yields a MalformedPayload error, never a panic.
func (c *JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, NewProtocolError(ErrorCodeMalformedPayload, "failed to decode message", err)
	}
	if msg.ID == "" || msg.Type == "" {
		return nil, NewProtocolError(ErrorCodeMalformedPayload, "message missing required fields", ErrMalformedPayload)
	}
	return &msg, nil
}

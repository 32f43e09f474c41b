package websocket

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

var _ protocol.Connection = (*Connection)(nil)

// Connection adapts a WebSocket endpoint to the protocol.Connection
// interface. Message boundaries come from the WebSocket framing itself, so
// bodies travel without a length prefix.
type Connection struct {
	id     string
	conn   *websocket.Conn
	codec  protocol.Codec
	config protocol.Config

	closed int32

	// Metrics
	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex
}

// NewConnection wraps an established WebSocket connection. A nil codec
// defaults to JSON.
func NewConnection(conn *websocket.Conn, codec protocol.Codec, config protocol.Config) *Connection {
	if codec == nil {
		codec = protocol.NewJSONCodec()
	}
	return &Connection{
		id:     uuid.New().String(),
		conn:   conn,
		codec:  codec,
		config: config.WithDefaults(),
	}
}

// Dial connects to a ws:// or wss:// URL and wraps the result.
func Dial(ctx context.Context, url string, config protocol.Config) (*Connection, error) {
	config = config.WithDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: config.DialTimeout}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeDialFailed, "failed to dial "+url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return NewConnection(conn, nil, config), nil
}

// ID returns the connection ID
func (c *Connection) ID() string {
	return c.id
}

// LocalAddr returns the local network address
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendMessage encodes msg and writes it as one binary WebSocket message.
func (c *Connection) SendMessage(msg *protocol.Message) error {
	if c.IsClosed() {
		return protocol.ErrConnectionClosed
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	if c.config.MaxMessageSize > 0 && uint32(len(data)) > c.config.MaxMessageSize {
		return errors.Wrapf(protocol.ErrFrameTooLarge, "message size %d exceeds limit %d", len(data), c.config.MaxMessageSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err = c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return protocol.NewProtocolError(protocol.ErrorCodeTransportFailed, "failed to write message", err)
	}

	atomic.AddUint64(&c.messagesSent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(len(data)))

	return nil
}

// ReceiveMessage reads one WebSocket message and decodes it.
func (c *Connection) ReceiveMessage() (*protocol.Message, error) {
	if c.IsClosed() {
		return nil, protocol.ErrConnectionClosed
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeTransportFailed, "failed to read message", err)
	}

	// Only text and binary frames carry protocol messages
	if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeMalformedPayload, "unsupported websocket frame type", protocol.ErrMalformedPayload)
	}

	if c.config.MaxMessageSize > 0 && uint32(len(data)) > c.config.MaxMessageSize {
		return nil, errors.Wrapf(protocol.ErrFrameTooLarge, "message size %d exceeds limit %d", len(data), c.config.MaxMessageSize)
	}

	msg, err := c.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&c.messagesReceived, 1)
	atomic.AddUint64(&c.bytesReceived, uint64(len(data)))

	return msg, nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close sends a close frame and closes the underlying connection.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}

	c.writeMu.Lock()
	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection closed")
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// Metrics returns a snapshot of the connection counters.
func (c *Connection) Metrics() protocol.ConnectionMetrics {
	return protocol.ConnectionMetrics{
		MessagesSent:     atomic.LoadUint64(&c.messagesSent),
		MessagesReceived: atomic.LoadUint64(&c.messagesReceived),
		BytesSent:        atomic.LoadUint64(&c.bytesSent),
		BytesReceived:    atomic.LoadUint64(&c.bytesReceived),
	}
}

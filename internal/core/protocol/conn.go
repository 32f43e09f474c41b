package protocol

import (
	"bytes"
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/pkg/generic"
)

// Connection is a framed, message-oriented transport endpoint. Implementations
// must allow one concurrent reader and one concurrent writer without
// corrupting the stream.
type Connection interface {
	ID() string
	SendMessage(msg *Message) error
	ReceiveMessage() (*Message, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	IsClosed() bool
	Close() error
	Metrics() ConnectionMetrics
}

// ConnectionMetrics holds counters for a single connection.
type ConnectionMetrics struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
}

var _ Connection = (*TCPConnection)(nil)

// TCPConnection frames messages over a TCP stream. Each frame is a 4-byte
// big-endian length prefix followed by exactly that many body bytes.
//
// Reads and writes are guarded by separate locks. TCP is full duplex, so the
// two directions never corrupt each other at the byte level; each lock only
// serializes whole-frame operations within its own direction.
type TCPConnection struct {
	id     string
	conn   net.Conn
	codec  Codec
	config Config

	readMu    sync.Mutex
	lengthBuf [4]byte

	writeMu sync.Mutex
	buffers *generic.Pool[*bytes.Buffer]

	closed       int32
	lastActivity int64

	// Metrics
	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64
}

// NewTCPConnection wraps an established TCP connection. A nil codec defaults
// to JSON.
func NewTCPConnection(conn net.Conn, codec Codec, config Config) *TCPConnection {
	if codec == nil {
		codec = NewJSONCodec()
	}
	return &TCPConnection{
		id:     uuid.New().String(),
		conn:   conn,
		codec:  codec,
		config: config.WithDefaults(),
		buffers: generic.NewHotPool(func() *bytes.Buffer {
			return new(bytes.Buffer)
		}, func(b *bytes.Buffer) {
			b.Reset()
		}, 2),
		lastActivity: time.Now().Unix(),
	}
}

// DialTCP connects to address:port and wraps the result in a TCPConnection.
func DialTCP(ctx context.Context, address string, port int, config Config) (*TCPConnection, error) {
	return dialTCP(ctx, address, port, nil, config)
}

func dialTCP(ctx context.Context, address string, port int, codec Codec, config Config) (*TCPConnection, error) {
	config = config.WithDefaults()
	dialer := net.Dialer{Timeout: config.DialTimeout}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, NewProtocolError(ErrorCodeDialFailed, "failed to dial "+addr, err)
	}

	return NewTCPConnection(conn, codec, config), nil
}

// ID returns the connection ID
func (c *TCPConnection) ID() string {
	return c.id
}

// LocalAddr returns the local network address
func (c *TCPConnection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address
func (c *TCPConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SendMessage encodes msg and writes one complete frame.
func (c *TCPConnection) SendMessage(msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}

	if c.config.MaxMessageSize > 0 && uint32(len(data)) > c.config.MaxMessageSize {
		return errors.Wrapf(ErrFrameTooLarge, "message size %d exceeds limit %d", len(data), c.config.MaxMessageSize)
	}

	// Assemble the frame in one buffer so the prefix and body hit the socket
	// in a single write.
	buf := c.buffers.Get()
	defer c.buffers.Put(buf)

	var prefix [4]byte
	prefix[0] = byte(len(data) >> 24)
	prefix[1] = byte(len(data) >> 16)
	prefix[2] = byte(len(data) >> 8)
	prefix[3] = byte(len(data))
	buf.Write(prefix[:])
	buf.Write(data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return NewProtocolError(ErrorCodeTransportFailed, "failed to write frame", err)
	}

	atomic.AddUint64(&c.messagesSent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(len(data)+4))
	atomic.StoreInt64(&c.lastActivity, time.Now().Unix())

	return nil
}

// ReceiveMessage reads one complete frame and decodes it. A short or slow
// peer makes this block until the declared length arrives; it never returns
// a partial message.
func (c *TCPConnection) ReceiveMessage() (*Message, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	// Read message length first (4 bytes)
	if _, err := io.ReadFull(c.conn, c.lengthBuf[:]); err != nil {
		return nil, NewProtocolError(ErrorCodeTransportFailed, "failed to read frame length", err)
	}

	messageLength := int(c.lengthBuf[0])<<24 | int(c.lengthBuf[1])<<16 | int(c.lengthBuf[2])<<8 | int(c.lengthBuf[3])

	if c.config.MaxMessageSize > 0 && uint32(messageLength) > c.config.MaxMessageSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "message size %d exceeds limit %d", messageLength, c.config.MaxMessageSize)
	}

	data := make([]byte, messageLength)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, NewProtocolError(ErrorCodeTransportFailed, "failed to read frame body", err)
	}

	msg, err := c.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&c.messagesReceived, 1)
	atomic.AddUint64(&c.bytesReceived, uint64(messageLength+4))
	atomic.StoreInt64(&c.lastActivity, time.Now().Unix())

	return msg, nil
}

// IsClosed checks if the connection is closed
func (c *TCPConnection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// LastActivity returns the time of the last send or receive.
func (c *TCPConnection) LastActivity() time.Time {
	return time.Unix(atomic.LoadInt64(&c.lastActivity), 0)
}

// Close closes the underlying connection. Closing unblocks any in-flight
// framed read, which is how the reader loop is released on shutdown.
func (c *TCPConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}
	return c.conn.Close()
}

// Metrics returns a snapshot of the connection counters.
func (c *TCPConnection) Metrics() ConnectionMetrics {
	return ConnectionMetrics{
		MessagesSent:     atomic.LoadUint64(&c.messagesSent),
		MessagesReceived: atomic.LoadUint64(&c.messagesReceived),
		BytesSent:        atomic.LoadUint64(&c.bytesSent),
		BytesReceived:    atomic.LoadUint64(&c.bytesReceived),
	}
}

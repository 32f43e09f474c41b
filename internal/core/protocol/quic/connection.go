package quic

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/rcpkit/rcpkit/internal/core/protocol"
	"github.com/rcpkit/rcpkit/pkg/generic"
)

// ALPN is the application protocol identifier negotiated during the QUIC
// handshake.
const ALPN = "rcp"

var _ protocol.Connection = (*Connection)(nil)

// Connection adapts a QUIC session to the protocol.Connection interface.
// All traffic flows over a single bidirectional stream carrying the same
// 4-byte length-prefixed frames as the TCP transport.
type Connection struct {
	id      string
	session *quic.Conn
	stream  *quic.Stream
	codec   protocol.Codec
	config  protocol.Config

	readMu    sync.Mutex
	lengthBuf [4]byte

	writeMu sync.Mutex
	buffers *generic.Pool[*bytes.Buffer]

	closed int32

	// Metrics
	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64
}

// NewConnection wraps an established QUIC session and its stream. A nil
// codec defaults to JSON.
func NewConnection(session *quic.Conn, stream *quic.Stream, codec protocol.Codec, config protocol.Config) *Connection {
	if codec == nil {
		codec = protocol.NewJSONCodec()
	}
	return &Connection{
		id:      uuid.New().String(),
		session: session,
		stream:  stream,
		codec:   codec,
		config:  config.WithDefaults(),
		buffers: generic.NewPoolWithReset(func() *bytes.Buffer {
			return new(bytes.Buffer)
		}, func(b *bytes.Buffer) {
			b.Reset()
		}),
	}
}

// Dial connects to address:port over QUIC and opens the session stream.
// A nil tlsConfig verifies the server against the system roots.
func Dial(ctx context.Context, address string, port int, tlsConfig *tls.Config, config protocol.Config) (*Connection, error) {
	config = config.WithDefaults()

	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{ALPN}
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  60 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	session, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeDialFailed, "failed to dial "+addr, err)
	}

	stream, err := session.OpenStreamSync(ctx)
	if err != nil {
		_ = session.CloseWithError(0, "failed to open stream")
		return nil, protocol.NewProtocolError(protocol.ErrorCodeDialFailed, "failed to open stream", err)
	}

	return NewConnection(session, stream, nil, config), nil
}

// ID returns the connection ID
func (c *Connection) ID() string {
	return c.id
}

// LocalAddr returns the local network address
func (c *Connection) LocalAddr() net.Addr {
	return c.session.LocalAddr()
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() net.Addr {
	return c.session.RemoteAddr()
}

// SendMessage encodes msg and writes one complete frame to the stream.
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

	if _, err := c.stream.Write(buf.Bytes()); err != nil {
		return protocol.NewProtocolError(protocol.ErrorCodeTransportFailed, "failed to write frame", err)
	}

	atomic.AddUint64(&c.messagesSent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(len(data)+4))

	return nil
}

// ReceiveMessage reads one complete frame from the stream and decodes it.
func (c *Connection) ReceiveMessage() (*protocol.Message, error) {
	if c.IsClosed() {
		return nil, protocol.ErrConnectionClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if _, err := io.ReadFull(c.stream, c.lengthBuf[:]); err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeTransportFailed, "failed to read frame length", err)
	}

	messageLength := int(c.lengthBuf[0])<<24 | int(c.lengthBuf[1])<<16 | int(c.lengthBuf[2])<<8 | int(c.lengthBuf[3])

	if c.config.MaxMessageSize > 0 && uint32(messageLength) > c.config.MaxMessageSize {
		return nil, errors.Wrapf(protocol.ErrFrameTooLarge, "message size %d exceeds limit %d", messageLength, c.config.MaxMessageSize)
	}

	data := make([]byte, messageLength)
	if _, err := io.ReadFull(c.stream, data); err != nil {
		return nil, protocol.NewProtocolError(protocol.ErrorCodeTransportFailed, "failed to read frame body", err)
	}

	msg, err := c.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&c.messagesReceived, 1)
	atomic.AddUint64(&c.bytesReceived, uint64(messageLength+4))

	return msg, nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close closes the stream and the session. Closing the session unblocks an
// in-flight framed read.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}

	_ = c.stream.Close()
	return c.session.CloseWithError(0, "connection closed")
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

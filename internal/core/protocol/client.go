package protocol

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

// ClientState tracks where a session is in its lifecycle.
type ClientState int32

const (
	StateConnected ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateAuthFailed
	StateClosed
)

// String returns a readable state name.
func (s ClientState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthFailed:
		return "auth_failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientOption configures a Client at construction.
type ClientOption func(*clientOptions)

type clientOptions struct {
	config      Config
	codec       Codec
	logger      log.Log
	confirmAuth bool
	confirmWait time.Duration
}

// WithConfig overrides the transport tuning values.
func WithConfig(config Config) ClientOption {
	return func(o *clientOptions) { o.config = config }
}

// WithCodec replaces the default JSON codec.
func WithCodec(codec Codec) ClientOption {
	return func(o *clientOptions) { o.codec = codec }
}

// WithLogger sets the logger for the client and its transport.
func WithLogger(logger log.Log) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithAuthConfirmation makes authentication wait up to timeout for a server
// response correlated with the auth request, instead of reporting success as
// soon as the message is on the wire.
func WithAuthConfirmation(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.confirmAuth = true
		o.confirmWait = timeout
	}
}

func applyOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		config:      DefaultConfig(),
		confirmWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Provide()
	}
	return o
}

var _ Session = (*Client)(nil)

// Client is the public session handle over one connection. It owns the
// transport queues; closing the client tears down the background loops.
type Client struct {
	transport *Transport
	logger    log.Log

	state  int32
	closed int32

	confirmAuth bool
	confirmWait time.Duration
}

// NewClient wraps an established connection in a session handle and starts
// its transport loops.
func NewClient(conn Connection, opts ...ClientOption) *Client {
	o := applyOptions(opts)
	return newClient(conn, o)
}

func newClient(conn Connection, o clientOptions) *Client {
	return &Client{
		transport:   NewTransport(conn, o.config, o.logger),
		logger:      o.logger.With(log.String("connection_id", conn.ID())),
		state:       int32(StateConnected),
		confirmAuth: o.confirmAuth,
		confirmWait: o.confirmWait,
	}
}

// Connect opens a TCP connection to address:port and returns a ready session.
// There is no retry here; retry policy belongs to the caller.
func Connect(ctx context.Context, address string, port int, opts ...ClientOption) (*Client, error) {
	o := applyOptions(opts)
	return connect(ctx, address, port, o)
}

// TLSConfig carries the certificate material for ConnectTLS.
type TLSConfig struct {
	ClientCert   string
	ClientKey    string
	VerifyServer bool
}

// ConnectTLS is the hook for an encrypted session. No TLS implementation is
// wired in yet, so it warns and falls back to a plaintext connection rather
// than labeling an unencrypted channel as secure.
func ConnectTLS(ctx context.Context, address string, port int, _ *TLSConfig, opts ...ClientOption) (*Client, error) {
	o := applyOptions(opts)
	o.logger.Warn("TLS support not yet implemented, using insecure connection")
	return connect(ctx, address, port, o)
}

func connect(ctx context.Context, address string, port int, o clientOptions) (*Client, error) {
	conn, err := dialTCP(ctx, address, port, o.codec, o.config)
	if err != nil {
		return nil, err
	}

	o.logger.Info("Connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.String("local_addr", conn.LocalAddr().String()))

	return newClient(conn, o), nil
}

// State returns the current session state.
func (c *Client) State() ClientState {
	return ClientState(atomic.LoadInt32(&c.state))
}

// setState moves the session to s. StateClosed is terminal: once Close has
// set it, late transitions from an in-flight attempt are dropped.
func (c *Client) setState(s ClientState) {
	for {
		current := atomic.LoadInt32(&c.state)
		if ClientState(current) == StateClosed {
			return
		}
		if atomic.CompareAndSwapInt32(&c.state, current, int32(s)) {
			return
		}
	}
}

// Send enqueues msg on the outbound queue. It blocks while the queue is full
// rather than dropping the message.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	return c.transport.Send(ctx, msg)
}

// Receive returns the next inbound message, or ErrChannelClosed once the
// connection is gone and the queue has drained.
func (c *Client) Receive(ctx context.Context) (*Message, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	return c.transport.Receive(ctx)
}

// ReceiveWithTimeout waits up to timeout for the next inbound message. On
// expiry it returns ErrTimeout; a message arriving after the deadline is not
// lost, it stays queued for the next call.
func (c *Client) ReceiveWithTimeout(timeout time.Duration) (*Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	msg, err := c.Receive(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "no message within %s", timeout)
		}
		return nil, err
	}
	return msg, nil
}

// Authenticate builds and sends a low-level auth message with raw credential
// bytes, then reports the verdict per the client's confirmation mode.
func (c *Client) Authenticate(ctx context.Context, username string, credentials []byte, method string) (bool, error) {
	if c.IsClosed() {
		return false, ErrClientClosed
	}

	c.setState(StateAuthenticating)
	c.logger.Info("Authenticating", log.String("method", method))

	msg := NewAuthMessage(username, credentials, method)
	if err := c.Send(ctx, msg); err != nil {
		c.setState(StateAuthFailed)
		return false, err
	}

	ok, err := c.ConfirmAuth(ctx, msg.ID)
	c.finishAuth(ok, err)
	return ok, err
}

// AuthenticateWithProvider delegates the full exchange to an authenticator.
func (c *Client) AuthenticateWithProvider(ctx context.Context, provider Authenticator) (bool, error) {
	if c.IsClosed() {
		return false, ErrClientClosed
	}

	c.setState(StateAuthenticating)

	ok, err := provider.Authenticate(ctx, c)
	c.finishAuth(ok, err)
	return ok, err
}

func (c *Client) finishAuth(ok bool, err error) {
	switch {
	case err != nil:
		c.setState(StateAuthFailed)
		c.logger.Error("Authentication failed", log.Error(err))
	case ok:
		c.setState(StateAuthenticated)
		c.logger.Info("Authentication succeeded")
	default:
		c.setState(StateAuthFailed)
		c.logger.Warn("Authentication rejected by server")
	}
}

// ConfirmAuth reports the verdict on a sent auth request. In the default
// mode the client does not wait for the server: once the request is on the
// wire the attempt counts as successful. With WithAuthConfirmation it waits
// for a response or error correlated by request id; uncorrelated messages
// are discarded.
func (c *Client) ConfirmAuth(ctx context.Context, requestID string) (bool, error) {
	if !c.confirmAuth {
		c.logger.Debug("Auth confirmation disabled, assuming success",
			log.String("request_id", requestID))
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.confirmWait)
	defer cancel()

	for {
		msg, err := c.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return false, errors.Wrap(ErrTimeout, "no authentication response")
			}
			return false, err
		}

		switch msg.Type {
		case MessageTypeResponse:
			var payload ResponsePayload
			if err = msg.DecodePayload(&payload); err != nil {
				return false, err
			}
			// A response without a request id is taken as the answer to the
			// request in flight.
			if payload.RequestID != "" && payload.RequestID != requestID {
				c.logger.Debug("Discarding uncorrelated response",
					log.String("request_id", payload.RequestID))
				continue
			}
			return payload.Success, nil

		case MessageTypeError:
			var payload ErrorPayload
			if err = msg.DecodePayload(&payload); err != nil {
				return false, err
			}
			if payload.RequestID != "" && payload.RequestID != requestID {
				c.logger.Debug("Discarding uncorrelated error",
					log.String("request_id", payload.RequestID))
				continue
			}
			return false, NewServerError(payload.Code, payload.Message)

		default:
			c.logger.Debug("Discarding message while awaiting auth verdict",
				log.String("message_type", msg.Type.String()))
		}
	}
}

// IsClosed checks if the client has been closed.
func (c *Client) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Metrics returns the underlying connection counters.
func (c *Client) Metrics() ConnectionMetrics {
	return c.transport.Conn().Metrics()
}

// Close tears down the session. In-flight operations are not interrupted
// mid-frame; the loops observe the closed connection and exit.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}

	c.setState(StateClosed)
	c.logger.Info("Client closed")

	return c.transport.Close()
}

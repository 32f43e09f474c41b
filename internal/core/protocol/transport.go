package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

// Transport bridges a Connection and two bounded message queues, run as two
// independent loops for the lifetime of the connection.
//
// The reader loop pulls frames off the connection and pushes decoded messages
// onto the inbound queue. The writer loop drains the outbound queue onto the
// connection. Both queues are bounded, so a full queue suspends the producer
// instead of growing memory. A failure in one loop terminates only that loop;
// callers observe the dead side later as ErrChannelClosed.
type Transport struct {
	conn   Connection
	logger log.Log

	inbound  chan *Message
	outbound chan *Message

	group      *errgroup.Group
	done       chan struct{} // closed by Close
	writerDone chan struct{} // closed when the writer loop exits

	closed int32
}

// NewTransport wires conn to a fresh pair of queues and starts both loops.
func NewTransport(conn Connection, config Config, logger log.Log) *Transport {
	config = config.WithDefaults()
	if logger == nil {
		logger = log.Provide()
	}

	t := &Transport{
		conn:       conn,
		logger:     logger.With(log.String("connection_id", conn.ID())),
		inbound:    make(chan *Message, config.QueueSize),
		outbound:   make(chan *Message, config.QueueSize),
		group:      new(errgroup.Group),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	t.group.Go(t.readLoop)
	t.group.Go(t.writeLoop)

	return t
}

// Send enqueues msg on the outbound queue. It blocks while the queue is full
// and returns ErrChannelClosed once the writer loop has terminated.
func (t *Transport) Send(ctx context.Context, msg *Message) error {
	select {
	case <-t.writerDone:
		return ErrChannelClosed
	default:
	}

	select {
	case t.outbound <- msg:
		return nil
	case <-t.writerDone:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next inbound message. Messages buffered before the
// reader loop terminated are still delivered; after the queue drains it
// returns ErrChannelClosed.
func (t *Transport) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-t.inbound:
		if !ok {
			return nil, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsClosed checks if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}

// Conn returns the underlying connection.
func (t *Transport) Conn() Connection {
	return t.conn
}

// Close stops both loops and closes the underlying connection. Closing the
// connection is what unblocks a reader stuck mid-frame.
func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil // Already closed
	}

	t.logger.Debug("Transport closing")

	close(t.done)
	err := t.conn.Close()

	if waitErr := t.group.Wait(); err == nil {
		err = waitErr
	}

	return err
}

// readLoop runs until a read error, a decode error, or Close. Closing the
// inbound queue on exit lets receivers drain buffered messages before they
// observe ErrChannelClosed.
func (t *Transport) readLoop() error {
	defer close(t.inbound)

	t.logger.Debug("Reader loop started")

	for {
		msg, err := t.conn.ReceiveMessage()
		if err != nil {
			if t.IsClosed() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				t.logger.Debug("Reader loop stopping", log.Error(err))
				return nil
			}
			t.logger.Error("Reader loop terminated", log.Error(err))
			return err
		}

		select {
		case t.inbound <- msg:
			t.logger.Debug("Message received",
				log.String("message_id", msg.ID),
				log.String("message_type", msg.Type.String()))
		case <-t.done:
			t.logger.Debug("Reader loop stopping")
			return nil
		}
	}
}

// writeLoop runs until a write error, an encode error, or Close. An encode
// failure is fatal to this loop but leaves already-written frames intact and
// the reader loop running.
func (t *Transport) writeLoop() error {
	defer close(t.writerDone)

	t.logger.Debug("Writer loop started")

	for {
		select {
		case msg := <-t.outbound:
			if err := t.conn.SendMessage(msg); err != nil {
				if t.IsClosed() || errors.Is(err, net.ErrClosed) {
					t.logger.Debug("Writer loop stopping", log.Error(err))
					return nil
				}
				t.logger.Error("Writer loop terminated",
					log.String("message_id", msg.ID),
					log.Error(err))
				return err
			}
			t.logger.Debug("Message sent",
				log.String("message_id", msg.ID),
				log.String("message_type", msg.Type.String()))
		case <-t.done:
			t.logger.Debug("Writer loop stopping")
			return nil
		}
	}
}

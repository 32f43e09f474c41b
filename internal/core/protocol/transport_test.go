package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

// transportPair wires a Transport to a raw framed peer over an in-memory pipe.
func transportPair(t *testing.T, config Config) (*Transport, *TCPConnection) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	transport := NewTransport(NewTCPConnection(clientEnd, nil, config), config, log.New(log.LevelDebug))
	peer := NewTCPConnection(serverEnd, nil, config)
	t.Cleanup(func() {
		_ = transport.Close()
		_ = peer.Close()
	})
	return transport, peer
}

func TestTransport_SendReachesPeer(t *testing.T) {
	transport, peer := transportPair(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent := NewPingMessage()
	require.NoError(t, transport.Send(ctx, sent))

	received, err := peer.ReceiveMessage()
	require.NoError(t, err, "the writer loop should push the frame to the peer")
	assert.Equal(t, sent.ID, received.ID)
}

func TestTransport_DeliversInOrder(t *testing.T) {
	transport, peer := transportPair(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const count = 10
	go func() {
		for i := 0; i < count; i++ {
			msg := NewCommandMessage("step", json.RawMessage(`{"seq":`+strconv.Itoa(i)+`}`))
			if err := peer.SendMessage(msg); err != nil {
				return
			}
		}
	}()

	for i := 0; i < count; i++ {
		msg, err := transport.Receive(ctx)
		require.NoError(t, err, "message %d should arrive", i)

		var payload CommandPayload
		require.NoError(t, msg.DecodePayload(&payload))
		assert.JSONEq(t, `{"seq":`+strconv.Itoa(i)+`}`, string(payload.Params), "messages should keep arrival order")
	}
}

func TestTransport_SendBackpressure(t *testing.T) {
	// A peer that never reads: the writer loop blocks on the wire and the
	// queue behind it fills up. Further sends must block, not drop.
	transport, peer := transportPair(t, Config{QueueSize: 1})

	// One message ends up in the writer's hands, one in the queue.
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := transport.Send(ctx, NewPingMessage())
		cancel()
		require.NoError(t, err, "send %d should fit", i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := transport.Send(ctx, NewPingMessage())
	require.Error(t, err, "a send into a full queue should block until the context expires")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Test draining the peer restores capacity
	go func() {
		_, _ = peer.ReceiveMessage()
		_, _ = peer.ReceiveMessage()
	}()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	assert.NoError(t, transport.Send(drainCtx, NewPingMessage()), "send should proceed once the queue drains")
}

func TestTransport_DrainAfterPeerClose(t *testing.T) {
	transport, peer := transportPair(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := NewEventMessage("shutdown", json.RawMessage(`{}`))
	second := NewEventMessage("goodbye", json.RawMessage(`{}`))

	go func() {
		_ = peer.SendMessage(first)
		_ = peer.SendMessage(second)
		_ = peer.Close()
	}()

	msg, err := transport.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, msg.ID)

	msg, err = transport.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, msg.ID)

	// Test closure is reported only after the queue is drained
	_, err = transport.Receive(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestTransport_WriterFailureLeavesReaderAlive(t *testing.T) {
	transport, peer := transportPair(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Test a frame sent before the poison arrives intact
	good := NewCommandMessage("status", json.RawMessage(`{"verbose":true}`))
	require.NoError(t, transport.Send(ctx, good))

	delivered, err := peer.ReceiveMessage()
	require.NoError(t, err, "the frame ahead of the poison should reach the peer")
	assert.Equal(t, good.ID, delivered.ID)

	var payload CommandPayload
	require.NoError(t, delivered.DecodePayload(&payload))
	assert.JSONEq(t, `{"verbose":true}`, string(payload.Params), "the delivered frame must not be corrupted")

	// A payload that is not valid JSON kills the writer loop at encode time
	poison := &Message{ID: "poison", Type: MessageTypePing, Timestamp: 1, Payload: json.RawMessage(`{`)}
	require.NoError(t, transport.Send(ctx, poison), "enqueue succeeds, the failure happens in the loop")

	// Test sends are refused once the writer is gone
	require.Eventually(t, func() bool {
		return errors.Is(transport.Send(ctx, NewPingMessage()), ErrChannelClosed)
	}, 2*time.Second, 10*time.Millisecond, "writer death should surface as a closed channel")

	// Test the reader side keeps delivering
	inbound := NewEventMessage("still-alive", json.RawMessage(`{}`))
	go func() { _ = peer.SendMessage(inbound) }()

	msg, err := transport.Receive(ctx)
	require.NoError(t, err, "the reader loop should outlive the writer loop")
	assert.Equal(t, inbound.ID, msg.ID)
}

func TestTransport_Close(t *testing.T) {
	transport, _ := transportPair(t, Config{})

	require.NoError(t, transport.Close())
	assert.True(t, transport.IsClosed())
	assert.NoError(t, transport.Close(), "second close should be a no-op")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := transport.Send(ctx, NewPingMessage())
	assert.ErrorIs(t, err, ErrChannelClosed)

	_, err = transport.Receive(ctx)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

package protocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

func TestDispatcher_AutoPong(t *testing.T) {
	ping := NewPingMessage()
	pongs := make(chan *Message, 1)
	address, port := testServer(t, func(conn *TCPConnection) {
		if err := conn.SendMessage(ping); err != nil {
			return
		}
		msg, err := conn.ReceiveMessage()
		if err != nil {
			return
		}
		pongs <- msg
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))
	go func() { _ = dispatcher.Run(ctx) }()

	select {
	case pong := <-pongs:
		assert.Equal(t, MessageTypePong, pong.Type)

		var payload PongPayload
		require.NoError(t, pong.DecodePayload(&payload))
		assert.Equal(t, ping.ID, payload.PingID, "the pong should answer the ping by id")
	case <-time.After(3 * time.Second):
		t.Fatal("no pong arrived")
	}
}

func TestDispatcher_EventRouting(t *testing.T) {
	ready := make(chan struct{})
	address, port := testServer(t, func(conn *TCPConnection) {
		<-ready
		_ = conn.SendMessage(NewEventMessage("status", json.RawMessage(`{"load":1}`)))
		_ = conn.SendMessage(NewEventMessage("alarm", json.RawMessage(`{"level":"high"}`)))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	type received struct {
		event string
		data  string
	}
	statuses := make(chan received, 1)
	require.NoError(t, dispatcher.SubscribeEvent("status", func(event string, data json.RawMessage) {
		statuses <- received{event, string(data)}
	}))

	alarms := make(chan received, 1)
	require.NoError(t, dispatcher.SubscribeEvent("alarm", func(event string, data json.RawMessage) {
		alarms <- received{event, string(data)}
	}))

	go func() { _ = dispatcher.Run(ctx) }()
	close(ready)

	select {
	case got := <-statuses:
		assert.Equal(t, "status", got.event)
		assert.JSONEq(t, `{"load":1}`, got.data)
	case <-time.After(3 * time.Second):
		t.Fatal("status handler was not called")
	}

	select {
	case got := <-alarms:
		assert.Equal(t, "alarm", got.event)
		assert.JSONEq(t, `{"level":"high"}`, got.data)
	case <-time.After(3 * time.Second):
		t.Fatal("alarm handler was not called")
	}
}

func TestDispatcher_UnnamedEventsOnRootTopic(t *testing.T) {
	ready := make(chan struct{})
	address, port := testServer(t, func(conn *TCPConnection) {
		<-ready
		_ = conn.SendMessage(NewEventMessage("", json.RawMessage(`{"hello":1}`)))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	events := make(chan string, 1)
	require.NoError(t, dispatcher.SubscribeEvent("", func(event string, data json.RawMessage) {
		events <- string(data)
	}))

	go func() { _ = dispatcher.Run(ctx) }()
	close(ready)

	select {
	case data := <-events:
		assert.JSONEq(t, `{"hello":1}`, data)
	case <-time.After(3 * time.Second):
		t.Fatal("unnamed event was not delivered")
	}
}

func TestDispatcher_ForwardsOtherTraffic(t *testing.T) {
	response := NewResponseMessage("req-1", true, json.RawMessage(`{}`))
	ready := make(chan struct{})
	address, port := testServer(t, func(conn *TCPConnection) {
		<-ready
		_ = conn.SendMessage(response)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))
	go func() { _ = dispatcher.Run(ctx) }()
	close(ready)

	select {
	case msg := <-dispatcher.Forward():
		assert.Equal(t, response.ID, msg.ID)
		assert.Equal(t, MessageTypeResponse, msg.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("response was not forwarded")
	}
}

func TestDispatcher_DiscardsMalformedEvent(t *testing.T) {
	good := NewEventMessage("status", json.RawMessage(`{}`))
	ready := make(chan struct{})
	address, port := testServer(t, func(conn *TCPConnection) {
		<-ready
		// An event payload of the wrong shape, then a good one
		_ = conn.SendMessage(NewMessage(MessageTypeEvent, json.RawMessage(`{"event":42}`)))
		_ = conn.SendMessage(good)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	events := make(chan string, 1)
	require.NoError(t, dispatcher.SubscribeEvent("status", func(event string, _ json.RawMessage) {
		events <- event
	}))

	go func() { _ = dispatcher.Run(ctx) }()
	close(ready)

	select {
	case event := <-events:
		assert.Equal(t, "status", event, "the loop should survive the malformed event")
	case <-time.After(3 * time.Second):
		t.Fatal("good event was not delivered")
	}
}

func TestDispatcher_UnsubscribeEvent(t *testing.T) {
	address, port := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	handler := func(event string, data json.RawMessage) {}
	require.NoError(t, dispatcher.SubscribeEvent("status", handler))
	require.NoError(t, dispatcher.UnsubscribeEvent("status", handler))

	err = dispatcher.UnsubscribeEvent("status", handler)
	assert.Error(t, err, "removing an absent handler should be reported")
}

func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	address, port := testServer(t, nil)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer connectCancel()

	client, err := Connect(connectCtx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}

func TestDispatcher_RunStopsOnClose(t *testing.T) {
	address, port := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Connect(ctx, address, port, WithLogger(log.New(log.LevelDebug)))
	require.NoError(t, err)

	dispatcher := NewDispatcher(client, log.New(log.LevelDebug))

	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-done:
		assert.NoError(t, err, "a closed session is a clean stop")
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on close")
	}
}

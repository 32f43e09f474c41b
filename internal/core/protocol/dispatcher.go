package protocol

import (
	"context"
	"encoding/json"
	"errors"

	evbus "github.com/asaskevich/EventBus"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

const eventTopicRoot = "rcp.event"

// eventTopic maps an event name to its bus topic. Events that carry no name
// land on the root topic.
func eventTopic(name string) string {
	if name == "" {
		return eventTopicRoot
	}
	return eventTopicRoot + "." + name
}

// EventHandler consumes a dispatched server event.
type EventHandler func(event string, data json.RawMessage)

// Dispatcher pumps inbound messages on behalf of the caller: pings are
// answered with pongs, events fan out to name-keyed subscribers, everything
// else lands on the Forward channel.
type Dispatcher struct {
	client  *Client
	bus     evbus.Bus
	forward chan *Message
	logger  log.Log
}

// NewDispatcher creates a dispatcher over an established client session.
func NewDispatcher(client *Client, logger log.Log) *Dispatcher {
	if logger == nil {
		logger = log.Provide()
	}
	return &Dispatcher{
		client:  client,
		bus:     evbus.New(),
		forward: make(chan *Message, DefaultQueueSize),
		logger:  logger,
	}
}

// Forward carries the messages the dispatcher does not handle itself
// (responses, pongs, errors). The caller must drain it while Run is active.
func (d *Dispatcher) Forward() <-chan *Message {
	return d.forward
}

// SubscribeEvent registers fn for events with the given name. An empty name
// subscribes to events that carry no name. The handler runs synchronously
// inside the dispatch loop.
func (d *Dispatcher) SubscribeEvent(event string, fn EventHandler) error {
	return d.bus.Subscribe(eventTopic(event), fn)
}

// SubscribeEventAsync registers fn to run outside the dispatch loop.
func (d *Dispatcher) SubscribeEventAsync(event string, fn EventHandler) error {
	return d.bus.SubscribeAsync(eventTopic(event), fn, false)
}

// UnsubscribeEvent removes a previously registered handler.
func (d *Dispatcher) UnsubscribeEvent(event string, fn EventHandler) error {
	return d.bus.Unsubscribe(eventTopic(event), fn)
}

// Run receives until the context is cancelled or the inbound stream ends.
// It blocks; run it on its own goroutine when the caller also sends.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.bus.WaitAsync()

	d.logger.Debug("Dispatcher started")

	for {
		msg, err := d.client.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrClientClosed) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.logger.Debug("Dispatcher stopping", log.Error(err))
				return nil
			}
			d.logger.Error("Dispatcher terminated", log.Error(err))
			return err
		}

		switch msg.Type {
		case MessageTypePing:
			if err = d.client.Send(ctx, NewPongMessage(msg.ID)); err != nil {
				d.logger.Warn("Failed to answer ping", log.Error(err))
			}
		case MessageTypeEvent:
			var payload EventPayload
			if err = msg.DecodePayload(&payload); err != nil {
				d.logger.Warn("Discarding malformed event",
					log.String("message_id", msg.ID), log.Error(err))
				continue
			}
			d.bus.Publish(eventTopic(payload.Event), payload.Event, payload.Data)
		default:
			select {
			case d.forward <- msg:
			case <-ctx.Done():
				d.logger.Debug("Dispatcher stopping", log.Error(ctx.Err()))
				return nil
			}
		}
	}
}

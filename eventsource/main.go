// Package eventsource feeds application events published by other services
// into the in-process event bus. Events arrive on an AMQP topic exchange with
// routing keys of the form "events.{event name}" and a JSON body matching the
// catalogue shape for that event.
package eventsource

import (
	"context"
	"strings"

	"github.com/cyverse-de/notification-hub/events"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// routingKeyPrefix is the prefix shared by all application event routing keys.
const routingKeyPrefix = "events."

// AMQPSettings represents the settings that we require in order to connect to the AMQP exchange.
type AMQPSettings struct {
	URI          string
	ExchangeName string
	ExchangeType string
	QueueName    string
}

// EventSource consumes application events from AMQP and emits them on the
// event bus.
type EventSource struct {
	settings   *AMQPSettings
	bus        *events.Bus
	connection *amqp.Connection
	channel    *amqp.Channel
}

// New connects to the AMQP broker and declares the exchange, the queue, and
// the binding that routes application events into the queue.
func New(settings *AMQPSettings, bus *events.Bus) (*EventSource, error) {
	wrapMsg := "unable to create the event source"

	// Connect to the AMQP broker.
	connection, err := amqp.Dial(settings.URI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Open an AMQP channel.
	channel, err := connection.Channel()
	if err != nil {
		connection.Close() // nolint:errcheck
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Declare the exchange that the application publishes events to.
	err = channel.ExchangeDeclare(settings.ExchangeName, settings.ExchangeType, true, false, false, false, nil)
	if err != nil {
		connection.Close() // nolint:errcheck
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Declare our queue and bind it to the event routing keys.
	queue, err := channel.QueueDeclare(settings.QueueName, true, false, false, false, nil)
	if err != nil {
		connection.Close() // nolint:errcheck
		return nil, errors.Wrap(err, wrapMsg)
	}
	err = channel.QueueBind(queue.Name, routingKeyPrefix+"#", settings.ExchangeName, false, nil)
	if err != nil {
		connection.Close() // nolint:errcheck
		return nil, errors.Wrap(err, wrapMsg)
	}

	eventSource := EventSource{
		settings:   settings,
		bus:        bus,
		connection: connection,
		channel:    channel,
	}
	return &eventSource, nil
}

// Listen consumes deliveries until the context is canceled or the AMQP
// channel closes.
func (source *EventSource) Listen(ctx context.Context) error {
	wrapMsg := "unable to consume from the event queue"

	// Start consuming from the queue.
	deliveries, err := source.channel.Consume(source.settings.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	log.Infof("listening for events on queue %s", source.settings.QueueName)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("the event queue channel closed unexpectedly")
			}
			source.handle(ctx, delivery)
		}
	}
}

// Close closes the AMQP channel and connection.
func (source *EventSource) Close() {
	if source.channel != nil {
		source.channel.Close() // nolint:errcheck
	}
	if source.connection != nil {
		source.connection.Close() // nolint:errcheck
	}
}

// handle processes a single delivery and settles it according to the outcome.
// Deliveries that can never succeed are acknowledged and dropped. Deliveries
// that fail recoverably are requeued once; a redelivered message that fails
// again is dropped so that a poison message cannot wedge the queue.
func (source *EventSource) handle(ctx context.Context, delivery amqp.Delivery) {
	err := source.processMessage(ctx, delivery.RoutingKey, delivery.Body)
	if err == nil {
		source.ack(delivery)
		return
	}

	switch err.(type) {
	case RecoverableError:
		if delivery.Redelivered {
			log.Errorf("dropping %s after a second failure: %s", delivery.RoutingKey, err)
			source.nack(delivery, false)
		} else {
			log.Errorf("requeueing %s: %s", delivery.RoutingKey, err)
			source.nack(delivery, true)
		}
	default:
		log.Errorf("dropping %s: %s", delivery.RoutingKey, err)
		source.ack(delivery)
	}
}

// processMessage converts one wire message into a bus emission. Errors are
// classified by what a retry could fix: a malformed body or an unknown event
// name will never parse, while a failed handler is worth another attempt.
func (source *EventSource) processMessage(ctx context.Context, routingKey string, body []byte) error {

	// Extract the event name from the routing key.
	if !strings.HasPrefix(routingKey, routingKeyPrefix) {
		return NewUnrecoverableError("unexpected routing key: %s", routingKey)
	}
	eventName := strings.TrimPrefix(routingKey, routingKeyPrefix)

	// Decode the message body.
	event, err := events.Decode(eventName, body)
	if errors.Is(err, events.ErrUnknownEvent) {
		return NewUnrecoverableError("no decoder for event %s", eventName)
	}
	if err != nil {
		return NewUnrecoverableError("unable to parse the %s event body: %s", eventName, err)
	}

	// Emit the event on the bus.
	err = source.bus.Emit(ctx, event)
	if err != nil {
		return NewRecoverableError("one or more handlers for %s failed: %s", eventName, err)
	}
	return nil
}

// ack acknowledges a delivery.
func (source *EventSource) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		log.Errorf("unable to acknowledge the delivery of %s: %s", delivery.RoutingKey, err)
	}
}

// nack rejects a delivery, optionally requeueing it.
func (source *EventSource) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		log.Errorf("unable to reject the delivery of %s: %s", delivery.RoutingKey, err)
	}
}

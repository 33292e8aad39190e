// Package messagequeue publishes and consumes JSON messages on RabbitMQ topic exchanges.
package messagequeue

import "context"

// Delivery is a message received by a consumer.
type Delivery struct {
	RoutingKey string
	Body       []byte
}

// MessageQueue defines the interface for message queue services.
type MessageQueue interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	// Consume binds a private queue to exchange with bindingKey and calls
	// handler for each message until ctx is done.
	Consume(ctx context.Context, exchange, bindingKey string, handler func(Delivery)) error
	Close() error
}

package messagequeue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeKind = "topic"

// RabbitMQService implements the MessageQueue interface using RabbitMQ.
type RabbitMQService struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	logger   *zap.Logger
}

// NewRabbitMQServiceConfig contains options for creating a new RabbitMQService.
type NewRabbitMQServiceConfig struct {
	URL         string
	DialTimeout time.Duration
	Logger      *zap.Logger
}

// NewRabbitMQService dials the broker and opens a channel.
func NewRabbitMQService(cfg NewRabbitMQServiceConfig) (*RabbitMQService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cleanURL, err := sanitizeURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	logger.Info("Connected to RabbitMQ")
	return &RabbitMQService{conn: conn, channel: ch, declared: make(map[string]bool), logger: logger}, nil
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("invalid AMQP URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// Publish sends a persistent JSON message to exchange. A closed channel is
// reopened once before giving up.
func (s *RabbitMQService) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.publishLocked(ctx, exchange, routingKey, body)
	if err == nil {
		return nil
	}
	s.logger.Warn("Publish failed, reopening channel",
		zap.String("exchange", exchange), zap.String("routingKey", routingKey), zap.Error(err))
	if reopenErr := s.reopenLocked(); reopenErr != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	if err := s.publishLocked(ctx, exchange, routingKey, body); err != nil {
		return fmt.Errorf("publish to %s/%s after reopen: %w", exchange, routingKey, err)
	}
	return nil
}

func (s *RabbitMQService) publishLocked(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := s.declareLocked(exchange); err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx, exchange, routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}

func (s *RabbitMQService) declareLocked(exchange string) error {
	if s.declared[exchange] {
		return nil
	}
	if err := s.channel.ExchangeDeclare(exchange, exchangeKind,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	s.declared[exchange] = true
	return nil
}

func (s *RabbitMQService) reopenLocked() error {
	if s.conn == nil || s.conn.IsClosed() {
		return errors.New("RabbitMQ connection is closed")
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return err
	}
	s.channel = ch
	s.declared = make(map[string]bool)
	return nil
}

// Consume uses a dedicated channel so a slow handler never blocks publishers.
func (s *RabbitMQService) Consume(ctx context.Context, exchange, bindingKey string, handler func(Delivery)) error {
	s.mu.Lock()
	if err := s.declareLocked(exchange); err != nil {
		s.mu.Unlock()
		return err
	}
	ch, err := s.conn.Channel()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare consumer queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", bindingKey, exchange, err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer on %s: %w", q.Name, err)
	}

	s.logger.Info("Consuming", zap.String("exchange", exchange), zap.String("bindingKey", bindingKey))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			handler(Delivery{RoutingKey: d.RoutingKey, Body: d.Body})
		}
	}
}

// Close closes the RabbitMQ channel and connection.
func (s *RabbitMQService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lastErr error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			lastErr = err
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			lastErr = err
		}
	}
	return lastErr
}

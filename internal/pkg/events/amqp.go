package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a connection and a channel with the exchange declared.
type dialFunc func() (io.Closer, amqpChannel, error)

// AMQPPublisher publishes status events to a durable topic exchange. A
// channel closed by the broker is re-dialed on the next publish.
type AMQPPublisher struct {
	conn     io.Closer
	channel  amqpChannel
	exchange string
	dial     dialFunc
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = ExchangeName
	}
	p := &AMQPPublisher{
		exchange: exchange,
		dial:     func() (io.Closer, amqpChannel, error) { return dialExchange(url, exchange) },
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	log.Infof("[Events] AMQP publisher connected (exchange=%s)", exchange)
	return p, nil
}

func dialExchange(url, exchange string) (io.Closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

// connect replaces the current connection. Callers hold mu, except the
// constructor.
func (p *AMQPPublisher) connect() error {
	if p.dial == nil {
		return amqp.ErrClosed
	}
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	p.release()
	p.conn, p.channel = conn, ch
	return nil
}

func (p *AMQPPublisher) release() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) PublishStatusChanged(ctx context.Context, evt StatusChanged) error {
	body, err := encode(evt)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		if err := p.connect(); err != nil {
			return fmt.Errorf("publish %s: %w", evt.RoutingKey(), err)
		}
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, evt.RoutingKey(), false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		log.Warnf("[Events] AMQP channel closed, reconnecting")
		if err = p.connect(); err == nil {
			err = p.channel.PublishWithContext(ctx, p.exchange, evt.RoutingKey(), false, false, msg)
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.RoutingKey(), err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dial = nil
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Warnf("[Events] error closing channel: %v", err)
		}
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

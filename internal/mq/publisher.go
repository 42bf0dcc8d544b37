package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes reading events to a durable topic exchange after the
// corresponding database transaction has committed.
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a publisher and declares its exchange.
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// ReadingEvent is published after a committed reading mutation. Normalized
// values are liters, serialized as exact decimal strings.
type ReadingEvent struct {
	Action            string    `json:"action"`
	WaterMeterID      string    `json:"water_meter_id"`
	ReadingID         string    `json:"reading_id,omitempty"`
	NormalizedReading string    `json:"normalized_reading,omitempty"`
	ReadingDate       time.Time `json:"reading_date,omitempty"`
	ExcessConsumption bool      `json:"excess_consumption"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// PublishReadingEvent publishes a reading event.
func (p *Publisher) PublishReadingEvent(ctx context.Context, event ReadingEvent, routingKey string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", routingKey),
		zap.String("action", event.Action),
		zap.String("water_meter_id", event.WaterMeterID),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/seatly/seatly/config"
	"github.com/seatly/seatly/internal/model"
)

// Publisher emits reservation events on a durable topic exchange over a
// long-lived AMQP connection. Messages are persistent so they survive a
// broker restart.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewPublisher dials the broker and declares the exchange. Callers
// should treat a nil publisher as "events disabled" and skip wiring it.
func NewPublisher(cfg config.QueueConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	// Idempotent; durable so the exchange survives broker restarts.
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // autoDelete
		false,        // internal
		false,        // noWait
		nil,          // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	log.Printf("[queue] connected, exchange %s", cfg.Exchange)
	return &Publisher{conn: conn, channel: ch, exchange: cfg.Exchange}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// ReservationCreated publishes a reservation.created event.
func (p *Publisher) ReservationCreated(ctx context.Context, res *model.Reservation) error {
	return p.publish(ctx, RoutingCreated, ReservationCreatedEvent{
		ReservationID: res.ID,
		RestaurantID:  res.RestaurantID,
		UserID:        res.UserID,
		TableID:       res.TableID,
		Date:          res.Date,
		Slot:          res.Slot,
		PartySize:     res.PartySize,
		GuestName:     res.GuestName,
		Channel:       res.Channel,
		CreatedAt:     res.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// ReservationStatusChanged publishes a reservation.status_changed event.
func (p *Publisher) ReservationStatusChanged(ctx context.Context, res *model.Reservation, previous model.ReservationStatus) error {
	return p.publish(ctx, RoutingStatusChanged, ReservationStatusChangedEvent{
		ReservationID:  res.ID,
		RestaurantID:   res.RestaurantID,
		UserID:         res.UserID,
		Date:           res.Date,
		Slot:           res.Slot,
		PreviousStatus: previous,
		Status:         res.Status,
		ChangedAt:      res.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", routingKey, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/seatlab/ticketing/internal/model"
)

// statusQueueName is the durable queue booking events are published to.
const statusQueueName = "reservation.status"

// Publisher emits booking lifecycle events.  Implementations must not
// fail the caller: delivery problems are logged and swallowed.
type Publisher interface {
	BookingCreated(ctx context.Context, b *model.Booking)
	BookingConfirmed(ctx context.Context, b *model.Booking)
	BookingCancelled(ctx context.Context, b *model.Booking)
}

// NopPublisher drops every event, for deployments without a broker.
type NopPublisher struct{}

func (NopPublisher) BookingCreated(context.Context, *model.Booking)   {}
func (NopPublisher) BookingConfirmed(context.Context, *model.Booking) {}
func (NopPublisher) BookingCancelled(context.Context, *model.Booking) {}

// AMQPPublisher publishes events to RabbitMQ.  Each publish dials a short
// lived connection; booking state changes are rare enough that connection
// reuse is not worth a channel pool here.
type AMQPPublisher struct {
	url    string
	logger *zap.Logger
}

// NewAMQPPublisher returns a publisher for the given broker URL.
func NewAMQPPublisher(url string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, logger: logger}
}

func (p *AMQPPublisher) BookingCreated(ctx context.Context, b *model.Booking) {
	p.publish(ctx, EventBookingCreated, b)
}

func (p *AMQPPublisher) BookingConfirmed(ctx context.Context, b *model.Booking) {
	p.publish(ctx, EventBookingConfirmed, b)
}

func (p *AMQPPublisher) BookingCancelled(ctx context.Context, b *model.Booking) {
	p.publish(ctx, EventBookingCancelled, b)
}

func (p *AMQPPublisher) publish(ctx context.Context, eventType string, b *model.Booking) {
	ev := BookingEvent{
		Type:             eventType,
		BookingID:        b.ID,
		Reference:        b.Reference,
		EventID:          b.EventID,
		UserID:           b.UserID,
		Status:           string(b.Status),
		TotalAmountCents: b.TotalAmountCents,
		OccurredAt:       time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.send(ctx, ev); err != nil {
		p.logger.Warn("booking event publish failed",
			zap.String("type", eventType),
			zap.Uint64("booking_id", b.ID),
			zap.Error(err))
	}
}

func (p *AMQPPublisher) send(ctx context.Context, ev BookingEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable queue so events survive broker restarts.
	if _, err := ch.QueueDeclare(statusQueueName, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		"",              // default exchange
		statusQueueName, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}

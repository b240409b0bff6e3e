package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hemasoorya80-maker/stock-reservation-service/internal/domain"
	pkgkafka "github.com/hemasoorya80-maker/stock-reservation-service/pkg/kafka"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/logger"
)

// Kafka topic constants for reservation domain events.
const (
	TopicReservationCreated   = "reservations.reservation-created"
	TopicReservationConfirmed = "reservations.reservation-confirmed"
	TopicReservationCancelled = "reservations.reservation-cancelled"
	TopicReservationExpired   = "reservations.reservation-expired"
	TopicStockAdjusted        = "reservations.stock-adjusted"
	TopicItemCreated          = "reservations.item-created"
)

// Aggregate type constants.
const (
	AggregateTypeReservation = "reservation"
	AggregateTypeItem        = "item"
)

// Source identifier for events originating from this service.
const SourceReservationService = "reservation-service"

// ReservationEventData is the payload shared by reservation lifecycle events.
type ReservationEventData struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	ItemID        string `json:"item_id"`
	Qty           int    `json:"qty"`
	Status        string `json:"status"`
	ExpiresAt     int64  `json:"expires_at"`
}

// StockAdjustedData is the payload for a stock-adjusted event.
type StockAdjustedData struct {
	ItemID       string `json:"item_id"`
	Delta        int    `json:"delta"`
	AvailableQty int    `json:"available_qty"`
}

// ItemCreatedData is the payload for an item-created event.
type ItemCreatedData struct {
	ItemID       string `json:"item_id"`
	Name         string `json:"name"`
	AvailableQty int    `json:"available_qty"`
}

// Producer publishes reservation domain events to Kafka. A Producer built
// with a nil Kafka client drops every event, which is how event publishing
// is disabled without sprinkling flag checks through the service layer.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the reservation service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// Enabled reports whether events actually reach a broker.
func (p *Producer) Enabled() bool {
	return p.kafka != nil
}

// newEvent builds the envelope for this service, stamping the request ID
// from ctx as the correlation ID so consumers can join events back to the
// API call that caused them.
func newEvent(ctx context.Context, eventType, aggregateID, aggregateType string, data any) (*pkgkafka.Event, error) {
	event, err := pkgkafka.NewEvent(eventType, aggregateID, aggregateType, SourceReservationService, data)
	if err != nil {
		return nil, err
	}
	if reqID := logger.RequestIDFromContext(ctx); reqID != "" {
		event.WithCorrelationID(reqID)
	}
	return event, nil
}

// publishReservation builds and publishes a reservation lifecycle event.
func (p *Producer) publishReservation(ctx context.Context, topic string, res *domain.Reservation) error {
	if p.kafka == nil {
		return nil
	}

	data := ReservationEventData{
		ReservationID: res.ID,
		UserID:        res.UserID,
		ItemID:        res.ItemID,
		Qty:           res.Qty,
		Status:        res.Status,
		ExpiresAt:     res.ExpiresAt,
	}

	event, err := newEvent(ctx, topic, res.ID, AggregateTypeReservation, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published reservation event",
		slog.String("topic", topic),
		slog.String("reservation_id", res.ID),
		slog.String("item_id", res.ItemID),
	)

	return nil
}

// PublishReservationCreated publishes a reservation-created event.
func (p *Producer) PublishReservationCreated(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservation(ctx, TopicReservationCreated, res)
}

// PublishReservationConfirmed publishes a reservation-confirmed event.
func (p *Producer) PublishReservationConfirmed(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservation(ctx, TopicReservationConfirmed, res)
}

// PublishReservationCancelled publishes a reservation-cancelled event.
func (p *Producer) PublishReservationCancelled(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservation(ctx, TopicReservationCancelled, res)
}

// PublishReservationExpired publishes a reservation-expired event.
func (p *Producer) PublishReservationExpired(ctx context.Context, res *domain.Reservation) error {
	return p.publishReservation(ctx, TopicReservationExpired, res)
}

// PublishStockAdjusted publishes a stock-adjusted event.
func (p *Producer) PublishStockAdjusted(ctx context.Context, item *domain.Item, delta int) error {
	if p.kafka == nil {
		return nil
	}

	data := StockAdjustedData{
		ItemID:       item.ID,
		Delta:        delta,
		AvailableQty: item.AvailableQty,
	}

	event, err := newEvent(ctx, TopicStockAdjusted, item.ID, AggregateTypeItem, data)
	if err != nil {
		return fmt.Errorf("create stock-adjusted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicStockAdjusted, event); err != nil {
		return fmt.Errorf("publish stock-adjusted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published stock-adjusted event",
		slog.String("item_id", item.ID),
		slog.Int("delta", delta),
	)

	return nil
}

// PublishItemCreated publishes an item-created event.
func (p *Producer) PublishItemCreated(ctx context.Context, item *domain.Item) error {
	if p.kafka == nil {
		return nil
	}

	data := ItemCreatedData{
		ItemID:       item.ID,
		Name:         item.Name,
		AvailableQty: item.AvailableQty,
	}

	event, err := newEvent(ctx, TopicItemCreated, item.ID, AggregateTypeItem, data)
	if err != nil {
		return fmt.Errorf("create item-created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicItemCreated, event); err != nil {
		return fmt.Errorf("publish item-created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published item-created event",
		slog.String("item_id", item.ID),
	)

	return nil
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

const (
	EventTypeOrderPlaced = "OrderPlaced"

	DefaultOrderTopic = "orders.placed"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OrderPlacedEvent struct {
	EventType        string    `json:"eventType"`
	OrderID          int64     `json:"orderId"`
	ProductID        int64     `json:"productId"`
	ProductName      string    `json:"productName"`
	Quantity         int       `json:"quantity"`
	ReservationID    string    `json:"reservationId"`
	ReservedBatchIDs []int64   `json:"reservedFromBatchIds"`
	OrderDate        string    `json:"orderDate"`
	OccurredAt       time.Time `json:"occurredAt"`
}

func NewOrderPlacedEvent(o *domain.Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		EventType:        EventTypeOrderPlaced,
		OrderID:          o.ID,
		ProductID:        o.ProductID,
		ProductName:      o.ProductName,
		Quantity:         o.Quantity,
		ReservationID:    o.ReservationID,
		ReservedBatchIDs: o.ReservedBatchIDs,
		OrderDate:        o.CreatedAt.Format(domain.DateLayout),
		OccurredAt:       time.Now().UTC(),
	}
}

// KafkaPublisher writes order events to a Kafka topic, keyed by order id so
// events of one order stay on one partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultOrderTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaPublisherWithWriter(writer, logger)
}

func NewKafkaPublisherWithWriter(writer MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order *domain.Order) error {
	payload, err := json.Marshal(NewOrderPlacedEvent(order))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", EventTypeOrderPlaced, err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []kafka.Header{{Key: "event-type", Value: []byte(EventTypeOrderPlaced)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(strconv.FormatInt(order.ID, 10)),
		Value:   payload,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", EventTypeOrderPlaced, err)
	}

	p.logger.Debug("Published event",
		zap.String("event_type", EventTypeOrderPlaced),
		zap.Int64("order_id", order.ID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventRegistrationConfirmed = "registration_confirmed"
	EventRegistrationCancelled = "registration_cancelled"
	EventTicketValidated       = "ticket_validated"
)

// RegistrationEvent is published to the registrations topic on every lifecycle change.
type RegistrationEvent struct {
	Type           string    `json:"type"`
	RegistrationID string    `json:"registration_id"`
	ExhibitionID   int64     `json:"exhibition_id"`
	RegistrantID   int64     `json:"registrant_id"`
	Quantity       int       `json:"quantity"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NotificationJob asks the worker to deliver a registration's ticket.
type NotificationJob struct {
	RegistrationID string    `json:"registration_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, logger: logger}
}

// Publish writes payload as JSON. Messages with the same key keep their order.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	p.logger.Debug("published to kafka", zap.String("topic", topic), zap.String("key", key))
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NotificationQueue hands deliveries to the worker process through a topic.
type NotificationQueue struct {
	producer *Producer
	topic    string
}

func NewNotificationQueue(producer *Producer, topic string) *NotificationQueue {
	return &NotificationQueue{producer: producer, topic: topic}
}

func (q *NotificationQueue) Enqueue(ctx context.Context, registrationID string) error {
	return q.producer.Publish(ctx, q.topic, registrationID, NotificationJob{
		RegistrationID: registrationID,
		EnqueuedAt:     time.Now().UTC(),
	})
}

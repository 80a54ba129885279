package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Топики событий переходов состояний. Доставка вебхуков - забота
// даунстрим-консьюмеров; ядро только публикует факт перехода.
const (
	TopicDocumentIssued       = "document_issued"
	TopicDocumentPaid         = "document_paid"
	TopicTransactionSettled   = "transaction_settled"
	TopicTransactionFailed    = "transaction_failed"
	TopicSubscriptionCanceled = "subscription_canceled"
)

// TransitionEvent событие перехода состояния сущности
type TransitionEvent struct {
	Entity     string    `json:"entity"`
	EntityID   string    `json:"entity_id"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer определяет интерфейс для публикации событий переходов в Kafka.
type Producer interface {
	// PublishTransition отправляет событие перехода. Ключ сообщения -
	// EntityID: все события одной сущности попадают в одну партицию и
	// сохраняют порядок.
	PublishTransition(ctx context.Context, topic string, event TransitionEvent) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishTransition преобразует событие в JSON и отправляет в указанный топик.
func (k *kafkaProducer) PublishTransition(ctx context.Context, topic string, event TransitionEvent) error {
	messageValue, err := json.Marshal(event)
	if err != nil {
		k.log.Errorw("Failed to marshal transition event for Kafka", "error", err,
			"entity", event.Entity, "entityID", event.EntityID, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(event.EntityID),
		Value: messageValue,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		k.log.Errorw("Failed to write message to Kafka", "error", err,
			"topic", topic, "entityID", event.EntityID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Transition event published", "topic", topic,
		"entity", event.Entity, "entityID", event.EntityID, "to", event.ToState)
	return nil
}

// Close закрывает врайтер продюсера
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka producer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}

// NopProducer продюсер-заглушка для конфигураций без Kafka и для тестов
type NopProducer struct{}

func (NopProducer) PublishTransition(context.Context, string, TransitionEvent) error { return nil }
func (NopProducer) Close() error                                                     { return nil }

package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// Команды шины заказов.
const (
	PatternCreateOrder       = "createOrder"
	PatternFindAllOrders     = "findAllOrders"
	PatternFindOneOrder      = "findOneOrder"
	PatternChangeOrderStatus = "changeOrderStatus"
)

// Topics для Kafka
const (
	TopicOrderCommands   = "orders.commands"
	TopicOrderReplies    = "orders.replies"
	TopicOrderEvents     = "orders.events"
	TopicDeadLetterQueue = "orders.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики и корреляции ответов
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderCorrelationID = "x-correlation-id"
	HeaderEventType     = "x-event-type"
)

// CommandEnvelope: входящая команда: {"id","pattern","data","replyTo"}.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data,omitempty"`
	ReplyTo string          `json:"replyTo,omitempty"`
}

// ReplyError описывает ошибку обработки команды.
type ReplyError struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ReplyEnvelope: ответ на команду; заполнено либо Response, либо Err.
type ReplyEnvelope struct {
	ID       string      `json:"id"`
	Pattern  string      `json:"pattern,omitempty"`
	Response any         `json:"response,omitempty"`
	Err      *ReplyError `json:"err,omitempty"`
}

// ParseCommand парсит CommandEnvelope из сообщения.
func ParseCommand(message *sarama.ConsumerMessage) (*CommandEnvelope, error) {
	var cmd CommandEnvelope
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return &cmd, nil
}

// ParseOrderEvent парсит событие заказа из outbox-конверта топика orders.events.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*domain.OrderEvent, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	var event domain.OrderEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

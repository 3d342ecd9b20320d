package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product: запись о товаре, полученная от сервиса товаров. Сервисом заказов не хранится.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

// ProductValidator разрешает идентификаторы товаров в актуальные записи.
type ProductValidator interface {
	// Validate возвращает по одной записи на каждый существующий товар; неизвестные id отсутствуют в ответе.
	// При недоступности сервиса возвращается ErrValidationUnavailable.
	Validate(ctx context.Context, productIDs []int64) ([]Product, error)
}

// ProductIndex строит индекс товаров по идентификатору.
func ProductIndex(products []Product) map[int64]Product {
	index := make(map[int64]Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

const (
	// AggregateTypeOrder: тип агрегата в outbox-сообщениях о заказах.
	AggregateTypeOrder = "order"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent: полезная нагрузка outbox-события о заказе.
type OrderEvent struct {
	EventType      string          `json:"event_type"`
	OrderID        string          `json:"order_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	TotalItems     int32           `json:"total_items"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewOrderOutboxMessage сериализует событие заказа в outbox-сообщение.
func NewOrderOutboxMessage(eventType string, order Order, previous OrderStatus) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalItems:     order.TotalItems,
		TotalAmount:    order.TotalAmount,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ждёт оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid: оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusDelivered: заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled: заказ отменён.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderStatusTransitions задаёт допустимые переходы; delivered и cancelled конечные.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusDelivered, OrderStatusCancelled},
}

// OrderStatuses возвращает все поддерживаемые статусы.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusDelivered, OrderStatusCancelled}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo сообщает, разрешён ли переход из s в next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// OrderLine: строка входящего запроса на создание заказа.
type OrderLine struct {
	ProductID int64
	Quantity  int32
	// Price приходит от клиента и носит справочный характер, в расчётах не участвует.
	Price decimal.Decimal
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ProductID int64
	Quantity  int32
	// Price: цена за единицу, зафиксированная в момент создания заказа.
	Price decimal.Decimal
	// Name не хранится, подставляется из сервиса товаров при чтении.
	Name string
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt32(i.Quantity))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	TotalItems  int32
	TotalAmount decimal.Decimal
	Status      OrderStatus
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderDraft: данные для атомарного создания заказа вместе с позициями.
type OrderDraft struct {
	TotalItems  int32
	TotalAmount decimal.Decimal
	Items       []OrderItem
}

// NewOrderDraft считает итоги по позициям с уже подтверждёнными ценами.
func NewOrderDraft(items []OrderItem) OrderDraft {
	draft := OrderDraft{
		TotalAmount: decimal.Zero,
		Items:       items,
	}
	for _, item := range items {
		draft.TotalItems += item.Quantity
		draft.TotalAmount = draft.TotalAmount.Add(item.Subtotal())
	}
	return draft
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusUnknown)
	}

	var (
		qty    int64
		amount = decimal.Zero
	)
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		qty += int64(item.Quantity)
		amount = amount.Add(item.Subtotal())
	}
	if qty != int64(o.TotalItems) {
		errs = append(errs, ErrItemsMismatch)
	}
	if !amount.Equal(o.TotalAmount) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}

// ProductIDs возвращает уникальные идентификаторы товаров в порядке первого появления.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	return UniqueProductIDs(ids)
}

// UniqueProductIDs убирает повторы, сохраняя порядок.
func UniqueProductIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// OrderPage: страница заказов и общее количество записей.
type OrderPage struct {
	Items []Order
	Total int64
}

// PageMeta описывает пагинацию в ответе списка заказов.
type PageMeta struct {
	Total    int64
	Page     int
	LastPage int
}

// NewPageMeta считает номер последней страницы как ceil(total/limit).
func NewPageMeta(total int64, page, limit int) PageMeta {
	meta := PageMeta{Total: total, Page: page}
	if limit > 0 {
		meta.LastPage = int((total + int64(limit) - 1) / int64(limit))
	}
	return meta
}

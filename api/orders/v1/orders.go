// Package ordersv1 описывает сообщения и gRPC-сервис orders.v1.OrderService.
//
// Сообщения передаются кодеком jsoncodec, поля соответствуют JSON-контракту команд шины.
package ordersv1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы заказа в API.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// OrderLine: позиция в запросе на создание заказа.
type OrderLine struct {
	ProductId int64           `json:"productId" validate:"required,gt=0"`
	Quantity  int32           `json:"quantity" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price"`
}

// CreateOrderRequest: команда createOrder.
type CreateOrderRequest struct {
	Items []*OrderLine `json:"items" validate:"required,min=1,dive,required"`
}

// OrderItem: позиция заказа в ответе.
type OrderItem struct {
	ProductId int64           `json:"productId"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name,omitempty"`
}

// Order: заказ в ответе.
type Order struct {
	Id          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	TotalItems  int32           `json:"totalItems"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Items       []*OrderItem    `json:"OrderItem,omitempty"`
}

// FindAllOrdersRequest: команда findAllOrders. Нулевые значения заменяются значениями по умолчанию.
type FindAllOrdersRequest struct {
	Page  int32 `json:"page,omitempty" validate:"omitempty,gt=0"`
	Limit int32 `json:"limit,omitempty" validate:"omitempty,gt=0,lte=100"`
}

// PageMeta: метаданные пагинации.
type PageMeta struct {
	Total    int64 `json:"total"`
	Page     int32 `json:"page"`
	LastPage int32 `json:"lastPage"`
}

// FindAllOrdersResponse: страница заказов.
type FindAllOrdersResponse struct {
	Data []*Order  `json:"data"`
	Meta *PageMeta `json:"meta"`
}

// FindOneOrderRequest: команда findOneOrder.
type FindOneOrderRequest struct {
	Id string `json:"id" validate:"required,uuid"`
}

// ChangeOrderStatusRequest: команда changeOrderStatus. Прочие поля заказа в полезной нагрузке игнорируются.
type ChangeOrderStatusRequest struct {
	Id     string `json:"id" validate:"required,uuid"`
	Status string `json:"status" validate:"required,oneof=pending paid delivered cancelled"`
}

// GetId возвращает идентификатор заказа или пустую строку для nil.
func (r *FindOneOrderRequest) GetId() string {
	if r == nil {
		return ""
	}
	return r.Id
}

// GetItems возвращает позиции запроса.
func (r *CreateOrderRequest) GetItems() []*OrderLine {
	if r == nil {
		return nil
	}
	return r.Items
}

// GetId возвращает идентификатор заказа.
func (o *Order) GetId() string {
	if o == nil {
		return ""
	}
	return o.Id
}

// GetStatus возвращает статус заказа.
func (o *Order) GetStatus() string {
	if o == nil {
		return ""
	}
	return o.Status
}

package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// CreateWithItems атомарно сохраняет заказ и все позиции, назначая заказу идентификатор.
	CreateWithItems(ctx context.Context, draft OrderDraft) (Order, error)
	// FindByID возвращает заказ с позициями или ErrOrderNotFound, если его нет.
	FindByID(ctx context.Context, id string) (Order, error)
	// FindPage возвращает заказы (без позиций) по возрастанию времени создания и общее количество.
	FindPage(ctx context.Context, page, limit int) (OrderPage, error)
	// UpdateStatus меняет статус, если текущий статус равен from (compare-and-set).
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) (Order, error)
}

// PageOffset переводит номер страницы (с 1) в смещение.
func PageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

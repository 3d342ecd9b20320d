package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок, которые видит вызывающая сторона.
var (
	// ErrInvalidInput: запрос не прошёл базовую проверку формы; удалённые вызовы не выполнялись.
	ErrInvalidInput = errors.New("invalid input")
	// ErrValidationUnavailable: сервис товаров недоступен или не ответил вовремя.
	ErrValidationUnavailable = errors.New("product validation unavailable")
	// ErrProductNotFound: позиция ссылается на товар, которого нет в ответе сервиса товаров.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPersistence: сбой хранилища, включая откат транзакции.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalidStatusTransition: переход статуса не разрешён таблицей переходов.
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	// ErrOrderStatusConflict: статус заказа изменился параллельно.
	ErrOrderStatusConflict = errors.New("order status conflict")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Ошибки инвариантов заказа.
var (
	ErrItemsRequired      = errors.New("order must contain at least one item")
	ErrAmountNegative     = errors.New("total_amount must be non-negative")
	ErrItemQtyInvalid     = errors.New("item quantity must be greater than zero")
	ErrItemPriceInvalid   = errors.New("item price must be non-negative")
	ErrItemsMismatch      = errors.New("order total_items does not match items sum")
	ErrAmountMismatch     = errors.New("order total_amount does not match items sum")
	ErrOrderStatusUnknown = errors.New("unknown order status")
)

// InvalidInputf оборачивает описание ошибки в ErrInvalidInput.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// PersistenceError помечает ошибку хранилища как ErrPersistence, сохраняя исходную причину.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
	// now подменяется в тестах для детерминированной сортировки.
	now func() time.Time
	// events получает order.created и order.status_changed под той же блокировкой, что и запись заказа.
	events domain.OutboxRepository
}

// OrderRepositoryOption настраивает in-memory репозиторий.
type OrderRepositoryOption func(*orderRepositoryInMemory)

// WithOutboxEvents включает запись событий в outbox вместе с изменением заказа.
// Если событие не удалось записать, заказ тоже не меняется.
func WithOutboxEvents(outbox domain.OutboxRepository) OrderRepositoryOption {
	return func(r *orderRepositoryInMemory) {
		r.events = outbox
	}
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(opts ...OrderRepositoryOption) domain.OrderRepository {
	r := &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateWithItems сохраняет заказ вместе с позициями под одной блокировкой.
func (r *orderRepositoryInMemory) CreateWithItems(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.PersistenceError("create order", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	order := domain.Order{
		ID:          uuid.NewString(),
		TotalItems:  draft.TotalItems,
		TotalAmount: draft.TotalAmount,
		Status:      domain.OrderStatusPending,
		Items:       copyItems(draft.Items),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.emitLocked(ctx, domain.EventOrderCreated, order, ""); err != nil {
		return domain.Order{}, err
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order
	return cloneOrder(order), nil
}

// FindByID возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) FindByID(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.PersistenceError("find order", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// FindPage сортирует заказы по времени создания (при равенстве по ID) и отдаёт окно страницы.
func (r *orderRepositoryInMemory) FindPage(ctx context.Context, page, limit int) (domain.OrderPage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderPage{}, domain.PersistenceError("list orders", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		order.Items = nil
		all = append(all, order)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	result := domain.OrderPage{Items: []domain.Order{}, Total: int64(len(all))}
	offset := domain.PageOffset(page, limit)
	if limit <= 0 || offset >= len(all) {
		return result, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	result.Items = append(result.Items, all[offset:end]...)
	return result, nil
}

// UpdateStatus меняет статус, только если текущий статус равен from.
func (r *orderRepositoryInMemory) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, domain.PersistenceError("update order status", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if current.Status != from {
		return domain.Order{}, domain.ErrOrderStatusConflict
	}

	current.Status = to
	current.UpdatedAt = r.now()
	if err := r.emitLocked(ctx, domain.EventOrderStatusChanged, current, from); err != nil {
		return domain.Order{}, err
	}
	r.items[id] = current
	return cloneOrder(current), nil
}

// emitLocked пишет событие до изменения карты заказов: при ошибке заказ остаётся прежним.
func (r *orderRepositoryInMemory) emitLocked(ctx context.Context, eventType string, order domain.Order, previous domain.OrderStatus) error {
	if r.events == nil {
		return nil
	}
	msg, err := domain.NewOrderOutboxMessage(eventType, order, previous)
	if err != nil {
		return domain.PersistenceError("build outbox message", err)
	}
	if _, err := r.events.Enqueue(ctx, msg); err != nil {
		return domain.PersistenceError("enqueue outbox message", err)
	}
	return nil
}

func copyItems(items []domain.OrderItem) []domain.OrderItem {
	if items == nil {
		return nil
	}
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	for i := range out {
		// Имя товара не хранится.
		out[i].Name = ""
	}
	return out
}

func cloneOrder(order domain.Order) domain.Order {
	if order.Items != nil {
		items := make([]domain.OrderItem, len(order.Items))
		copy(items, order.Items)
		order.Items = items
	}
	return order
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)

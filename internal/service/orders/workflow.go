// Package orders реализует сценарии создания, чтения и смены статуса заказов.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
)

// Параметры пагинации списка заказов.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

const (
	operationCreate       = "create"
	operationFindOne      = "find_one"
	operationFindAll      = "find_all"
	operationChangeStatus = "change_status"
)

// Page: результат findAll.
type Page struct {
	Orders []domain.Order
	Meta   domain.PageMeta
}

// Workflow объединяет проверку товаров, расчёт итогов и хранилище заказов.
// Состояния между запросами нет; каждый вызов обрабатывается как отдельная единица работы.
type Workflow struct {
	orders   domain.OrderRepository
	products domain.ProductValidator
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
}

// Option настраивает Workflow.
type Option func(*Workflow)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics включает Prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// NewWorkflow создаёт сценарии поверх репозитория и валидатора товаров.
func NewWorkflow(orders domain.OrderRepository, products domain.ProductValidator, opts ...Option) *Workflow {
	w := &Workflow{
		orders:   orders,
		products: products,
		logger:   log.New().WithField("component", "order-workflow"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Create проверяет товары, считает итоги по актуальным ценам и атомарно сохраняет заказ.
// Клиентская цена в строках игнорируется. Событие order.created пишет репозиторий в той же транзакции.
func (w *Workflow) Create(ctx context.Context, lines []domain.OrderLine) (domain.Order, error) {
	start := time.Now()
	logger := w.logger.WithField("operation", operationCreate)

	if err := validateLines(lines); err != nil {
		return domain.Order{}, w.fail(logger, operationCreate, err)
	}

	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}

	products, err := w.validateProducts(ctx, domain.UniqueProductIDs(ids))
	if err != nil {
		return domain.Order{}, w.fail(logger, operationCreate, err)
	}
	index := domain.ProductIndex(products)

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := index[line.ProductID]
		if !ok {
			err := fmt.Errorf("%w: product %d", domain.ErrProductNotFound, line.ProductID)
			return domain.Order{}, w.fail(logger.WithField("product_id", line.ProductID), operationCreate, err)
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     product.Price,
		})
	}

	order, err := w.orders.CreateWithItems(ctx, domain.NewOrderDraft(items))
	if err != nil {
		return domain.Order{}, w.fail(logger, operationCreate, asPersistence("create order", err))
	}

	if w.metrics != nil {
		w.metrics.RecordOrderCreated(time.Since(start))
	}

	attachNames(&order, index)
	logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"total_items":  order.TotalItems,
		"total_amount": order.TotalAmount.String(),
	}).Info("order created")
	return order, nil
}

// FindOne возвращает заказ с зафиксированными ценами и актуальными названиями товаров.
// Товары, которых больше нет в каталоге, остаются без названия.
func (w *Workflow) FindOne(ctx context.Context, id string) (domain.Order, error) {
	logger := w.logger.WithFields(log.Fields{"operation": operationFindOne, "order_id": id})

	if id == "" {
		return domain.Order{}, w.fail(logger, operationFindOne, domain.InvalidInputf("id is required"))
	}

	order, err := w.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, w.fail(logger, operationFindOne, asPersistence("find order", err))
	}

	products, err := w.validateProducts(ctx, order.ProductIDs())
	if err != nil {
		return domain.Order{}, w.fail(logger, operationFindOne, err)
	}

	attachNames(&order, domain.ProductIndex(products))
	return order, nil
}

// FindAll возвращает страницу заказов по возрастанию времени создания.
// Нулевые page и limit заменяются значениями по умолчанию.
func (w *Workflow) FindAll(ctx context.Context, page, limit int) (Page, error) {
	logger := w.logger.WithField("operation", operationFindAll)

	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 0 {
		return Page{}, w.fail(logger, operationFindAll, domain.InvalidInputf("page must be a positive integer"))
	}
	if limit < 0 || limit > MaxLimit {
		return Page{}, w.fail(logger, operationFindAll, domain.InvalidInputf("limit must be between 1 and %d", MaxLimit))
	}

	result, err := w.orders.FindPage(ctx, page, limit)
	if err != nil {
		return Page{}, w.fail(logger, operationFindAll, asPersistence("list orders", err))
	}

	orders := result.Items
	if orders == nil {
		orders = []domain.Order{}
	}
	return Page{
		Orders: orders,
		Meta:   domain.NewPageMeta(result.Total, page, limit),
	}, nil
}

// ChangeStatus переводит заказ в новый статус по таблице переходов.
// Повторная установка текущего статуса ничего не пишет, в том числе событие в outbox.
func (w *Workflow) ChangeStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	logger := w.logger.WithFields(log.Fields{
		"operation": operationChangeStatus,
		"order_id":  id,
		"status":    status,
	})

	if id == "" {
		return domain.Order{}, w.fail(logger, operationChangeStatus, domain.InvalidInputf("id is required"))
	}
	if !status.Valid() {
		return domain.Order{}, w.fail(logger, operationChangeStatus, domain.InvalidInputf("unknown status %q, expected one of: %s", status, knownStatuses()))
	}

	current, err := w.orders.FindByID(ctx, id)
	if err != nil {
		return domain.Order{}, w.fail(logger, operationChangeStatus, asPersistence("find order", err))
	}

	if current.Status == status {
		return current, nil
	}
	if current.Status.Terminal() {
		err := fmt.Errorf("%w: order is already %s", domain.ErrInvalidStatusTransition, current.Status)
		return domain.Order{}, w.fail(logger, operationChangeStatus, err)
	}
	if !current.Status.CanTransitionTo(status) {
		err := fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, status)
		return domain.Order{}, w.fail(logger, operationChangeStatus, err)
	}

	updated, err := w.orders.UpdateStatus(ctx, id, current.Status, status)
	if err != nil {
		return domain.Order{}, w.fail(logger, operationChangeStatus, asPersistence("update order status", err))
	}

	if w.metrics != nil {
		w.metrics.RecordStatusChange(string(current.Status), string(updated.Status))
	}

	logger.WithField("previous_status", current.Status).Info("order status changed")
	return updated, nil
}

func (w *Workflow) validateProducts(ctx context.Context, ids []int64) ([]domain.Product, error) {
	start := time.Now()
	products, err := w.products.Validate(ctx, ids)
	if err != nil && !errors.Is(err, domain.ErrValidationUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrValidationUnavailable, err)
	}

	if w.metrics != nil {
		result := "ok"
		if err != nil {
			result = "unavailable"
		}
		w.metrics.RecordValidation(result, time.Since(start))
	}
	return products, err
}

func (w *Workflow) fail(logger *log.Entry, operation string, err error) error {
	reason := FailureReason(err)
	entry := logger.WithError(err).WithField("reason", reason)
	switch reason {
	case "persistence", "validation_unavailable":
		entry.Error("order operation failed")
	default:
		entry.Warn("order operation rejected")
	}
	if w.metrics != nil {
		w.metrics.RecordFailure(operation, reason)
	}
	return err
}

// FailureReason возвращает короткую метку класса ошибки для логов и метрик.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrValidationUnavailable):
		return "validation_unavailable"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return "invalid_status_transition"
	case errors.Is(err, domain.ErrOrderStatusConflict):
		return "status_conflict"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	default:
		return "unknown"
	}
}

// validateLines проверяет форму запроса до обращения к сервису товаров.
// totalItems хранится как int32, поэтому сумма количеств ограничена math.MaxInt32.
func validateLines(lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.InvalidInputf("items must not be empty")
	}
	var total int64
	for i, line := range lines {
		if line.ProductID <= 0 {
			return domain.InvalidInputf("items[%d].productId must be > 0", i)
		}
		if line.Quantity <= 0 {
			return domain.InvalidInputf("items[%d].quantity must be > 0", i)
		}
		total += int64(line.Quantity)
	}
	if total > math.MaxInt32 {
		return domain.InvalidInputf("total quantity must not exceed %d", math.MaxInt32)
	}
	return nil
}

func knownStatuses() string {
	statuses := domain.OrderStatuses()
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

// asPersistence оставляет классифицированные ошибки репозитория как есть, остальные помечает ErrPersistence.
func asPersistence(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrOrderStatusConflict),
		errors.Is(err, domain.ErrPersistence):
		return err
	default:
		return domain.PersistenceError(op, err)
	}
}

func attachNames(order *domain.Order, index map[int64]domain.Product) {
	for i := range order.Items {
		if p, ok := index[order.Items[i].ProductID]; ok {
			order.Items[i].Name = p.Name
		}
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const selectOrderColumns = `id::text, total_amount::text, total_items, status, created_at, updated_at`

type orderRepository struct {
	pool *pgxpool.Pool
	// withEvents: писать события заказа в outbox_messages в той же транзакции.
	withEvents bool
}

// OrderRepositoryOption настраивает PostgreSQL-репозиторий.
type OrderRepositoryOption func(*orderRepository)

// WithOutboxEvents включает запись order.created и order.status_changed в транзакции изменения заказа.
func WithOutboxEvents() OrderRepositoryOption {
	return func(r *orderRepository) {
		r.withEvents = true
	}
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store, opts ...OrderRepositoryOption) domain.OrderRepository {
	r := &orderRepository{pool: store.Pool()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateWithItems вставляет заказ и позиции в одной транзакции.
func (r *orderRepository) CreateWithItems(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order := domain.Order{
		ID:          uuid.NewString(),
		TotalItems:  draft.TotalItems,
		TotalAmount: draft.TotalAmount,
		Status:      domain.OrderStatusPending,
		Items:       make([]domain.OrderItem, 0, len(draft.Items)),
	}
	for _, item := range draft.Items {
		item.Name = ""
		order.Items = append(order.Items, item)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO orders (id, total_amount, total_items, status)
			VALUES ($1, $2::numeric, $3, $4)
			RETURNING created_at, updated_at
		`,
			order.ID, order.TotalAmount.String(), order.TotalItems, string(order.Status),
		).Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, product_id, quantity, price)
				VALUES ($1, $2, $3, $4::numeric)
			`, order.ID, item.ProductID, item.Quantity, item.Price.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return r.emit(ctx, tx, domain.EventOrderCreated, order, "")
	})
	if err != nil {
		return domain.Order{}, domain.PersistenceError("create order", err)
	}

	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// FindByID возвращает заказ вместе с позициями.
func (r *orderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+selectOrderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.PersistenceError("select order", err)
	}

	items, err := loadItems(ctx, r.pool, order.ID)
	if err != nil {
		return domain.Order{}, domain.PersistenceError("load order items", err)
	}
	order.Items = items
	return order, nil
}

// FindPage читает страницу и общее количество в одном снимке данных.
func (r *orderRepository) FindPage(ctx context.Context, page, limit int) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result := domain.OrderPage{Items: []domain.Order{}}
	txOptions := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

	err := pgx.BeginTxFunc(ctx, r.pool, txOptions, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&result.Total); err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		if limit <= 0 {
			return nil
		}

		rows, err := tx.Query(ctx, `
			SELECT `+selectOrderColumns+`
			FROM orders
			ORDER BY created_at ASC, id ASC
			LIMIT $1 OFFSET $2
		`, limit, domain.PageOffset(page, limit))
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
			return scanOrder(row)
		})
		if err != nil {
			return fmt.Errorf("scan order rows: %w", err)
		}
		result.Items = append(result.Items, orders...)
		return nil
	})
	if err != nil {
		return domain.OrderPage{}, domain.PersistenceError("list orders", err)
	}
	return result, nil
}

// UpdateStatus выполняет compare-and-set по текущему статусу.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		order     domain.Order
		domainErr error
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		updated, err := scanOrder(tx.QueryRow(ctx, `
			UPDATE orders
			SET status = $3,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = $2
			RETURNING `+selectOrderColumns,
			id, string(from), string(to),
		))
		if errors.Is(err, pgx.ErrNoRows) {
			exists, existsErr := orderExists(ctx, tx, id)
			if existsErr != nil {
				return existsErr
			}
			if !exists {
				domainErr = domain.ErrOrderNotFound
			} else {
				domainErr = domain.ErrOrderStatusConflict
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		items, err := loadItems(ctx, tx, updated.ID)
		if err != nil {
			return err
		}
		updated.Items = items
		order = updated
		return r.emit(ctx, tx, domain.EventOrderStatusChanged, updated, from)
	})
	if err != nil {
		return domain.Order{}, domain.PersistenceError("update order status", err)
	}
	if domainErr != nil {
		return domain.Order{}, domainErr
	}
	return order, nil
}

// emit добавляет событие заказа в outbox внутри tx; ошибка откатывает всю транзакцию.
func (r *orderRepository) emit(ctx context.Context, tx pgx.Tx, eventType string, order domain.Order, previous domain.OrderStatus) error {
	if !r.withEvents {
		return nil
	}
	msg, err := domain.NewOrderOutboxMessage(eventType, order, previous)
	if err != nil {
		return fmt.Errorf("build outbox message: %w", err)
	}
	_, err = insertOutboxMessage(ctx, tx, msg)
	return err
}

// querier: общий интерфейс пула и транзакции.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, quantity, price::text
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var (
			item  domain.OrderItem
			price string
		)
		if err := row.Scan(&item.ProductID, &item.Quantity, &price); err != nil {
			return domain.OrderItem{}, err
		}
		parsed, err := decimal.NewFromString(price)
		if err != nil {
			return domain.OrderItem{}, fmt.Errorf("parse item price %q: %w", price, err)
		}
		item.Price = parsed
		return item, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan order items: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order  domain.Order
		amount string
		status string
	)
	if err := row.Scan(&order.ID, &amount, &order.TotalItems, &status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse total amount %q: %w", amount, err)
	}
	order.TotalAmount = parsed
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func orderExists(ctx context.Context, q querier, orderID string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return exists, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

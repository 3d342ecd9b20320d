package product

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// StaticCatalog: локальный каталог товаров в памяти.
// Используется в dev-окружении без сервиса товаров и в тестах.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	err      error
	calls    int
}

// NewStaticCatalog создаёт каталог с заданными товарами.
func NewStaticCatalog(products ...domain.Product) *StaticCatalog {
	c := &StaticCatalog{products: make(map[int64]domain.Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// DemoCatalog возвращает каталог с несколькими товарами для локального запуска.
func DemoCatalog() *StaticCatalog {
	return NewStaticCatalog(
		domain.Product{ID: 1, Name: "Mechanical Keyboard", Price: decimal.RequireFromString("89.90")},
		domain.Product{ID: 2, Name: "Wireless Mouse", Price: decimal.RequireFromString("29.50")},
		domain.Product{ID: 3, Name: "USB-C Hub", Price: decimal.RequireFromString("45.00")},
		domain.Product{ID: 4, Name: "27\" Monitor", Price: decimal.RequireFromString("249.99")},
	)
}

// Put добавляет или заменяет товар; цена уже созданных заказов не меняется.
func (c *StaticCatalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// Remove удаляет товар из каталога.
func (c *StaticCatalog) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// FailWith заставляет следующие вызовы Validate возвращать ErrValidationUnavailable. nil снимает сбой.
func (c *StaticCatalog) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls возвращает количество вызовов Validate.
func (c *StaticCatalog) Calls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}

// Validate возвращает известные товары; неизвестные id пропускаются.
func (c *StaticCatalog) Validate(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationUnavailable, err)
	}
	if c.err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidationUnavailable, c.err)
	}

	ids := domain.UniqueProductIDs(productIDs)
	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

var _ domain.ProductValidator = (*StaticCatalog)(nil)

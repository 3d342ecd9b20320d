package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "order-1",
		TotalItems:  3,
		TotalAmount: decimal.RequireFromString("25.00"),
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: 1, Quantity: 2, Price: decimal.RequireFromString("10.00")},
			{ProductID: 2, Quantity: 1, Price: decimal.RequireFromString("5.00")},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_QuantitySumDoesNotWrap(t *testing.T) {
	price := decimal.NewFromInt(1)
	order := domain.Order{
		ID: "order-big",
		// int32-сумма двух MaxInt32 переполняется в -2.
		TotalItems:  -2,
		TotalAmount: decimal.NewFromInt(2 * math.MaxInt32),
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: 1, Quantity: math.MaxInt32, Price: price},
			{ProductID: 2, Quantity: math.MaxInt32, Price: price},
		},
	}

	found := false
	for _, err := range order.ValidateInvariants() {
		if errors.Is(err, domain.ErrItemsMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ErrItemsMismatch for wrapped total")
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{
			name: "no items",
			mut: func(o *domain.Order) {
				o.Items = nil
			},
		},
		{
			name: "negative amount",
			mut: func(o *domain.Order) {
				o.TotalAmount = decimal.NewFromInt(-1)
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.Order) {
				o.Items[0].Quantity = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.Order) {
				o.Items[1].Price = decimal.NewFromInt(-5)
			},
		},
		{
			name: "items mismatch",
			mut: func(o *domain.Order) {
				o.TotalItems = 7
			},
		},
		{
			name: "amount mismatch",
			mut: func(o *domain.Order) {
				o.TotalAmount = decimal.NewFromInt(999)
			},
		},
		{
			name: "unknown status",
			mut: func(o *domain.Order) {
				o.Status = "shipped"
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestNewOrderDraft_Totals(t *testing.T) {
	draft := domain.NewOrderDraft([]domain.OrderItem{
		{ProductID: 1, Quantity: 2, Price: decimal.NewFromFloat(10.0)},
		{ProductID: 2, Quantity: 1, Price: decimal.NewFromFloat(5.0)},
	})

	if draft.TotalItems != 3 {
		t.Fatalf("expected total items 3, got %d", draft.TotalItems)
	}
	if !draft.TotalAmount.Equal(decimal.NewFromFloat(25.0)) {
		t.Fatalf("expected total amount 25, got %s", draft.TotalAmount)
	}
}

func TestNewOrderDraft_Empty(t *testing.T) {
	draft := domain.NewOrderDraft(nil)
	if draft.TotalItems != 0 || !draft.TotalAmount.IsZero() {
		t.Fatalf("expected zero totals, got %d / %s", draft.TotalItems, draft.TotalAmount)
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from domain.OrderStatus
		to   domain.OrderStatus
		want bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusPaid, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusDelivered, false},
		{domain.OrderStatusPaid, domain.OrderStatusDelivered, true},
		{domain.OrderStatusPaid, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPaid, domain.OrderStatusPending, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderStatus_ValidAndTerminal(t *testing.T) {
	for _, status := range domain.OrderStatuses() {
		if !status.Valid() {
			t.Errorf("status %s must be valid", status)
		}
	}
	if domain.OrderStatus("created").Valid() {
		t.Error("unexpected valid status")
	}
	if !domain.OrderStatusDelivered.Terminal() || !domain.OrderStatusCancelled.Terminal() {
		t.Error("delivered and cancelled must be terminal")
	}
	if domain.OrderStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
}

func TestUniqueProductIDs(t *testing.T) {
	got := domain.UniqueProductIDs([]int64{3, 1, 3, 2, 1})
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNewPageMeta(t *testing.T) {
	tests := []struct {
		name     string
		total    int64
		page     int
		limit    int
		lastPage int
	}{
		{name: "empty", total: 0, page: 1, limit: 10, lastPage: 0},
		{name: "exact", total: 20, page: 1, limit: 10, lastPage: 2},
		{name: "remainder", total: 21, page: 3, limit: 10, lastPage: 3},
		{name: "single", total: 1, page: 1, limit: 10, lastPage: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := domain.NewPageMeta(tt.total, tt.page, tt.limit)
			if meta.LastPage != tt.lastPage {
				t.Errorf("expected last page %d, got %d", tt.lastPage, meta.LastPage)
			}
			if meta.Total != tt.total || meta.Page != tt.page {
				t.Errorf("unexpected meta: %+v", meta)
			}
		})
	}
}

func TestPageOffset(t *testing.T) {
	if got := domain.PageOffset(1, 10); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := domain.PageOffset(3, 10); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if got := domain.PageOffset(0, 10); got != 0 {
		t.Fatalf("expected 0 for page 0, got %d", got)
	}
}

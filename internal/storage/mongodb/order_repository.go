package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// orderDocument хранит заказ вместе с позициями в одном документе, поэтому вставка атомарна.
type orderDocument struct {
	ID          string               `bson:"_id"`
	TotalAmount primitive.Decimal128 `bson:"total_amount"`
	TotalItems  int32                `bson:"total_items"`
	Status      string               `bson:"status"`
	Items       []itemDocument       `bson:"items,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

type itemDocument struct {
	ProductID int64                `bson:"product_id"`
	Quantity  int32                `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type orderRepository struct {
	client *mongo.Client
	orders *mongo.Collection
	outbox *mongo.Collection
	now    func() time.Time
	// withEvents: изменения заказа и события outbox пишутся в одной транзакции.
	withEvents bool
}

// OrderRepositoryOption настраивает MongoDB-репозиторий.
type OrderRepositoryOption func(*orderRepository)

// WithOutboxEvents включает запись событий заказа в outbox_messages в транзакции изменения.
// Транзакции MongoDB требуют replica set.
func WithOutboxEvents() OrderRepositoryOption {
	return func(r *orderRepository) {
		r.withEvents = true
	}
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store, opts ...OrderRepositoryOption) domain.OrderRepository {
	r := &orderRepository{
		client: store.Client(),
		orders: store.Database().Collection(ordersCollection),
		outbox: store.Database().Collection(outboxCollection),
		now:    mongoNow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// mongoNow обрезает время до миллисекунд: точнее BSON datetime не хранит.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (r *orderRepository) CreateWithItems(ctx context.Context, draft domain.OrderDraft) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	order := domain.Order{
		ID:          uuid.NewString(),
		TotalItems:  draft.TotalItems,
		TotalAmount: draft.TotalAmount,
		Status:      domain.OrderStatusPending,
		Items:       make([]domain.OrderItem, 0, len(draft.Items)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range draft.Items {
		item.Name = ""
		order.Items = append(order.Items, item)
	}

	doc, err := toOrderDocument(order)
	if err != nil {
		return domain.Order{}, domain.PersistenceError("encode order", err)
	}
	err = r.inTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.orders.InsertOne(ctx, doc); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return r.emit(ctx, domain.EventOrderCreated, order, "")
	})
	if err != nil {
		return domain.Order{}, domain.PersistenceError("create order", err)
	}
	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDocument
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.PersistenceError("find order", err)
	}

	order, err := fromOrderDocument(doc)
	if err != nil {
		return domain.Order{}, domain.PersistenceError("decode order", err)
	}
	return order, nil
}

func (r *orderRepository) FindPage(ctx context.Context, page, limit int) (domain.OrderPage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	total, err := r.orders.CountDocuments(ctx, bson.M{})
	if err != nil {
		return domain.OrderPage{}, domain.PersistenceError("count orders", err)
	}

	result := domain.OrderPage{Items: []domain.Order{}, Total: total}
	if limit <= 0 {
		return result, nil
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(domain.PageOffset(page, limit))).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"items": 0})

	cursor, err := r.orders.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return domain.OrderPage{}, domain.PersistenceError("list orders", err)
	}

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return domain.OrderPage{}, domain.PersistenceError("read orders", err)
	}

	for _, doc := range docs {
		order, err := fromOrderDocument(doc)
		if err != nil {
			return domain.OrderPage{}, domain.PersistenceError("decode order", err)
		}
		order.Items = nil
		result.Items = append(result.Items, order)
	}
	return result, nil
}

// UpdateStatus атомарно меняет статус через FindOneAndUpdate с условием на текущий статус.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": r.now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var (
		order     domain.Order
		domainErr error
	)
	err := r.inTransaction(ctx, func(ctx context.Context) error {
		// WithTransaction может повторить fn после временной ошибки.
		domainErr = nil
		var doc orderDocument
		err := r.orders.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			count, countErr := r.orders.CountDocuments(ctx, bson.M{"_id": id})
			if countErr != nil {
				return fmt.Errorf("check order exists: %w", countErr)
			}
			if count == 0 {
				domainErr = domain.ErrOrderNotFound
			} else {
				domainErr = domain.ErrOrderStatusConflict
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		updated, err := fromOrderDocument(doc)
		if err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		order = updated
		return r.emit(ctx, domain.EventOrderStatusChanged, updated, from)
	})
	if err != nil {
		return domain.Order{}, domain.PersistenceError("update order status", err)
	}
	if domainErr != nil {
		return domain.Order{}, domainErr
	}
	return order, nil
}

// inTransaction выполняет fn в транзакции, если включены события; иначе одиночные операции и так атомарны.
func (r *orderRepository) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.withEvents {
		return fn(ctx)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (r *orderRepository) emit(ctx context.Context, eventType string, order domain.Order, previous domain.OrderStatus) error {
	if !r.withEvents {
		return nil
	}
	msg, err := domain.NewOrderOutboxMessage(eventType, order, previous)
	if err != nil {
		return fmt.Errorf("build outbox message: %w", err)
	}
	_, err = insertOutboxMessage(ctx, r.outbox, msg)
	return err
}

func toOrderDocument(order domain.Order) (orderDocument, error) {
	amount, err := toDecimal128(order.TotalAmount)
	if err != nil {
		return orderDocument{}, err
	}

	doc := orderDocument{
		ID:          order.ID,
		TotalAmount: amount,
		TotalItems:  order.TotalItems,
		Status:      string(order.Status),
		Items:       make([]itemDocument, 0, len(order.Items)),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return orderDocument{}, err
		}
		doc.Items = append(doc.Items, itemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}
	return doc, nil
}

func fromOrderDocument(doc orderDocument) (domain.Order, error) {
	amount, err := fromDecimal128(doc.TotalAmount)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          doc.ID,
		TotalItems:  doc.TotalItems,
		TotalAmount: amount,
		Status:      domain.OrderStatus(doc.Status),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
	if len(doc.Items) > 0 {
		order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	}
	for _, item := range doc.Items {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return domain.Order{}, err
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}
	return order, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	value, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("convert %s to decimal128: %w", d, err)
	}
	return value, nil
}

func fromDecimal128(value primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("convert decimal128 %s: %w", value, err)
	}
	return d, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)

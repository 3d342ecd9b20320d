package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/service/orders"
)

// OrderService реализует orders.v1.OrderService поверх сценариев заказов.
// Тот же обработчик используется диспетчером команд из Kafka.
type OrderService struct {
	ordersv1.UnimplementedOrderServiceServer

	workflow *orders.Workflow
	validate *validator.Validate
	logger   *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(workflow *orders.Workflow, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &OrderService{
		workflow: workflow,
		validate: newRequestValidator(),
		logger:   logger,
	}
}

// newRequestValidator возвращает validator, который называет поля по JSON-тегам.
func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CreateOrder создаёт заказ по актуальным ценам товаров.
func (s *OrderService) CreateOrder(ctx context.Context, req *ordersv1.CreateOrderRequest) (*ordersv1.Order, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.OrderLine{
			ProductID: item.ProductId,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	order, err := s.workflow.Create(ctx, lines)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toAPIOrder(order), nil
}

// FindAllOrders возвращает страницу заказов.
func (s *OrderService) FindAllOrders(ctx context.Context, req *ordersv1.FindAllOrdersRequest) (*ordersv1.FindAllOrdersResponse, error) {
	if req == nil {
		req = &ordersv1.FindAllOrdersRequest{}
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	page, err := s.workflow.FindAll(ctx, int(req.Page), int(req.Limit))
	if err != nil {
		return nil, toStatusError(err)
	}

	data := make([]*ordersv1.Order, 0, len(page.Orders))
	for _, order := range page.Orders {
		data = append(data, toAPIOrder(order))
	}
	return &ordersv1.FindAllOrdersResponse{
		Data: data,
		Meta: &ordersv1.PageMeta{
			Total:    page.Meta.Total,
			Page:     int32(page.Meta.Page),     //nolint:gosec // page ограничен валидатором.
			LastPage: int32(page.Meta.LastPage), //nolint:gosec // lastPage <= total/limit.
		},
	}, nil
}

// FindOneOrder возвращает заказ с названиями товаров.
func (s *OrderService) FindOneOrder(ctx context.Context, req *ordersv1.FindOneOrderRequest) (*ordersv1.Order, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	order, err := s.workflow.FindOne(ctx, req.Id)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toAPIOrder(order), nil
}

// ChangeOrderStatus меняет статус заказа.
func (s *OrderService) ChangeOrderStatus(ctx context.Context, req *ordersv1.ChangeOrderStatusRequest) (*ordersv1.Order, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	order, err := s.workflow.ChangeStatus(ctx, req.Id, domain.OrderStatus(req.Status))
	if err != nil {
		return nil, toStatusError(err)
	}
	return toAPIOrder(order), nil
}

func (s *OrderService) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		s.logger.WithError(err).Warn("request validation failed")
		return status.Error(codes.InvalidArgument, err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	msg := strings.Join(msgs, "; ")
	s.logger.WithField("violations", msg).Warn("request validation failed")
	return status.Error(codes.InvalidArgument, msg)
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace включает имя корневой структуры: CreateOrderRequest.items[0].productId.
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must contain at least %s element(s)", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}

// toStatusError переводит классы ошибок домена в коды gRPC.
func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrValidationUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrOrderStatusConflict):
		return status.Error(codes.Aborted, domain.ErrOrderStatusConflict.Error())
	case errors.Is(err, domain.ErrPersistence):
		// Детали хранилища наружу не отдаём.
		return status.Error(codes.Internal, domain.ErrPersistence.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func toAPIOrder(order domain.Order) *ordersv1.Order {
	var items []*ordersv1.OrderItem
	if len(order.Items) > 0 {
		items = make([]*ordersv1.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, &ordersv1.OrderItem{
				ProductId: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				Name:      item.Name,
			})
		}
	}

	return &ordersv1.Order{
		Id:          order.ID,
		TotalAmount: order.TotalAmount,
		TotalItems:  order.TotalItems,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		Items:       items,
	}
}

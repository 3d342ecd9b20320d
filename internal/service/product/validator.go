package product

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	productsv1 "github.com/vladislavdragonenkov/orders/api/products/v1"
	"github.com/vladislavdragonenkov/orders/internal/domain"
)

// DefaultTimeout ограничивает вызов validate_products, если таймаут не задан.
const DefaultTimeout = 3 * time.Second

// GRPCValidator проверяет товары через products.v1.ProductService.
// Повторов нет: любой сбой транспорта возвращается как ErrValidationUnavailable.
type GRPCValidator struct {
	client  productsv1.ProductServiceClient
	timeout time.Duration
	logger  *log.Entry
}

// Dial открывает соединение с сервисом товаров. Соединение ленивое, ошибки сети проявятся при вызове.
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial product service %s: %w", addr, err)
	}
	return conn, nil
}

// NewGRPCValidator создаёт валидатор поверх клиента сервиса товаров.
func NewGRPCValidator(client productsv1.ProductServiceClient, timeout time.Duration, logger *log.Entry) *GRPCValidator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New().WithField("component", "product-validator")
	}
	return &GRPCValidator{client: client, timeout: timeout, logger: logger}
}

// Validate вызывает validate_products с уникальным набором id.
func (v *GRPCValidator) Validate(ctx context.Context, productIDs []int64) ([]domain.Product, error) {
	ids := domain.UniqueProductIDs(productIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	resp, err := v.client.ValidateProducts(callCtx, &productsv1.ValidateProductsRequest{Ids: ids})
	if err != nil {
		v.logger.WithError(err).WithFields(log.Fields{
			"product_ids": ids,
			"code":        status.Code(err).String(),
		}).Warn("validate_products call failed")
		return nil, fmt.Errorf("%w: %s", domain.ErrValidationUnavailable, status.Convert(err).Message())
	}

	products := make([]domain.Product, 0, len(resp.GetProducts()))
	for _, p := range resp.GetProducts() {
		if p == nil {
			continue
		}
		products = append(products, domain.Product{ID: p.Id, Name: p.Name, Price: p.Price})
	}
	return products, nil
}

var _ domain.ProductValidator = (*GRPCValidator)(nil)

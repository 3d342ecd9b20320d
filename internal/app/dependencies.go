package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/connectivity"

	productsv1 "github.com/vladislavdragonenkov/orders/api/products/v1"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/service/product"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
)

// runtimeDependencies: хранилище выбранного драйвера и функция его закрытия.
// Репозиторий заказов пишет события в outboxRepo в той же транзакции, что и сам заказ.
type runtimeDependencies struct {
	repo           domain.OrderRepository
	outboxRepo     domain.OutboxRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies поднимает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("используем in-memory хранилище")
		outbox := memory.NewOutboxRepository()
		return runtimeDependencies{
			repo:       memory.NewOrderRepository(memory.WithOutboxEvents(outbox)),
			outboxRepo: outbox,
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("миграции postgres применены")
		}
		return runtimeDependencies{
			repo:           postgres.NewOrderRepository(store, postgres.WithOutboxEvents()),
			outboxRepo:     postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	case StorageDriverMongo:
		uri := strings.TrimSpace(cfg.MongoURI)
		if uri == "" {
			return runtimeDependencies{}, errors.New("mongo uri is required for mongo storage driver")
		}
		store, err := mongodb.Open(ctx, uri, cfg.MongoDatabase)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("create mongo indexes: %w", err)
		}
		return runtimeDependencies{
			repo:           mongodb.NewOrderRepository(store, mongodb.WithOutboxEvents()),
			outboxRepo:     mongodb.NewOutboxRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// productDependencies: валидатор товаров и его проверка здоровья.
type productDependencies struct {
	validator domain.ProductValidator
	checker   healthcheck.Checker
	closeFn   func() error
}

// initProductValidator подключает сервис товаров или статический каталог, если адрес не задан.
func initProductValidator(cfg Config, logger *log.Entry) (productDependencies, error) {
	addr := strings.TrimSpace(cfg.ProductServiceAddr)
	if addr == "" {
		logger.Warn("OMS_PRODUCT_SERVICE_ADDR не задан, используем демонстрационный каталог товаров")
		return productDependencies{validator: product.DemoCatalog()}, nil
	}

	conn, err := product.Dial(addr)
	if err != nil {
		return productDependencies{}, err
	}
	validator := product.NewGRPCValidator(
		productsv1.NewProductServiceClient(conn),
		cfg.ProductValidateTimeout,
		log.WithField("component", "product-client"),
	)
	checker := healthcheck.NewOptionalChecker("product-service", func(context.Context) error {
		conn.Connect()
		switch state := conn.GetState(); state {
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("product service connection is %s", state)
		default:
			return nil
		}
	})

	logger.WithField("addr", addr).Info("валидатор товаров подключён к product service")
	return productDependencies{validator: validator, checker: checker, closeFn: conn.Close}, nil
}

package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/service/product"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.repo == nil {
		t.Fatal("repo should not be nil for memory storage")
	}
	if deps.outboxRepo == nil {
		t.Fatal("outboxRepo should not be nil for memory storage")
	}
	if deps.closeFn != nil {
		t.Fatal("memory storage has nothing to close")
	}
	if check := deps.storageChecker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy memory storage, got %+v", check)
	}
}

func TestInitRuntimeDependencies_MemoryRepoWritesToOutbox(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "memory-outbox"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}

	created, err := deps.repo.CreateWithItems(ctx, domain.NewOrderDraft([]domain.OrderItem{
		{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(3)},
	}))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	pending, err := deps.outboxRepo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].AggregateID != created.ID || pending[0].EventType != domain.EventOrderCreated {
		t.Fatalf("expected order.created for %s, got %+v", created.ID, pending)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_MongoRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMongo,
	}, log.WithField("test", "mongo-missing-uri"))
	if err == nil {
		t.Fatal("expected error when mongo driver is selected without URI")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitProductValidator_StaticCatalogWithoutAddr(t *testing.T) {
	t.Parallel()

	deps, err := initProductValidator(Config{}, log.WithField("test", "product-static"))
	if err != nil {
		t.Fatalf("initProductValidator failed: %v", err)
	}
	if _, ok := deps.validator.(*product.StaticCatalog); !ok {
		t.Fatalf("expected static catalog, got %T", deps.validator)
	}
	if deps.checker != nil || deps.closeFn != nil {
		t.Fatal("static catalog needs no checker and no close")
	}

	products, err := deps.validator.Validate(context.Background(), []int64{1, 2, 999})
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 known demo products, got %d", len(products))
	}
}

func TestInitProductValidator_GRPCClient(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ProductServiceAddr = "127.0.0.1:1"

	deps, err := initProductValidator(cfg, log.WithField("test", "product-grpc"))
	if err != nil {
		t.Fatalf("initProductValidator failed: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	if _, ok := deps.validator.(*product.GRPCValidator); !ok {
		t.Fatalf("expected grpc validator, got %T", deps.validator)
	}
	if deps.checker == nil {
		t.Fatal("expected product service checker")
	}
	// product service некритичен: недоступность не делает сервис unhealthy
	if check := deps.checker.Check(context.Background()); check.Status == healthcheck.StatusUnhealthy {
		t.Fatalf("product service must not be critical, got %+v", check)
	}
}

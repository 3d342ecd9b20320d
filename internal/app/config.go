package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/service/product"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	GRPCAddr    string
	MetricsAddr string
	LogLevel    string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string

	// ProductServiceAddr пустой: используется встроенный статический каталог.
	ProductServiceAddr     string
	ProductValidateTimeout time.Duration

	KafkaBrokers       string
	KafkaGroupID       string
	KafkaCommandTopic  string
	KafkaReplyTopic    string
	KafkaEventsTopic   string
	KafkaDLQTopic      string
	KafkaConsumerRetry int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:               ":50051",
		MetricsAddr:            ":9090",
		LogLevel:               "info",
		StorageDriver:          StorageDriverMemory,
		PostgresAutoMigrate:    true,
		MongoDatabase:          "orders",
		ProductValidateTimeout: product.DefaultTimeout,
		KafkaGroupID:           "order-service",
		KafkaCommandTopic:      kafka.TopicOrderCommands,
		KafkaReplyTopic:        kafka.TopicOrderReplies,
		KafkaEventsTopic:       kafka.TopicOrderEvents,
		KafkaDLQTopic:          kafka.TopicDeadLetterQueue,
		KafkaConsumerRetry:     3,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      3,
		OutboxRetryDelay:       50 * time.Millisecond,
	}
}

// LoadConfig читает .env (если он есть) и переменные окружения OMS_* поверх DefaultConfig.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := DefaultConfig()
	var errs []error

	setString(&cfg.GRPCAddr, "OMS_GRPC_ADDR")
	setString(&cfg.MetricsAddr, "OMS_METRICS_ADDR")
	setString(&cfg.LogLevel, "OMS_LOG_LEVEL")
	setString(&cfg.StorageDriver, "OMS_STORAGE_DRIVER")
	setString(&cfg.PostgresDSN, "OMS_POSTGRES_DSN")
	setString(&cfg.MongoURI, "OMS_MONGO_URI")
	setString(&cfg.MongoDatabase, "OMS_MONGO_DATABASE")
	setString(&cfg.ProductServiceAddr, "OMS_PRODUCT_SERVICE_ADDR")
	setString(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	setString(&cfg.KafkaGroupID, "OMS_KAFKA_GROUP_ID")
	setString(&cfg.KafkaCommandTopic, "OMS_KAFKA_COMMAND_TOPIC")
	setString(&cfg.KafkaReplyTopic, "OMS_KAFKA_REPLY_TOPIC")
	setString(&cfg.KafkaEventsTopic, "OMS_KAFKA_EVENTS_TOPIC")
	setString(&cfg.KafkaDLQTopic, "OMS_KAFKA_DLQ_TOPIC")

	errs = append(errs,
		setBool(&cfg.PostgresAutoMigrate, "OMS_POSTGRES_AUTO_MIGRATE"),
		setDuration(&cfg.ProductValidateTimeout, "OMS_PRODUCT_VALIDATE_TIMEOUT"),
		setInt(&cfg.KafkaConsumerRetry, "OMS_KAFKA_CONSUMER_RETRIES"),
		setDuration(&cfg.OutboxPollInterval, "OMS_OUTBOX_POLL_INTERVAL"),
		setInt(&cfg.OutboxBatchSize, "OMS_OUTBOX_BATCH_SIZE"),
		setInt(&cfg.OutboxMaxAttempts, "OMS_OUTBOX_MAX_ATTEMPTS"),
		setDuration(&cfg.OutboxRetryDelay, "OMS_OUTBOX_RETRY_DELAY"),
	)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("OMS_POSTGRES_DSN is required for postgres storage")
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return errors.New("OMS_MONGO_URI is required for mongo storage")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}

	if c.ProductValidateTimeout <= 0 {
		return errors.New("OMS_PRODUCT_VALIDATE_TIMEOUT must be positive")
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return errors.New("outbox settings must be positive")
	}
	if c.KafkaConsumerRetry <= 0 {
		return errors.New("OMS_KAFKA_CONSUMER_RETRIES must be positive")
	}
	return nil
}

// BrokerList разбивает KafkaBrokers по запятым, отбрасывая пустые элементы.
func (c Config) BrokerList() []string {
	return splitBrokers(c.KafkaBrokers)
}

func setString(dst *string, key string) {
	if v, ok := lookupNonEmpty(key); ok {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v, ok := lookupNonEmpty(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := lookupNonEmpty(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookupNonEmpty(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func lookupNonEmpty(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

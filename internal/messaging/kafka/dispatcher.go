package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
)

// DefaultCommandTimeout ограничивает обработку одной команды.
const DefaultCommandTimeout = 10 * time.Second

// maxPendingReplies ограничивает кэш неотправленных ответов.
const maxPendingReplies = 1024

// OrderCommands: операции, которые диспетчер умеет вызывать. Реализуется gRPC-сервисом заказов.
type OrderCommands interface {
	CreateOrder(context.Context, *ordersv1.CreateOrderRequest) (*ordersv1.Order, error)
	FindAllOrders(context.Context, *ordersv1.FindAllOrdersRequest) (*ordersv1.FindAllOrdersResponse, error)
	FindOneOrder(context.Context, *ordersv1.FindOneOrderRequest) (*ordersv1.Order, error)
	ChangeOrderStatus(context.Context, *ordersv1.ChangeOrderStatusRequest) (*ordersv1.Order, error)
}

// CommandDispatcher принимает команды из orders.commands и публикует ответы.
//
// Команда выполняется один раз. Если ответ не удалось опубликовать, он остаётся
// в памяти и повторная доставка того же сообщения только переотправляет его.
type CommandDispatcher struct {
	commands   OrderCommands
	replies    *Producer
	replyTopic string
	timeout    time.Duration
	logger     *log.Entry

	mu      sync.Mutex
	pending map[string][]byte
}

// DispatcherOption настраивает CommandDispatcher.
type DispatcherOption func(*CommandDispatcher)

// WithReplyTopic задаёт topic ответов по умолчанию.
func WithReplyTopic(topic string) DispatcherOption {
	return func(d *CommandDispatcher) {
		if topic != "" {
			d.replyTopic = topic
		}
	}
}

// WithCommandTimeout задаёт таймаут обработки команды.
func WithCommandTimeout(timeout time.Duration) DispatcherOption {
	return func(d *CommandDispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDispatcherLogger задаёт логгер.
func WithDispatcherLogger(logger *log.Entry) DispatcherOption {
	return func(d *CommandDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewCommandDispatcher создаёт диспетчер команд.
func NewCommandDispatcher(commands OrderCommands, replies *Producer, opts ...DispatcherOption) *CommandDispatcher {
	d := &CommandDispatcher{
		commands:   commands,
		replies:    replies,
		replyTopic: TopicOrderReplies,
		timeout:    DefaultCommandTimeout,
		logger:     log.WithField("component", "kafka-dispatcher"),
		pending:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle реализует MessageHandler. Ошибка возвращается только при сбое публикации ответа.
func (d *CommandDispatcher) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	cmd, parseErr := ParseCommand(message)
	if parseErr != nil {
		cmd = &CommandEnvelope{}
	}
	if cmd.ID == "" {
		cmd.ID = headerValue(message, HeaderCorrelationID)
	}
	if cmd.ID == "" {
		cmd.ID = string(message.Key)
	}

	logger := d.logger.WithFields(log.Fields{
		"correlation_id": cmd.ID,
		"pattern":        cmd.Pattern,
	})

	if cmd.ID == "" {
		logger.Warn("command without correlation id dropped")
		return nil
	}

	topic := cmd.ReplyTo
	if topic == "" {
		topic = d.replyTopic
	}

	if payload, ok := d.pendingReply(cmd.ID); ok {
		logger.Info("republishing pending reply")
		return d.publishReply(topic, cmd.ID, payload)
	}

	var reply ReplyEnvelope
	if parseErr != nil {
		reply = errorReply(cmd, status.Error(codes.InvalidArgument, "malformed command envelope"))
	} else {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		response, err := d.dispatch(callCtx, cmd)
		cancel()
		if err != nil {
			reply = errorReply(cmd, err)
		} else {
			reply = ReplyEnvelope{ID: cmd.ID, Pattern: cmd.Pattern, Response: response}
		}
	}

	if reply.Err != nil {
		logger.WithField("code", reply.Err.Code).Debug("command rejected")
	}

	payload, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	if err := d.publishReply(topic, cmd.ID, payload); err != nil {
		d.rememberReply(cmd.ID, payload)
		return err
	}
	return nil
}

func (d *CommandDispatcher) dispatch(ctx context.Context, cmd *CommandEnvelope) (any, error) {
	switch cmd.Pattern {
	case PatternCreateOrder:
		var req ordersv1.CreateOrderRequest
		if err := decodeData(cmd.Data, &req); err != nil {
			return nil, err
		}
		return d.commands.CreateOrder(ctx, &req)

	case PatternFindAllOrders:
		var req ordersv1.FindAllOrdersRequest
		if err := decodeData(cmd.Data, &req); err != nil {
			return nil, err
		}
		return d.commands.FindAllOrders(ctx, &req)

	case PatternFindOneOrder:
		req, err := decodeFindOne(cmd.Data)
		if err != nil {
			return nil, err
		}
		return d.commands.FindOneOrder(ctx, req)

	case PatternChangeOrderStatus:
		var req ordersv1.ChangeOrderStatusRequest
		if err := decodeData(cmd.Data, &req); err != nil {
			return nil, err
		}
		return d.commands.ChangeOrderStatus(ctx, &req)

	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown command pattern %q", cmd.Pattern)
	}
}

func (d *CommandDispatcher) publishReply(topic, id string, payload []byte) error {
	if d.replies == nil {
		return fmt.Errorf("reply producer is not initialized")
	}
	if err := d.replies.Publish(topic, id, payload, sarama.RecordHeader{
		Key:   []byte(HeaderCorrelationID),
		Value: []byte(id),
	}); err != nil {
		return err
	}
	d.forgetReply(id)
	return nil
}

func (d *CommandDispatcher) pendingReply(id string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, ok := d.pending[id]
	return payload, ok
}

func (d *CommandDispatcher) rememberReply(id string, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) >= maxPendingReplies {
		for key := range d.pending {
			delete(d.pending, key)
			break
		}
	}
	d.pending[id] = payload
}

func (d *CommandDispatcher) forgetReply(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func errorReply(cmd *CommandEnvelope, err error) ReplyEnvelope {
	st := status.Convert(err)
	return ReplyEnvelope{
		ID:      cmd.ID,
		Pattern: cmd.Pattern,
		Err: &ReplyError{
			Code:    st.Code().String(),
			Status:  int(st.Code()),
			Message: st.Message(),
		},
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if isEmptyData(data) {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed command data: %v", err)
	}
	return nil
}

// decodeFindOne принимает как голый идентификатор ("uuid"), так и объект {"id": "uuid"}.
func decodeFindOne(data json.RawMessage) (*ordersv1.FindOneOrderRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "malformed command data: %v", err)
		}
		return &ordersv1.FindOneOrderRequest{Id: id}, nil
	}

	var req ordersv1.FindOneOrderRequest
	if err := decodeData(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func isEmptyData(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

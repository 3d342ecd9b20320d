package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ordersv1 "github.com/vladislavdragonenkov/orders/api/orders/v1"
)

type fakeCommands struct {
	created      []*ordersv1.CreateOrderRequest
	findAll      []*ordersv1.FindAllOrdersRequest
	findOne      []*ordersv1.FindOneOrderRequest
	changeStatus []*ordersv1.ChangeOrderStatusRequest
	err          error
}

func (f *fakeCommands) CreateOrder(_ context.Context, req *ordersv1.CreateOrderRequest) (*ordersv1.Order, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ordersv1.Order{Id: "order-1", Status: ordersv1.OrderStatusPending, TotalItems: 2}, nil
}

func (f *fakeCommands) FindAllOrders(_ context.Context, req *ordersv1.FindAllOrdersRequest) (*ordersv1.FindAllOrdersResponse, error) {
	f.findAll = append(f.findAll, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ordersv1.FindAllOrdersResponse{Data: []*ordersv1.Order{}, Meta: &ordersv1.PageMeta{Page: 1}}, nil
}

func (f *fakeCommands) FindOneOrder(_ context.Context, req *ordersv1.FindOneOrderRequest) (*ordersv1.Order, error) {
	f.findOne = append(f.findOne, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ordersv1.Order{Id: req.GetId(), Status: ordersv1.OrderStatusPaid}, nil
}

func (f *fakeCommands) ChangeOrderStatus(_ context.Context, req *ordersv1.ChangeOrderStatusRequest) (*ordersv1.Order, error) {
	f.changeStatus = append(f.changeStatus, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ordersv1.Order{Id: req.Id, Status: req.Status}, nil
}

type capturedReply struct {
	ID       string          `json:"id"`
	Pattern  string          `json:"pattern"`
	Response json.RawMessage `json:"response"`
	Err      *ReplyError     `json:"err"`
}

func newTestDispatcher(t *testing.T, commands OrderCommands) (*CommandDispatcher, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{producer: mockProducer, logger: log.WithField("test", "dispatcher")}
	return NewCommandDispatcher(commands, producer, WithDispatcherLogger(log.WithField("test", "dispatcher"))), mockProducer
}

func expectReply(mockProducer *mocks.SyncProducer, out *capturedReply) {
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func commandMessage(t *testing.T, cmd CommandEnvelope) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: TopicOrderCommands, Key: []byte(cmd.ID), Value: value}
}

func TestDispatcher_CreateOrder(t *testing.T) {
	commands := &fakeCommands{}
	dispatcher, mockProducer := newTestDispatcher(t, commands)

	var reply capturedReply
	expectReply(mockProducer, &reply)

	msg := commandMessage(t, CommandEnvelope{
		ID:      "corr-1",
		Pattern: PatternCreateOrder,
		Data:    json.RawMessage(`{"items":[{"productId":1,"quantity":2,"price":10}]}`),
	})
	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())

	require.Len(t, commands.created, 1)
	require.Len(t, commands.created[0].Items, 1)
	require.Equal(t, int64(1), commands.created[0].Items[0].ProductId)

	require.Equal(t, "corr-1", reply.ID)
	require.Nil(t, reply.Err)
	var order ordersv1.Order
	require.NoError(t, json.Unmarshal(reply.Response, &order))
	require.Equal(t, "order-1", order.Id)
}

func TestDispatcher_FindOneAcceptsBareID(t *testing.T) {
	commands := &fakeCommands{}
	dispatcher, mockProducer := newTestDispatcher(t, commands)

	var first, second capturedReply
	expectReply(mockProducer, &first)
	expectReply(mockProducer, &second)

	bare := commandMessage(t, CommandEnvelope{ID: "corr-2", Pattern: PatternFindOneOrder, Data: json.RawMessage(`"order-7"`)})
	object := commandMessage(t, CommandEnvelope{ID: "corr-3", Pattern: PatternFindOneOrder, Data: json.RawMessage(`{"id":"order-8"}`)})

	require.NoError(t, dispatcher.Handle(context.Background(), bare))
	require.NoError(t, dispatcher.Handle(context.Background(), object))
	require.NoError(t, mockProducer.Close())

	require.Len(t, commands.findOne, 2)
	require.Equal(t, "order-7", commands.findOne[0].Id)
	require.Equal(t, "order-8", commands.findOne[1].Id)
	require.Nil(t, first.Err)
	require.Nil(t, second.Err)
}

func TestDispatcher_FindAllWithoutData(t *testing.T) {
	commands := &fakeCommands{}
	dispatcher, mockProducer := newTestDispatcher(t, commands)

	var reply capturedReply
	expectReply(mockProducer, &reply)

	msg := commandMessage(t, CommandEnvelope{ID: "corr-4", Pattern: PatternFindAllOrders})
	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())

	require.Len(t, commands.findAll, 1)
	require.Zero(t, commands.findAll[0].Page)
	require.Zero(t, commands.findAll[0].Limit)
	require.JSONEq(t, `{"data":[],"meta":{"total":0,"page":1,"lastPage":0}}`, string(reply.Response))
}

func TestDispatcher_ChangeStatusError(t *testing.T) {
	commands := &fakeCommands{err: status.Error(codes.FailedPrecondition, "order status transition not allowed")}
	dispatcher, mockProducer := newTestDispatcher(t, commands)

	var reply capturedReply
	expectReply(mockProducer, &reply)

	msg := commandMessage(t, CommandEnvelope{
		ID:      "corr-5",
		Pattern: PatternChangeOrderStatus,
		Data:    json.RawMessage(`{"id":"order-1","status":"pending"}`),
	})
	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())

	require.NotNil(t, reply.Err)
	require.Equal(t, codes.FailedPrecondition.String(), reply.Err.Code)
	require.Equal(t, int(codes.FailedPrecondition), reply.Err.Status)
	require.Equal(t, "order status transition not allowed", reply.Err.Message)
}

func TestDispatcher_InvalidInputRepliesWithoutCalling(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{name: "unknown pattern", value: []byte(`{"id":"corr-6","pattern":"deleteOrder"}`)},
		{name: "malformed data", value: []byte(`{"id":"corr-6","pattern":"createOrder","data":{"items":"x"}}`)},
		{name: "malformed envelope", value: []byte(`{"id":`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands := &fakeCommands{}
			dispatcher, mockProducer := newTestDispatcher(t, commands)

			var reply capturedReply
			expectReply(mockProducer, &reply)

			msg := &sarama.ConsumerMessage{
				Topic:   TopicOrderCommands,
				Key:     []byte("corr-6"),
				Value:   tt.value,
				Headers: []*sarama.RecordHeader{{Key: []byte(HeaderCorrelationID), Value: []byte("corr-6")}},
			}
			require.NoError(t, dispatcher.Handle(context.Background(), msg))
			require.NoError(t, mockProducer.Close())

			require.Empty(t, commands.created)
			require.Equal(t, "corr-6", reply.ID)
			require.NotNil(t, reply.Err)
			require.Equal(t, codes.InvalidArgument.String(), reply.Err.Code)
		})
	}
}

func TestDispatcher_DropsCommandWithoutID(t *testing.T) {
	dispatcher, mockProducer := newTestDispatcher(t, &fakeCommands{})

	msg := &sarama.ConsumerMessage{Topic: TopicOrderCommands, Value: []byte(`{"pattern":"findAllOrders"}`)}
	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())
}

func TestDispatcher_ReplyPublishFailureDoesNotRepeatCommand(t *testing.T) {
	commands := &fakeCommands{}
	dispatcher, mockProducer := newTestDispatcher(t, commands)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	var reply capturedReply
	expectReply(mockProducer, &reply)

	msg := commandMessage(t, CommandEnvelope{
		ID:      "corr-7",
		Pattern: PatternCreateOrder,
		Data:    json.RawMessage(`{"items":[{"productId":1,"quantity":1,"price":1}]}`),
	})

	err := dispatcher.Handle(context.Background(), msg)
	require.Error(t, err)
	require.True(t, errors.Is(err, sarama.ErrOutOfBrokers))

	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())

	require.Len(t, commands.created, 1)
	require.Equal(t, "corr-7", reply.ID)
	_, pending := dispatcher.pendingReply("corr-7")
	require.False(t, pending)
}

func TestDispatcher_UsesReplyTo(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()
	producer := &Producer{producer: mockProducer, logger: log.WithField("test", "dispatcher")}

	dispatcher := NewCommandDispatcher(&fakeCommands{}, producer, WithReplyTopic("custom.replies"))
	require.Equal(t, "custom.replies", dispatcher.replyTopic)

	msg := commandMessage(t, CommandEnvelope{ID: "corr-8", Pattern: PatternFindAllOrders, ReplyTo: "client.replies"})
	require.NoError(t, dispatcher.Handle(context.Background(), msg))
	require.NoError(t, mockProducer.Close())
}

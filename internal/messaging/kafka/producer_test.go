package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var reply ReplyEnvelope
		if err := json.Unmarshal(val, &reply); err != nil {
			return err
		}
		if reply.ID != "corr-1" {
			t.Errorf("unexpected reply id %q", reply.ID)
		}
		return nil
	})

	err := producer.PublishEvent(TopicOrderReplies, "corr-1", ReplyEnvelope{ID: "corr-1", Response: map[string]string{"ok": "yes"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderReplies, "corr-2", ReplyEnvelope{ID: "corr-2"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil)

	if err := producer.PublishEvent(TopicOrderReplies, "k", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestProducer_Close(t *testing.T) {
	producer := NewProducerFromSync(mocks.NewSyncProducer(t, nil), nil)
	if err := producer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewProducerInvalidBroker(t *testing.T) {
	if _, err := NewProducer([]string{"invalid-broker:9092"}); err == nil {
		t.Fatal("expected error for unreachable broker")
	}
}

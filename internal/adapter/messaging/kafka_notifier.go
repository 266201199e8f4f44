package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier invokes alert functions by publishing to the topic named after
// the function. A call returns once the broker accepted the message.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *KafkaNotifier) Invoke(ctx context.Context, functionName, key string, payload []byte) error {
	return n.writer.WriteMessages(ctx, kafka.Message{
		Topic: functionName,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "invocation-type", Value: []byte("Event")},
		},
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// KafkaMutationPublisher ships committed snapshots to a mutation topic for a
// KafkaMutationConsumer in another process.
type KafkaMutationPublisher struct {
	writer *kafka.Writer
}

func NewKafkaMutationPublisher(brokers []string, topic string) *KafkaMutationPublisher {
	return &KafkaMutationPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaMutationPublisher) Publish(ctx context.Context, event domain.MutationEvent) error {
	value, err := EncodeMutation(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Item.ItemID),
		Value: value,
	})
}

func (p *KafkaMutationPublisher) Close() error {
	return p.writer.Close()
}

func EncodeMutation(event domain.MutationEvent) ([]byte, error) {
	item := event.Item
	return json.Marshal(MutationMessage{
		ItemID:            item.ItemID,
		Name:              item.Name,
		Description:       item.Description,
		Quantity:          item.Quantity,
		Price:             item.Price.StringFixed(2),
		Category:          item.Category,
		Supplier:          item.Supplier,
		WarehouseLocation: item.WarehouseLocation,
		ImageURL:          item.ImageURL,
		Version:           item.Version,
		LastUpdated:       item.LastUpdated,
		CreatedAt:         item.CreatedAt,
		CommittedAt:       event.CommittedAt,
	})
}

package messaging

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

// MutationMessage is the wire form of a committed item snapshot produced by a
// primary-store writer running in another process.
type MutationMessage struct {
	ItemID            string    `json:"item_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Quantity          int       `json:"quantity"`
	Price             string    `json:"price"`
	Category          string    `json:"category"`
	Supplier          string    `json:"supplier"`
	WarehouseLocation string    `json:"warehouse_location"`
	ImageURL          *string   `json:"image_url,omitempty"`
	Version           int       `json:"version"`
	LastUpdated       time.Time `json:"last_updated"`
	CreatedAt         time.Time `json:"created_at"`
	CommittedAt       time.Time `json:"committed_at"`
}

// messageReader is the part of *kafka.Reader the consumer relies on.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMutationConsumer feeds mutation messages into a publisher, normally the
// in-process mutation pipeline. Messages are keyed by item id, so one item's
// writes arrive from a single partition in commit order.
type KafkaMutationConsumer struct {
	reader    messageReader
	topic     string
	publisher port.MutationPublisher
	log       *zap.Logger

	mu      sync.Mutex
	commits *commitTracker
}

func NewKafkaMutationConsumer(brokers []string, groupID, topic string, publisher port.MutationPublisher, log *zap.Logger) *KafkaMutationConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		MinBytes:          1,
		MaxBytes:          10e6,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return newMutationConsumer(r, topic, publisher, log)
}

func newMutationConsumer(reader messageReader, topic string, publisher port.MutationPublisher, log *zap.Logger) *KafkaMutationConsumer {
	return &KafkaMutationConsumer{
		reader:    reader,
		topic:     topic,
		publisher: publisher,
		log:       log,
		commits:   newCommitTracker(),
	}
}

// Run consumes until ctx is cancelled. A message's offset is committed once the
// publisher acknowledged the event and every earlier message of the same
// partition is done, so a crash only ever causes redelivery.
func (c *KafkaMutationConsumer) Run(ctx context.Context) error {
	c.log.Info("mutation consumer started", zap.String("topic", c.topic))
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// io.EOF: the reader was closed under us
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error("fetch mutation", zap.Error(err))
			continue
		}

		c.mu.Lock()
		c.commits.track(m)
		c.mu.Unlock()

		event, err := DecodeMutation(m.Value)
		if err != nil {
			c.log.Error("decode mutation", zap.Int64("offset", m.Offset), zap.ByteString("value", m.Value), zap.Error(err))
			c.done(m)
			continue
		}

		event.Ack = func() { c.done(m) }
		if err := c.publisher.Publish(ctx, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Fetching on would let a later commit skip this message. Stopping
			// leaves its offset uncommitted for redelivery.
			return errors.Wrapf(err, "publish mutation of %s at offset %d", event.Item.ItemID, m.Offset)
		}
	}
}

// done marks m processed and commits whatever prefix of its partition that
// completes. Called from pipeline workers, possibly after Run returned.
func (c *KafkaMutationConsumer) done(m kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	commit, ok := c.commits.complete(m)
	if !ok {
		return
	}
	if err := c.reader.CommitMessages(context.Background(), commit); err != nil {
		c.log.Error("commit mutation offset",
			zap.Int("partition", commit.Partition),
			zap.Int64("offset", commit.Offset),
			zap.Error(err),
		)
	}
}

func (c *KafkaMutationConsumer) Close() error { return c.reader.Close() }

// commitTracker orders completions per partition: an offset becomes
// committable only when it and every offset fetched before it are done.
type commitTracker struct {
	pending map[int][]int64
	done    map[int]map[int64]bool
}

func newCommitTracker() *commitTracker {
	return &commitTracker{
		pending: make(map[int][]int64),
		done:    make(map[int]map[int64]bool),
	}
}

func (t *commitTracker) track(m kafka.Message) {
	t.pending[m.Partition] = append(t.pending[m.Partition], m.Offset)
}

// complete returns the message to commit, if the completed prefix grew.
func (t *commitTracker) complete(m kafka.Message) (kafka.Message, bool) {
	done := t.done[m.Partition]
	if done == nil {
		done = make(map[int64]bool)
		t.done[m.Partition] = done
	}
	done[m.Offset] = true

	queue := t.pending[m.Partition]
	last := int64(-1)
	for len(queue) > 0 && done[queue[0]] {
		last = queue[0]
		delete(done, queue[0])
		queue = queue[1:]
	}
	t.pending[m.Partition] = queue

	if last < 0 {
		return kafka.Message{}, false
	}
	return kafka.Message{Topic: m.Topic, Partition: m.Partition, Offset: last}, true
}

func DecodeMutation(value []byte) (domain.MutationEvent, error) {
	var msg MutationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.MutationEvent{}, err
	}
	if msg.ItemID == "" {
		return domain.MutationEvent{}, errors.New("mutation without item_id")
	}
	if msg.Version < 1 {
		return domain.MutationEvent{}, errors.Errorf("mutation of %s without a positive version", msg.ItemID)
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return domain.MutationEvent{}, err
	}

	return domain.MutationEvent{
		Item: domain.InventoryItem{
			ItemID:            msg.ItemID,
			Name:              msg.Name,
			Description:       msg.Description,
			Quantity:          msg.Quantity,
			Price:             price,
			Category:          msg.Category,
			Supplier:          msg.Supplier,
			WarehouseLocation: msg.WarehouseLocation,
			ImageURL:          msg.ImageURL,
			Version:           msg.Version,
			LastUpdated:       msg.LastUpdated,
			CreatedAt:         msg.CreatedAt,
		},
		CommittedAt: msg.CommittedAt,
	}, nil
}

package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

// Mock messageReader serving a fixed list of messages
type fakeReader struct {
	messages chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func newFakeReader(messages ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(messages))}
	for _, m := range messages {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m, ok := <-r.messages:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commitOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		offsets = append(offsets, m.Offset)
	}
	return offsets
}

// Mock publisher that holds events until the test acknowledges them
type heldPublisher struct {
	events chan domain.MutationEvent
	err    error
}

func (p *heldPublisher) Publish(ctx context.Context, event domain.MutationEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events <- event
	return nil
}

func mutationMessage(t *testing.T, partition int, offset int64, itemID string, version int) kafka.Message {
	value, err := EncodeMutation(domain.MutationEvent{
		Item: domain.InventoryItem{ItemID: itemID, Name: "Widget", Quantity: 10, Version: version},
	})
	require.NoError(t, err)
	return kafka.Message{Topic: "inventory.mutations", Partition: partition, Offset: offset, Value: value}
}

func receive(t *testing.T, events <-chan domain.MutationEvent) domain.MutationEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no event published")
		return domain.MutationEvent{}
	}
}

func runConsumer(t *testing.T, reader *fakeReader, publisher *heldPublisher) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newMutationConsumer(reader, "inventory.mutations", publisher, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestConsumer_CommitsOnlyAfterProcessing(t *testing.T) {
	reader := newFakeReader(
		mutationMessage(t, 0, 10, "SKU-1", 1),
		mutationMessage(t, 0, 11, "SKU-2", 1),
		mutationMessage(t, 0, 12, "SKU-3", 1),
	)
	publisher := &heldPublisher{events: make(chan domain.MutationEvent, 3)}
	cancel, done := runConsumer(t, reader, publisher)

	first := receive(t, publisher.events)
	second := receive(t, publisher.events)
	third := receive(t, publisher.events)
	assert.Empty(t, reader.commitOffsets(), "offsets committed before processing")

	// a later message finishing first must not move the offset past an earlier one
	second.Ack()
	assert.Empty(t, reader.commitOffsets())

	first.Ack()
	assert.Equal(t, []int64{11}, reader.commitOffsets())

	third.Ack()
	assert.Equal(t, []int64{11, 12}, reader.commitOffsets())

	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_PartitionsCommitIndependently(t *testing.T) {
	reader := newFakeReader(
		mutationMessage(t, 0, 5, "SKU-1", 1),
		mutationMessage(t, 1, 7, "SKU-2", 1),
	)
	publisher := &heldPublisher{events: make(chan domain.MutationEvent, 2)}
	runConsumer(t, reader, publisher)

	receive(t, publisher.events)
	second := receive(t, publisher.events)

	second.Ack()
	require.Len(t, reader.committed, 1)
	assert.Equal(t, 1, reader.committed[0].Partition)
	assert.Equal(t, int64(7), reader.committed[0].Offset)
}

func TestConsumer_SkipsUndecodableMessage(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Partition: 0, Offset: 3, Value: []byte(`{"item_id":"SKU-1","price":"1.00"}`)},
	)
	publisher := &heldPublisher{events: make(chan domain.MutationEvent, 1)}
	runConsumer(t, reader, publisher)

	assert.Eventually(t, func() bool {
		return fmt.Sprint(reader.commitOffsets()) == "[3]"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, publisher.events)
}

func TestConsumer_PublishFailureStops(t *testing.T) {
	errClosed := errors.New("pipeline closed")
	reader := newFakeReader(
		mutationMessage(t, 0, 1, "SKU-1", 1),
		mutationMessage(t, 0, 2, "SKU-1", 2),
	)
	publisher := &heldPublisher{err: errClosed}
	_, done := runConsumer(t, reader, publisher)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer kept running after a publish failure")
	}
	assert.Empty(t, reader.commitOffsets())
	assert.Len(t, reader.messages, 1, "consumer fetched past the failed message")
}

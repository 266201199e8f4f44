package service

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/port"
)

var ErrPipelineClosed = errors.New("mutation pipeline closed")

// MutationPipeline fans committed writes out to replication and alerting.
// Events of one item always land on the same worker, so they are handled one
// at a time and in publish order.
type MutationPipeline struct {
	replication *ReplicationWriter
	alerts      *AlertService
	failures    port.FailureLog
	log         *zap.Logger

	shards []chan domain.MutationEvent
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewMutationPipeline(
	replication *ReplicationWriter,
	alerts *AlertService,
	failures port.FailureLog,
	log *zap.Logger,
	workers, queueSize int,
) *MutationPipeline {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	shards := make([]chan domain.MutationEvent, workers)
	for i := range shards {
		shards[i] = make(chan domain.MutationEvent, queueSize)
	}

	return &MutationPipeline{
		replication: replication,
		alerts:      alerts,
		failures:    failures,
		log:         log,
		shards:      shards,
	}
}

// Start launches one worker per shard. Workers exit once Close drains them.
func (p *MutationPipeline) Start(ctx context.Context) {
	for i, shard := range p.shards {
		p.wg.Add(1)
		go func(id int, queue <-chan domain.MutationEvent) {
			defer p.wg.Done()
			p.workerLoop(ctx, id, queue)
		}(i, shard)
	}
	p.log.Info("mutation pipeline started", zap.Int("workers", len(p.shards)))
}

func (p *MutationPipeline) Publish(ctx context.Context, event domain.MutationEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPipelineClosed
	}

	select {
	case p.shards[p.shardFor(event.Item.ItemID)] <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for queued events to be processed.
func (p *MutationPipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, shard := range p.shards {
		close(shard)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("mutation pipeline drained")
}

// QueueDepth is the number of events waiting across all workers.
func (p *MutationPipeline) QueueDepth() int {
	depth := 0
	for _, shard := range p.shards {
		depth += len(shard)
	}
	return depth
}

func (p *MutationPipeline) shardFor(itemID string) int {
	return int(xxhash.Sum64String(itemID) % uint64(len(p.shards)))
}

func (p *MutationPipeline) workerLoop(ctx context.Context, id int, queue <-chan domain.MutationEvent) {
	for event := range queue {
		p.process(ctx, id, event)
		if event.Ack != nil {
			event.Ack()
		}
	}
}

// process runs replication and alerting side by side; neither waits on the
// other's success.
func (p *MutationPipeline) process(ctx context.Context, worker int, event domain.MutationEvent) {
	item := event.Item

	var g errgroup.Group
	g.Go(func() error {
		err := p.replication.Propagate(ctx, item)
		if err != nil {
			record := domain.FailureRecord{Kind: domain.FailureReplication, ItemID: item.ItemID, Error: err.Error()}
			var replErr *domain.ReplicationError
			if errors.As(err, &replErr) {
				record.Attempts = replErr.Attempts
			}
			reportFailure(ctx, p.failures, p.log, record)
		}
		return err
	})
	g.Go(func() error {
		return p.alerts.Process(ctx, item)
	})

	if err := g.Wait(); err != nil {
		p.log.Warn("mutation processed with failures",
			zap.Int("worker", worker),
			zap.String("item_id", item.ItemID),
			zap.Int("version", item.Version),
			zap.Error(err),
		)
		return
	}
	p.log.Debug("mutation processed",
		zap.Int("worker", worker),
		zap.String("item_id", item.ItemID),
		zap.Int("version", item.Version),
	)
}

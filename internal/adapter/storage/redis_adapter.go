package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

const (
	replicaKeyPrefix  = "replica:item:"
	deliveryKeyPrefix = "alert:delivered:"
	failureLogKey     = "failures"
	deliveryKeyTTL    = 7 * 24 * time.Hour
	defaultFailureCap = 1000
)

// upsertReplicaScript writes the projection only when it is not older than the
// stored one. Re-sending the same version is a no-op.
var upsertReplicaScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) >= version then
	return 0
end

redis.call('HSET', key,
	'version', ARGV[1],
	'item_id', ARGV[2],
	'name', ARGV[3],
	'quantity', ARGV[4],
	'price', ARGV[5],
	'category', ARGV[6],
	'last_updated', ARGV[7])
return 1
`)

// RedisAdapter is the secondary store. It also keeps alert delivery claims and
// the operator failure log.
type RedisAdapter struct {
	client     *redis.Client
	failureCap int64
}

func NewRedisAdapter(client *redis.Client, failureCap int) *RedisAdapter {
	if failureCap <= 0 {
		failureCap = defaultFailureCap
	}
	return &RedisAdapter{client: client, failureCap: int64(failureCap)}
}

func (r *RedisAdapter) UpsertReplica(ctx context.Context, record domain.ReplicaRecord) error {
	_, err := r.upsertReplica(ctx, record)
	return err
}

// upsertReplica reports whether the record was written.
func (r *RedisAdapter) upsertReplica(ctx context.Context, record domain.ReplicaRecord) (bool, error) {
	key := replicaKeyPrefix + record.ItemID

	result, err := upsertReplicaScript.Run(ctx, r.client, []string{key},
		record.Version,
		record.ItemID,
		record.Name,
		record.Quantity,
		record.Price,
		record.Category,
		record.SyncedAt.Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, errors.Wrapf(err, "upsert replica %s", record.ItemID)
	}

	return result == 1, nil
}

// GetReplica returns nil when the item was never propagated.
func (r *RedisAdapter) GetReplica(ctx context.Context, itemID string) (*domain.ReplicaRecord, error) {
	fields, err := r.client.HGetAll(ctx, replicaKeyPrefix+itemID).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "read replica %s", itemID)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	quantity, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return nil, errors.Wrap(err, "replica quantity")
	}
	version, err := strconv.Atoi(fields["version"])
	if err != nil {
		return nil, errors.Wrap(err, "replica version")
	}
	syncedAt, err := time.Parse(time.RFC3339Nano, fields["last_updated"])
	if err != nil {
		return nil, errors.Wrap(err, "replica last_updated")
	}

	return &domain.ReplicaRecord{
		ItemID:   fields["item_id"],
		Name:     fields["name"],
		Quantity: quantity,
		Price:    fields["price"],
		Category: fields["category"],
		Version:  version,
		SyncedAt: syncedAt,
	}, nil
}

func (r *RedisAdapter) ClaimDelivery(ctx context.Context, eventID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, deliveryKeyPrefix+eventID, 1, deliveryKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseDelivery(ctx context.Context, eventID string) error {
	return r.client.Del(ctx, deliveryKeyPrefix+eventID).Err()
}

// RecordFailure pushes record to the head of a capped list.
func (r *RedisAdapter) RecordFailure(ctx context.Context, record domain.FailureRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode failure")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, failureLogKey, data)
		pipe.LTrim(ctx, failureLogKey, 0, r.failureCap-1)
		return nil
	})
	return errors.Wrap(err, "record failure")
}

// RecentFailures returns up to limit records, newest first.
func (r *RedisAdapter) RecentFailures(ctx context.Context, limit int) ([]domain.FailureRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, failureLogKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read failures")
	}

	records := make([]domain.FailureRecord, 0, len(raw))
	for _, item := range raw {
		var record domain.FailureRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, errors.Wrap(err, "decode failure")
		}
		records = append(records, record)
	}
	return records, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-sync/internal/adapter/messaging"
	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/core/domain"
	"github.com/rl1809/inventory-sync/internal/core/service"
	"github.com/rl1809/inventory-sync/internal/logger"
	"github.com/rl1809/inventory-sync/internal/port"
)

const (
	itemID        = "stress-sku"
	initialStock  = 100
	threshold     = 10
	totalRequests = 100
	workerCount   = 8
	queueSize     = 1000
	stressGroupID = "inventory-sync-stress"
	syncTimeout   = 30 * time.Second
)

// countingNotifier stands in for the alert function and counts accepted invocations.
type countingNotifier struct {
	calls atomic.Int32
}

func (n *countingNotifier) Invoke(ctx context.Context, functionName, key string, payload []byte) error {
	n.calls.Add(1)
	return nil
}

func main() {
	ctx := context.Background()

	if err := logger.Init(false); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	mysqlDSN := getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/inventory?parseTime=true")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	// With KAFKA_BROKERS set, writes travel through the mutation topic and a
	// consumer instead of straight into the pipeline.
	brokers := os.Getenv("KAFKA_BROKERS")
	topic := getenv("MUTATION_TOPIC", "inventory.mutations.stress")

	if err := storage.Migrate(mysqlDSN, log); err != nil {
		log.Fatal("failed to migrate", zap.Error(err))
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatal("failed to connect mysql", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// Clear previous run
	db.ExecContext(ctx, `DELETE FROM inventory_items WHERE item_id = ?`, itemID)
	rdb.Del(ctx, "replica:item:"+itemID)

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, 100)
	notifier := &countingNotifier{}
	retry := service.DefaultRetryPolicy()

	alerts := service.NewAlertService(
		mysqlAdapter,
		service.NewAlertEvaluator(service.RearmNever),
		service.NewNotificationDispatcher(notifier, redisAdapter, service.DefaultAlertFunction),
		redisAdapter, retry, log,
	)
	pipeline := service.NewMutationPipeline(service.NewReplicationWriter(redisAdapter, retry), alerts, redisAdapter, log, workerCount, queueSize)
	pipeline.Start(ctx)

	var publisher port.MutationPublisher = pipeline
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	var consumerDone chan error
	if brokers != "" {
		kafkaPublisher := messaging.NewKafkaMutationPublisher(strings.Split(brokers, ","), topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		consumer := messaging.NewKafkaMutationConsumer(strings.Split(brokers, ","), stressGroupID, topic, pipeline, log)
		defer consumer.Close()
		consumerDone = make(chan error, 1)
		go func() { consumerDone <- consumer.Run(consumerCtx) }()
		log.Info("routing mutations through kafka", zap.String("topic", topic))
	}

	inventory := service.NewInventoryService(mysqlAdapter, mysqlAdapter, publisher, redisAdapter, service.Validator{}, log)

	if _, err := inventory.Save(ctx, domain.InventoryItem{
		ItemID:   itemID,
		Name:     "Stress Widget",
		Quantity: initialStock,
		Price:    decimal.RequireFromString("9.99"),
		Category: "stress",
	}); err != nil {
		log.Fatal("failed to save item", zap.Error(err))
	}
	if _, err := inventory.AddAlertRule(ctx, itemID, domain.AlertTypeLowStock, threshold); err != nil {
		log.Fatal("failed to add alert", zap.Error(err))
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := inventory.AdjustQuantity(ctx, itemID, -1); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()

	primary, err := inventory.Get(ctx, itemID)
	if err != nil {
		log.Fatal("failed to read item", zap.Error(err))
	}
	if consumerDone != nil {
		waitForReplica(ctx, redisAdapter, primary.Version, log)
		stopConsumer()
		if err := <-consumerDone; err != nil {
			log.Error("mutation consumer stopped", zap.Error(err))
		}
	}
	pipeline.Close()
	elapsed := time.Since(start)

	replica, err := redisAdapter.GetReplica(ctx, itemID)
	if err != nil || replica == nil {
		log.Fatal("failed to read replica", zap.Error(err))
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:     %d\n", initialStock)
	fmt.Printf("Alert Threshold:   %d\n", threshold)
	fmt.Printf("Total Writes:      %d\n", totalRequests)
	fmt.Printf("Successful:        %d\n", successCount.Load())
	fmt.Printf("Failed:            %d\n", failCount.Load())
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	if primary.Quantity == replica.Quantity && primary.Version == replica.Version {
		fmt.Printf("PASS: replica matches primary (quantity=%d version=%d)\n", primary.Quantity, primary.Version)
	} else {
		fmt.Printf("FAIL: primary quantity=%d version=%d, replica quantity=%d version=%d\n",
			primary.Quantity, primary.Version, replica.Quantity, replica.Version)
	}

	if calls := notifier.calls.Load(); calls == 1 {
		fmt.Println("PASS: exactly one stock alert dispatched")
	} else {
		fmt.Printf("FAIL: expected 1 stock alert, got %d\n", calls)
	}
}

// waitForReplica polls until the replica caught up with version or syncTimeout passed.
func waitForReplica(ctx context.Context, replicas *storage.RedisAdapter, version int, log *zap.Logger) {
	deadline := time.Now().Add(syncTimeout)
	for time.Now().Before(deadline) {
		replica, err := replicas.GetReplica(ctx, itemID)
		if err == nil && replica != nil && replica.Version >= version {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Warn("replica did not catch up", zap.Int("version", version), zap.Duration("waited", syncTimeout))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

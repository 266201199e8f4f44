package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-sync/internal/adapter/handler"
	"github.com/rl1809/inventory-sync/internal/adapter/messaging"
	"github.com/rl1809/inventory-sync/internal/adapter/storage"
	"github.com/rl1809/inventory-sync/internal/core/service"
)

func newServeCommand(a *app) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume inventory mutations, replicate them and evaluate stock alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrateFirst {
				if err := storage.Migrate(a.cfg.MySQLDSN, a.log); err != nil {
					return err
				}
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply schema migrations before serving")

	return cmd
}

func (a *app) serve(parent context.Context) error {
	cfg, log := a.cfg, a.log

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxOpenConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return err
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 100,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	notifier := messaging.NewKafkaNotifier(cfg.KafkaBrokers)
	defer notifier.Close()

	// Initialize adapters and services
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.FailureLogSize)
	retry := cfg.RetryPolicy()

	replication := service.NewReplicationWriter(redisAdapter, retry)
	dispatcher := service.NewNotificationDispatcher(notifier, redisAdapter, cfg.AlertFunctionName)
	alerts := service.NewAlertService(mysqlAdapter, service.NewAlertEvaluator(cfg.RearmPolicy()), dispatcher, redisAdapter, retry, log)

	pipeline := service.NewMutationPipeline(replication, alerts, redisAdapter, log, cfg.PipelineWorkers, cfg.PipelineQueueSize)
	// Workers outlive ctx so that Close can drain what was already accepted;
	// whatever is still retrying after ShutdownTimeout is cut short.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	pipeline.Start(workCtx)
	// The consumer commits offsets as workers acknowledge events, so its
	// reader is closed only after the pipeline drained.
	var consumer *messaging.KafkaMutationConsumer
	defer func() {
		deadline := time.AfterFunc(cfg.ShutdownTimeout, cancelWork)
		pipeline.Close()
		deadline.Stop()
		cancelWork()
		if consumer != nil {
			consumer.Close()
		}
	}()

	grpcServer, healthSrv := handler.NewGRPCServer(log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewHTTPHandler(redisAdapter, redisAdapter, pipeline, log).Router(),
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MutationTopic != "" {
		consumer = messaging.NewKafkaMutationConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.MutationTopic, pipeline, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown", zap.Error(err))
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

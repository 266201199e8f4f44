// Package config loads runtime settings from the environment.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"github.com/rl1809/inventory-sync/internal/core/service"
)

type Config struct {
	Env      string `envconfig:"ENV" default:"production"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	MySQLDSN          string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/inventory?parseTime=true"`
	MySQLMaxOpenConns int    `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"50"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaGroupID      string   `envconfig:"KAFKA_GROUP_ID" default:"inventory-sync"`
	MutationTopic     string   `envconfig:"MUTATION_TOPIC" default:"inventory.mutations"`
	AlertFunctionName string   `envconfig:"ALERT_FUNCTION_NAME" default:"StockAlertFunction"`

	PipelineWorkers   int `envconfig:"PIPELINE_WORKERS" default:"10"`
	PipelineQueueSize int `envconfig:"PIPELINE_QUEUE_SIZE" default:"10000"`

	RetryMaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"5"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"100ms"`
	RetryMaxInterval     time.Duration `envconfig:"RETRY_MAX_INTERVAL" default:"5s"`
	CallTimeout          time.Duration `envconfig:"CALL_TIMEOUT" default:"5s"`

	AlertRearm            string `envconfig:"ALERT_REARM" default:"never"`
	AllowNegativeQuantity bool   `envconfig:"ALLOW_NEGATIVE_QUANTITY" default:"false"`

	FailureLogSize  int           `envconfig:"FAILURE_LOG_SIZE" default:"1000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.PipelineWorkers < 1 {
		return errors.Errorf("PIPELINE_WORKERS must be >= 1, got %d", c.PipelineWorkers)
	}
	if c.PipelineQueueSize < 0 {
		return errors.Errorf("PIPELINE_QUEUE_SIZE must be >= 0, got %d", c.PipelineQueueSize)
	}
	if c.RetryMaxAttempts < 1 {
		return errors.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryInitialInterval <= 0 || c.RetryMaxInterval < c.RetryInitialInterval {
		return errors.Errorf("retry intervals must satisfy 0 < initial <= max, got %s/%s", c.RetryInitialInterval, c.RetryMaxInterval)
	}
	if c.CallTimeout <= 0 {
		return errors.Errorf("CALL_TIMEOUT must be positive, got %s", c.CallTimeout)
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS must not be empty")
	}
	if _, err := service.ParseRearmPolicy(c.AlertRearm); err != nil {
		return errors.Wrap(err, "ALERT_REARM")
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "development"
}

func (c Config) RetryPolicy() service.RetryPolicy {
	return service.RetryPolicy{
		MaxAttempts:     c.RetryMaxAttempts,
		InitialInterval: c.RetryInitialInterval,
		MaxInterval:     c.RetryMaxInterval,
		CallTimeout:     c.CallTimeout,
	}
}

func (c Config) RearmPolicy() service.RearmPolicy {
	p, _ := service.ParseRearmPolicy(c.AlertRearm)
	return p
}

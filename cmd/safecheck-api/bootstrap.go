package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/SafeCheck/config"
	"github.com/BearBump/SafeCheck/internal/broker/kafka"
	"github.com/BearBump/SafeCheck/internal/cache/rediscache"
	"github.com/BearBump/SafeCheck/internal/services/subjects"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
)

type safecheckAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     safecheckAPIOpts
	svc      *subjects.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapSafeCheckAPI() *safecheckAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.SafeCheck.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.SafeCheck.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "safecheck-api"
	}
	topic := cfg.Kafka.MonitoringEventsTopicName
	if topic == "" {
		topic = "safety.events"
	}

	cacheTTL := time.Duration(cfg.SafeCheck.SubjectCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	svc := subjects.New(st, rc, cacheTTL, producer, topic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &safecheckAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: safecheckAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgsafety.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgsafety.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *safecheckAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *safecheckAPIApp) Run() error {
	return runSafeCheckAPI(a.ctx, a.opts, a.svc, a.consumer)
}

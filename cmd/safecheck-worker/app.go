package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/SafeCheck/config"
	"github.com/BearBump/SafeCheck/internal/broker/kafka"
	"github.com/BearBump/SafeCheck/internal/cache/rediscache"
	"github.com/BearBump/SafeCheck/internal/integrations/push"
	pushfake "github.com/BearBump/SafeCheck/internal/integrations/push/fake"
	"github.com/BearBump/SafeCheck/internal/integrations/push/fcmhttp"
	"github.com/BearBump/SafeCheck/internal/integrations/sms"
	smsfake "github.com/BearBump/SafeCheck/internal/integrations/sms/fake"
	"github.com/BearBump/SafeCheck/internal/integrations/sms/twiliohttp"
	"github.com/BearBump/SafeCheck/internal/services/escalation"
	"github.com/BearBump/SafeCheck/internal/services/monitor"
	"github.com/BearBump/SafeCheck/internal/services/reminder"
	"github.com/BearBump/SafeCheck/internal/storage/pgsafety"
)

type workerRepository interface {
	monitor.Repository
	reminder.Repository
	escalation.Repository
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo workerRepository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) monitor.Producer
	newRateLimiter func(cfg *config.Config) *rediscache.RateLimiter
	newPushClient  func(cfg *config.Config) push.Client
	newSMSClient   func(cfg *config.Config) sms.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgsafety.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) monitor.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) *rediscache.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newPushClient: func(cfg *config.Config) push.Client {
			// Без service account (локальный запуск) — fallback на fake.
			if cfg.SafeCheck.FCMServiceAccountPath == "" {
				return pushfake.New()
			}
			c, err := fcmhttp.New(cfg.SafeCheck.FCMServiceAccountPath, cfg.SafeCheck.FCMBaseURL)
			if err != nil {
				slog.Error("fcm client init, falling back to fake", "error", err.Error())
				return pushfake.New()
			}
			return c
		},
		newSMSClient: func(cfg *config.Config) sms.Client {
			if cfg.SafeCheck.TwilioAccountSID == "" || cfg.SafeCheck.TwilioAuthToken == "" {
				return smsfake.New()
			}
			return twiliohttp.New(cfg.SafeCheck.TwilioBaseURL,
				cfg.SafeCheck.TwilioAccountSID, cfg.SafeCheck.TwilioAuthToken, cfg.SafeCheck.TwilioFromNumber)
		},
	}
}

func RunSafeCheckWorker(ctx context.Context, cfg *config.Config, f workerFactories, onRunner func(*monitor.Runner)) error {
	topic := cfg.Kafka.MonitoringEventsTopicName
	if topic == "" {
		topic = "safety.events"
	}

	reminderInterval := time.Duration(cfg.SafeCheck.WorkerReminderIntervalSeconds) * time.Second
	if reminderInterval <= 0 {
		reminderInterval = 5 * time.Minute
	}
	escalationInterval := time.Duration(cfg.SafeCheck.WorkerEscalationIntervalSeconds) * time.Second
	if escalationInterval <= 0 {
		escalationInterval = 5 * time.Minute
	}
	batchSize := cfg.SafeCheck.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.SafeCheck.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.SafeCheck.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	pushPerMin := int64(cfg.SafeCheck.WorkerPushRateLimitPerMinute)
	smsPerMin := int64(cfg.SafeCheck.WorkerSMSRateLimitPerMinute)

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	pushClient := f.newPushClient(cfg)
	smsClient := f.newSMSClient(cfg)

	var schedRL reminder.RateLimiter
	var engRL escalation.RateLimiter
	if rl != nil {
		schedRL = rl
		engRL = rl
	}

	sched := reminder.New(repo, pushClient, schedRL).WithRateLimit(pushPerMin)
	eng := escalation.New(repo, pushClient, smsClient, engRL).WithRateLimits(pushPerMin, smsPerMin)

	r := monitor.New(repo, sched, eng, producer, topic).
		WithSettings(reminderInterval, escalationInterval, batchSize, concurrency, lease)

	if onRunner != nil {
		onRunner(r)
	}

	return r.Run(ctx)
}

package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	SafeCheck SafeCheckConfig `yaml:"safecheck"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	MonitoringEventsTopicName string `yaml:"monitoring_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SafeCheckConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	SubjectCacheTTLSeconds int    `yaml:"subject_cache_ttl_seconds"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Worker scheduling. If not set, defaults are "prod-like":
	// reminder pass every 5 minutes, escalation pass every 5 minutes.
	WorkerReminderIntervalSeconds   int `yaml:"worker_reminder_interval_seconds"`
	WorkerEscalationIntervalSeconds int `yaml:"worker_escalation_interval_seconds"`
	WorkerBatchSize                 int `yaml:"worker_batch_size"`
	WorkerConcurrency               int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds              int `yaml:"worker_lease_seconds"`
	WorkerPushRateLimitPerMinute    int `yaml:"worker_push_rate_limit_per_minute"`
	WorkerSMSRateLimitPerMinute     int `yaml:"worker_sms_rate_limit_per_minute"`

	FCMServiceAccountPath string `yaml:"fcm_service_account_path"`
	FCMBaseURL            string `yaml:"fcm_base_url"` // override для эмулятора/тестов

	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFromNumber string `yaml:"twilio_from_number"`
	TwilioBaseURL    string `yaml:"twilio_base_url"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

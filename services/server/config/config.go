package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the telprobe server.
type Config struct {
	LogLevel         string
	HTTPPort         string
	MetricsAddr      string
	RedisAddr        string
	PostgresDSN      string
	BridgeURL        string
	QueueName        string
	Workers          int
	DequeueTimeout   time.Duration
	SchedulerEnabled bool
	OTelEndpoint     string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:         v.GetString("log_level"),
		HTTPPort:         v.GetString("http_port"),
		MetricsAddr:      v.GetString("metrics_addr"),
		RedisAddr:        v.GetString("redis_addr"),
		PostgresDSN:      v.GetString("postgres_dsn"),
		BridgeURL:        v.GetString("bridge_url"),
		QueueName:        v.GetString("queue_name"),
		Workers:          v.GetInt("workers"),
		DequeueTimeout:   v.GetDuration("dequeue_timeout"),
		SchedulerEnabled: v.GetBool("scheduler_enabled"),
		OTelEndpoint:     v.GetString("otel_endpoint"),
	}
}

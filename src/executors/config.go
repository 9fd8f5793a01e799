package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WorkerInterval  time.Duration `envconfig:"WORKER_INTERVAL" default:"300s"`
	MonitorInterval time.Duration `envconfig:"MONITOR_INTERVAL" default:"60s"`
	QueueMaxPerRun  int           `envconfig:"QUEUE_MAX_PER_RUN" default:"10"`
	QueueMaxRetries int           `envconfig:"QUEUE_MAX_RETRIES" default:"5"`
	BackoffBase     time.Duration `envconfig:"QUEUE_BACKOFF_BASE" default:"1s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

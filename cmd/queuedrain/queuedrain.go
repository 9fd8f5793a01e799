// Package queuedrain runs one drain pass over the queued orders and exits.
package queuedrain

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/database"
	"stockbot/src/executors"
	"stockbot/src/notify"
	"stockbot/src/queue"
	"stockbot/src/repository"
)

type QueueDrain struct{}

func (t *QueueDrain) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	orders := repository.NewOrderRepository()
	broker := connectors.NewAlpacaClientFromEnv()
	notifier := notify.NewSMTPNotifier()

	cfg := executors.GetConfig()
	processor := queue.NewProcessor(broker, orders, notifier).
		WithBackoffBase(cfg.BackoffBase)

	result, err := processor.ProcessQueuedOrders(ctx, cfg.QueueMaxPerRun, cfg.QueueMaxRetries)
	if err != nil {
		logrus.WithError(err).Error("Queue drain failed")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
	}).Info("Queue drain finished")

	return nil
}

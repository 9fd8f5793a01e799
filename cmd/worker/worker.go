// Package worker runs the periodic trade cycle plus the broker trade-update
// stream as a long-lived process.
package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/controller"
	"stockbot/src/database"
	"stockbot/src/executors"
	"stockbot/src/notify"
	"stockbot/src/queue"
	"stockbot/src/repository"
	"stockbot/src/risk"
)

type Worker struct{}

func (t *Worker) Start() error {
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
	botConfig := repository.NewConfigRepository()
	riskRepo := repository.NewRiskRepository()

	broker := connectors.NewAlpacaClientFromEnv()
	notifier := notify.NewSMTPNotifier()

	gate := risk.NewGate(riskRepo, botConfig, notifier)
	tradeController := controller.NewTradeController(broker, orders, botConfig, gate)

	cfg := executors.GetConfig()
	processor := queue.NewProcessor(broker, orders, notifier).
		WithBackoffBase(cfg.BackoffBase)

	// Broker-side status transitions land in the local store via the
	// trade-update stream; the cycle loop never depends on it.
	alpacaCfg := connectors.GetConfig()
	if alpacaCfg.AlpacaStreamURL != "" {
		stream := connectors.NewTradeUpdateStream(
			alpacaCfg.AlpacaStreamURL,
			alpacaCfg.AlpacaAPIKey,
			alpacaCfg.AlpacaAPISecret,
			controller.NewTradeUpdateHandler(orders),
		)
		go stream.Run(ctx)
	}

	logrus.WithField("interval", cfg.WorkerInterval.String()).Info("Starting trade cycle worker")

	executor := executors.NewExecutor(broker, botConfig, tradeController, processor, nil).
		WithConfig(cfg)
	executor.StartLoop(ctx)

	return nil
}

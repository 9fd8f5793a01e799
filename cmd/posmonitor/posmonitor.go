// Package posmonitor runs the position monitor as a long-lived process.
package posmonitor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/database"
	"stockbot/src/executors"
	"stockbot/src/monitor"
	"stockbot/src/notify"
	"stockbot/src/repository"
	"stockbot/src/risk"
)

type PositionMonitor struct{}

func (t *PositionMonitor) Start() error {
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

	cfg := executors.GetConfig()
	logrus.WithField("interval", cfg.MonitorInterval.String()).Info("Starting position monitor")

	m := monitor.NewMonitor(broker, orders, gate, botConfig, notifier)
	m.StartLoop(ctx, cfg.MonitorInterval)

	return nil
}

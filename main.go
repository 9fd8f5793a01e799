package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"stockbot/src/auth"
	"stockbot/src/connectors"
	"stockbot/src/controller"
	"stockbot/src/database"
	"stockbot/src/executors"
	"stockbot/src/monitor"
	"stockbot/src/notify"
	"stockbot/src/queue"
	"stockbot/src/repository"
	"stockbot/src/risk"
	"stockbot/src/server"
)

var (
	PORT     = os.Getenv("SERVER_PORT")
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	orders := repository.NewOrderRepository()
	botConfig := repository.NewConfigRepository()
	riskRepo := repository.NewRiskRepository()

	broker := connectors.NewAlpacaClientFromEnv()
	notifier := notify.NewSMTPNotifier()

	gate := risk.NewGate(riskRepo, botConfig, notifier)
	tradeController := controller.NewTradeController(broker, orders, botConfig, gate)

	execCfg := executors.GetConfig()
	processor := queue.NewProcessor(broker, orders, notifier).
		WithBackoffBase(execCfg.BackoffBase)

	ctx := context.Background()

	if os.Getenv("RUN_WORKER") == "true" {
		exec := executors.NewExecutor(broker, botConfig, tradeController, processor, nil).
			WithConfig(execCfg)
		go exec.StartLoop(ctx)
	}

	if os.Getenv("RUN_MONITOR") == "true" {
		posMonitor := monitor.NewMonitor(broker, orders, gate, botConfig, notifier)
		go posMonitor.StartLoop(ctx, execCfg.MonitorInterval)
	}

	port := PORT
	if port == "" {
		port = server.GetConfig().Port
	}

	server.StartServer(port, server.Deps{
		Orders:         orders,
		BotConfig:      botConfig,
		Controller:     tradeController,
		Processor:      processor,
		AdminTokenHash: auth.GetConfig().AdminTokenHash,
		QueueCfg:       execCfg,
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"stockbot/cmd/posmonitor"
	"stockbot/cmd/queuedrain"
	"stockbot/cmd/worker"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Stockbot CMD"
	app.Usage = "The stockbot command line interface"

	app.Commands = []cli.Command{
		workerCMD,
		monitorCMD,
		queueCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the trade cycle worker",
		Action:      workerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the periodic trade cycle and queue drain loop`,
	}
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the position monitor",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Watch open positions and exit on threshold breaches`,
	}
	queueCMD = cli.Command{
		Name:        "queue",
		Usage:       "drain the order queue once",
		Action:      queueAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run a single drain pass over the queued orders`,
	}
)

func workerAction(_ *cli.Context) error {

	logrus.Info("Starting worker CMD")
	logrus.WithField("cmd", "worker")

	w := &worker.Worker{}
	err := w.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func monitorAction(_ *cli.Context) error {

	logrus.Info("Starting monitor CMD")
	logrus.WithField("cmd", "monitor")

	m := &posmonitor.PositionMonitor{}
	err := m.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func queueAction(_ *cli.Context) error {

	logrus.Info("Starting queue drain CMD")
	logrus.WithField("cmd", "queue")

	q := &queuedrain.QueueDrain{}
	err := q.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// Package server wires the HTTP surface: health probes, the public trade
// and order endpoints, and the token-guarded admin routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/auth"
	"stockbot/src/controller"
	"stockbot/src/database"
	"stockbot/src/executors"
	"stockbot/src/handler"
	"stockbot/src/queue"
	"stockbot/src/repository"
)

// Deps are the wired components the router serves.
type Deps struct {
	Orders     *repository.OrderRepository
	BotConfig  *repository.ConfigRepository
	Controller *controller.TradeController
	Processor  *queue.Processor

	AdminTokenHash string
	QueueCfg       executors.Config
}

// NewRouter builds the chi router over the wired components.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" error")
		}
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !database.Ping() {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte("READY")); err != nil {
			logger.WithError(err).Error("\"/ready\" error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/trade", handler.SubmitTradeHandler(deps.Controller))
		r.Get("/orders", handler.ListOrdersHandler(deps.Orders))
		r.Get("/orders/{id}", handler.GetOrderHandler(deps.Orders))
		r.Get("/audit", handler.ListAuditLogsHandler(deps.Orders))

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.AdminOnly(deps.AdminTokenHash))
			r.Get("/bot-config", handler.GetBotConfigHandler(deps.BotConfig))
			r.Put("/bot-config", handler.UpdateBotConfigHandler(deps.BotConfig))
			r.Post("/queue/process", handler.ProcessQueueHandler(
				deps.Processor, deps.QueueCfg.QueueMaxPerRun, deps.QueueCfg.QueueMaxRetries))
			r.Post("/queue/process/{id}", handler.ProcessQueuedOrderHandler(
				deps.Processor, deps.QueueCfg.QueueMaxRetries))
		})
	})

	return r
}

// StartServer serves the router until SIGINT or SIGTERM, then shuts down
// gracefully.
func StartServer(port string, deps Deps) {
	r := NewRouter(deps)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

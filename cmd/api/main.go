package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lucifers-0666/zenopay/internal/api"
	"github.com/lucifers-0666/zenopay/internal/config"
	"github.com/lucifers-0666/zenopay/internal/notify"
	"github.com/lucifers-0666/zenopay/internal/repository/memory"
	"github.com/lucifers-0666/zenopay/internal/repository/postgres"
	"github.com/lucifers-0666/zenopay/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	store, err := postgres.NewStore(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// Wire the layers.
	dispatcher := notify.NewDispatcher(&notify.LogEmitter{Logger: logger}, cfg.NotifyWorkers, logger)
	limits := service.NewDailyLimitGuard(cfg.DailyCeiling)
	ids := service.IDGenerator{}
	transfers := service.NewTransferService(store, limits, ids, logger)
	refunds := service.NewRefundService(store, ids, logger)
	challenges := service.NewChallengeService(memory.NewChallengeStore(), dispatcher, cfg.OTPTTL, logger)
	merchants := service.NewMerchantResolver(store, logger)
	handler := api.NewHandler(store, transfers, refunds, challenges, merchants, dispatcher, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher shutdown failed", slog.String("error", err.Error()))
	}
}

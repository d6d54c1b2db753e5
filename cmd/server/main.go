package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openspot/exchange/internal/api"
	"github.com/openspot/exchange/internal/auth"
	"github.com/openspot/exchange/internal/config"
	"github.com/openspot/exchange/internal/db"
	"github.com/openspot/exchange/internal/dispatch"
	"github.com/openspot/exchange/internal/exchange"
	"github.com/openspot/exchange/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Main entry point: sets up database, services, dispatcher, and HTTP server
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDB(ctx, cfg.DB.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(ctx)

	hub := ws.NewHub(logger)
	matcher := exchange.NewMatchingService(database, cfg.Commission(), hub, logger)

	// With brokers configured the dispatch queue is Kafka; otherwise an
	// in-process queue serves dev mode.
	var dispatcher exchange.MatchDispatcher
	if len(cfg.Match.Brokers) > 0 {
		producer := dispatch.NewKafkaProducer(cfg.Match.Brokers, cfg.Match.Topic, logger)
		defer producer.Close()
		consumer := dispatch.NewKafkaConsumer(cfg.Match.Brokers, cfg.Match.Topic,
			cfg.Match.GroupID, cfg.Match.Workers, matcher, producer, logger)
		consumer.Start(ctx)
		defer consumer.Close()
		dispatcher = producer
	} else {
		local := dispatch.NewLocal(matcher, cfg.Match.Workers, logger)
		defer local.Close()
		dispatcher = local
	}

	orders := exchange.NewOrderService(database, dispatcher, logger)
	authService := auth.NewAuthService(database, cfg.App.JWTSecret, cfg.InitialBalance())
	handler := api.NewHandler(database, orders, authService, hub)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/orderbook", handler.GetOrderBook)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/profile", handler.GetProfile)
		r.Post("/orders", handler.PlaceOrder)
		r.Get("/orders", handler.GetOrderBook)
		r.Get("/orders/mine", handler.GetUserOrders)
		r.Delete("/orders/{id}", handler.CancelOrder)
		r.Get("/trades", handler.GetUserTrades)
		r.Get("/ws", handler.HandleWS)
	})

	srv := &http.Server{Addr: cfg.App.Addr, Handler: r}

	go func() {
		logger.Info("starting server", "addr", cfg.App.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

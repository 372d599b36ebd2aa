package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/seatly/seatly/config"
	"github.com/seatly/seatly/internal/handler"
	"github.com/seatly/seatly/internal/middleware"
	"github.com/seatly/seatly/internal/queue"
	"github.com/seatly/seatly/internal/repository"
	"github.com/seatly/seatly/internal/service"
	"github.com/seatly/seatly/pkg/cache"
	"github.com/seatly/seatly/pkg/db"
	"github.com/seatly/seatly/pkg/lock"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	handler.ExposeErrorDetails(!strings.EqualFold(cfg.Env, "production"))

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Connect to RabbitMQ (optional) ──────────────────
	var events service.EventPublisher
	if cfg.Queue.URL != "" {
		publisher, err := queue.NewPublisher(cfg.Queue)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer publisher.Close()
		events = publisher
		log.Println("✓ RabbitMQ connected")
	} else {
		log.Println("· event publishing disabled (AMQP_URL not set)")
	}

	// ── Initialize layers ───────────────────────────────
	restaurantRepo := repository.NewRestaurantRepository(pgPool)
	tableRepo := repository.NewTableRepository(pgPool)
	reservationRepo := repository.NewReservationRepository(pgPool)

	lockSvc := lock.NewService(redisClient)
	cacheStore := cache.NewStore(redisClient)

	reservationSvc := service.NewReservationService(
		restaurantRepo, tableRepo, reservationRepo,
		lockSvc, cacheStore, events, cfg.Reservation,
	)
	availabilitySvc := service.NewAvailabilityService(
		restaurantRepo, tableRepo, cacheStore, cfg.Reservation.AvailabilityCacheTTL,
	)

	reservationHandler := handler.NewReservationHandler(reservationSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	// Availability is registered before {id} so the literal path wins.
	api.HandleFunc("/reservations/availability", availabilityHandler.GetAvailability).Methods(http.MethodGet)
	api.HandleFunc("/reservations", reservationHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/reservations/user/{userId}", reservationHandler.ListByUser).Methods(http.MethodGet)
	api.HandleFunc("/reservations/restaurant/{restaurantId}", reservationHandler.ListByRestaurant).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", reservationHandler.Get).Methods(http.MethodGet)
	// Lifecycle transitions
	api.HandleFunc("/reservations/{id}/confirm", reservationHandler.Confirm).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/cancel", reservationHandler.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/checkin", reservationHandler.CheckIn).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/complete", reservationHandler.Complete).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/no-show", reservationHandler.NoShow).Methods(http.MethodPost)

	root := middleware.CORS(middleware.RequestLogger(middleware.Recoverer(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dinehall/tablebook/libs/config"
	"github.com/dinehall/tablebook/libs/db"
	"github.com/dinehall/tablebook/libs/httpx"
	"github.com/dinehall/tablebook/libs/kafkax"
	otelx "github.com/dinehall/tablebook/libs/otel"
	"github.com/dinehall/tablebook/libs/runtime"
	"github.com/dinehall/tablebook/services/reservation-service/internal/analytics"
	"github.com/dinehall/tablebook/services/reservation-service/internal/handlers"
	"github.com/dinehall/tablebook/services/reservation-service/internal/outbox"
	"github.com/dinehall/tablebook/services/reservation-service/internal/policy"
	"github.com/dinehall/tablebook/services/reservation-service/internal/reservations"
	"github.com/dinehall/tablebook/services/reservation-service/internal/storage"
	"github.com/dinehall/tablebook/services/reservation-service/internal/tables"
)

func main() {
	service := config.String("SERVICE_NAME", "reservation-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	policyProvider, err := policyFromEnv()
	if err != nil {
		logger.Error("invalid reservation policy config", "err", err)
		panic(err)
	}

	var (
		store       reservations.Store
		statsStore  analytics.Store
		registry    tables.Registry
		readyChecks []runtime.ReadyCheck
	)

	brokers := config.String("KAFKA_BROKERS", "")
	dbURL := config.String("DATABASE_URL", "")
	if dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}

		outboxRepo := outbox.NewRepository(pool)
		repo := storage.NewReservationRepository(pool, outboxRepo)
		store = repo
		statsStore = repo
		registry = storage.NewTableRepository(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		if strings.TrimSpace(brokers) != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		// Dev mode: no persistence and no outbox; tables come from env.
		logger.Warn("DATABASE_URL not set; running with in-memory store")
		mem := storage.NewMemoryStore()
		store = mem
		statsStore = mem

		ts, err := tables.ParseStatic(config.String("TABLES", "t1:2:1,t2:4:1,t3:4:2,t4:6:2,t5:8:4"))
		if err != nil {
			logger.Error("invalid TABLES config", "err", err)
			panic(err)
		}
		registry = tables.NewStaticRegistry(ts)
	}

	svc := reservations.NewService(store, registry, policyProvider, logger)
	engine := analytics.NewEngine(statsStore, registry, policyProvider)
	reservationHandler := handlers.NewReservationHandler(svc, logger)
	analyticsHandler := handlers.NewAnalyticsHandler(engine, logger)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/reservations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			reservationHandler.List(w, r)
			return
		}
		reservationHandler.Create(w, r)
	})
	mux.HandleFunc("/api/v1/reservations/update", reservationHandler.Update)
	mux.HandleFunc("/api/v1/reservations/cancel", reservationHandler.Cancel)
	mux.HandleFunc("/api/v1/reservations/arrival", reservationHandler.Arrival)
	mux.HandleFunc("/api/v1/reservations/departure", reservationHandler.Departure)
	mux.HandleFunc("/api/v1/availability", reservationHandler.Availability)
	mux.HandleFunc("/api/v1/availability/slots", reservationHandler.Slots)
	mux.HandleFunc("/api/v1/analytics/utilization", analyticsHandler.Utilization)
	mux.HandleFunc("/api/v1/analytics/durations", analyticsHandler.Durations)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		rateLimiter(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reservation")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func policyFromEnv() (policy.Provider, error) {
	lunch, err := policy.ParseClockRange(config.String("LUNCH_WINDOW", "11:30-15:00"))
	if err != nil {
		return nil, err
	}
	dinner, err := policy.ParseClockRange(config.String("DINNER_WINDOW", "18:00-22:00"))
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(config.String("RESTAURANT_TIMEZONE", "UTC"))
	if err != nil {
		return nil, err
	}
	windows := policy.Windows{Lunch: lunch, Dinner: dinner, Location: loc}
	defaults := policy.Defaults{
		DurationMinutes:    config.Int("DEFAULT_DURATION_MINUTES", 105),
		GracePeriodMinutes: config.Int("GRACE_PERIOD_MINUTES", 15),
		MaxSittingMinutes:  config.Int("MAX_SITTING_MINUTES", 180),
		AdvanceBookingDays: config.Int("ADVANCE_BOOKING_DAYS", 30),
	}
	return policy.NewStaticProvider(windows, defaults), nil
}

// rateLimiter prefers the Redis fixed-window limiter when REDIS_ADDR is
// configured (multiple instances share the budget); otherwise it falls back
// to the per-process limiter.
func rateLimiter(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "reservation").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

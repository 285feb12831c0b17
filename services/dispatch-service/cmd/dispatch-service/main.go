package main

import (
	"context"
	"crypto"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fieldserve/dispatch/libs/auth"
	"github.com/fieldserve/dispatch/libs/config"
	"github.com/fieldserve/dispatch/libs/db"
	"github.com/fieldserve/dispatch/libs/httpx"
	"github.com/fieldserve/dispatch/libs/kafkax"
	otelx "github.com/fieldserve/dispatch/libs/otel"
	"github.com/fieldserve/dispatch/libs/runtime"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/assign"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/escalation"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/handlers"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/outbox"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/pricing"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/scheduling"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "dispatch-service")
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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, int32(config.Int("DB_MAX_CONNS", 10)))
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	schedCfg, err := schedulingConfigFromEnv()
	if err != nil {
		logger.Error("invalid scheduling config", "err", err)
		panic(err)
	}

	resourceRepo := storage.NewResourceRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool)
	assignmentRepo := storage.NewAssignmentRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	pricingProvider, err := pricing.NewGRPCProvider(config.String("PRICING_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("pricing provider init failed; using static table", "err", err)
		pricingProvider = nil
	}
	if pricingProvider == nil {
		pricingProvider = pricing.NewStaticProvider(pricing.DefaultTable())
	}

	engine := scheduling.NewEngine(schedCfg, resourceRepo, bookingRepo, pricingProvider, logger)
	assigner := assign.New(logger, schedCfg.Buffer)

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
	}
	escalationNotifier := escalation.NewNotifier(pool, outboxRepo, rdb, logger,
		time.Duration(config.Int("EXHAUSTION_DEDUPE_HOURS", 24))*time.Hour)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	availabilityHandler := handlers.NewAvailabilityHandler(engine, logger)
	bookingHandler := handlers.NewBookingHandler(engine, bookingRepo, outboxRepo, logger)
	assignmentHandler := handlers.NewAssignmentHandler(assigner, assignmentRepo, bookingRepo, resourceRepo, outboxRepo, escalationNotifier, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	jwtSecret := config.String("AUTH_JWT_SECRET", "")
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("AUTH_JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, 5*time.Minute)
	}
	guard := func(h http.HandlerFunc) http.Handler {
		// Availability confirmation stays public; mutations need a token
		// when auth is configured.
		if jwtSecret == "" && jwksClient == nil {
			return h
		}
		return requireAuth(h, jwtSecret, jwksClient)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("/api/v1/availability/confirm", availabilityHandler.Confirm)
	mux.Handle("/api/v1/bookings", guard(bookingHandler.Create))
	mux.Handle("/api/v1/bookings/cancel", guard(bookingHandler.Cancel))
	mux.Handle("/api/v1/assignments/next", guard(assignmentHandler.Next))
	mux.Handle("/api/v1/assignments/respond", guard(assignmentHandler.Respond))

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middlewares = append(middlewares, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}))
	}
	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "dispatch")
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, time.Minute).Middleware())
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "dispatch")

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

func requireAuth(next http.Handler, jwtSecret string, jwksClient *auth.JWKSClient) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		var err error
		if jwksClient != nil {
			var hdr *auth.Header
			hdr, err = auth.ParseHeader(token)
			if err != nil {
				http.Error(w, "invalid token header", http.StatusUnauthorized)
				return
			}
			if hdr.Alg == "RS256" && hdr.Kid != "" {
				var pub crypto.PublicKey
				pub, err = jwksClient.Get(hdr.Kid)
				if err == nil {
					_, err = auth.VerifyRS256(token, pub)
				}
			} else {
				_, err = auth.ParseAndVerifyHS256(token, jwtSecret)
			}
		} else {
			_, err = auth.ParseAndVerifyHS256(token, jwtSecret)
		}
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// schedulingConfigFromEnv builds the engine config. Every scheduling
// constant is explicit; nothing in the engine reads global state.
func schedulingConfigFromEnv() (scheduling.Config, error) {
	loc, err := time.LoadLocation(config.String("SCHEDULING_TIMEZONE", "America/Chicago"))
	if err != nil {
		return scheduling.Config{}, err
	}
	cfg := scheduling.DefaultConfig(loc)
	cfg.Buffer = config.Minutes("BOOKING_BUFFER_MINUTES", cfg.Buffer)
	cfg.SlotStep = config.Minutes("SLOT_STEP_MINUTES", cfg.SlotStep)
	cfg.LeadTime = config.Minutes("SLOT_LEAD_TIME_MINUTES", cfg.LeadTime)
	cfg.SearchHorizon = time.Duration(config.Int("SEARCH_HORIZON_DAYS", 14)) * 24 * time.Hour
	cfg.AlternativeCount = config.Int("ALTERNATIVE_SLOT_COUNT", cfg.AlternativeCount)
	cfg.DefaultHour = config.Int("DEFAULT_BOOKING_HOUR", cfg.DefaultHour)
	return cfg, nil
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"exam-prep-platform/internal/auth"
	"exam-prep-platform/internal/contest"
	"exam-prep-platform/internal/realtime"
	"exam-prep-platform/internal/scheduler"
	"exam-prep-platform/pkg/config"
	"exam-prep-platform/pkg/database"
	"exam-prep-platform/pkg/kv"
	"exam-prep-platform/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, "exam-prep-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.SubmissionWorkers)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	store, err := kv.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer store.Close()

	metrics := telemetry.NewDefaultMetrics()

	issuer := auth.NewTokenIssuer(cfg.TokenSigningKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authRepo := auth.NewRepo(db)
	authService := auth.NewService(authRepo, store, issuer, cfg.SessionTTL, cfg.ForceLogoutTTL)
	authorizer := auth.NewAuthorizer(authRepo, store, issuer)
	authHandlers := auth.NewHandlers(authService, authorizer)

	contestRepo := contest.NewRepo(db)
	queue := contest.NewQueue(store)

	lifecycle, err := scheduler.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create lifecycle scheduler: %v", err)
	}
	defer lifecycle.Close()

	contestHandlers := contest.NewHandlers(contestRepo, queue, lifecycle, metrics)

	boardCache := realtime.NewLeaderboardCache(contestRepo)
	hub := realtime.NewHub(store, boardCache)
	go hub.Run(ctx)
	go boardCache.StartCleanup(ctx)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(metrics.RequestCounter)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		authHandlers.Routes(r)
		contestHandlers.Routes(r, authorizer)
		r.Group(func(r chi.Router) {
			r.Use(authorizer.Middleware)
			hub.Routes(r)
		})
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(router, "api"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("API listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

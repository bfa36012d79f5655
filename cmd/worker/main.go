package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exam-prep-platform/internal/contest"
	"exam-prep-platform/internal/scheduler"
	"exam-prep-platform/internal/worker"
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

	shutdownTracing, err := telemetry.InitTracing(ctx, "exam-prep-worker", cfg.OTLPEndpoint)
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
	repo := contest.NewRepo(db)
	queue := contest.NewQueue(store)

	// Workers expose /metrics on their own listener.
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics listener failed: %v", err)
		}
	}()
	defer metricsServer.Close()

	switch cfg.WorkerType {
	case config.WorkerSubmission:
		log.Printf("Starting %d submission workers", cfg.SubmissionWorkers)
		var wg sync.WaitGroup
		for i := 0; i < cfg.SubmissionWorkers; i++ {
			w := worker.NewSubmissionWorker(i, repo, queue, metrics, cfg.PollInterval, cfg.BlockingTimeout)
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
		wg.Wait()

	case config.WorkerGrading:
		log.Println("Starting grading worker")

		lifecycle, err := scheduler.NewServer(cfg.RedisURL, repo)
		if err != nil {
			log.Fatalf("Failed to create lifecycle server: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := lifecycle.Run(ctx); err != nil {
				log.Printf("Lifecycle server stopped: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			worker.NewGradingWorker(repo, queue, metrics, cfg.CheckInterval, cfg.EmptyThreshold).Run(ctx)
		}()
		wg.Wait()
	}

	log.Println("Worker exited cleanly")
}

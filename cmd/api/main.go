package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hypemix/hypemix/internal/api"
	"github.com/hypemix/hypemix/internal/config"
	"github.com/hypemix/hypemix/internal/queue"
	"github.com/hypemix/hypemix/internal/services"
	"github.com/hypemix/hypemix/internal/storage"
	"github.com/hypemix/hypemix/internal/transfer"
	"github.com/hypemix/hypemix/internal/worker"
)

func main() {
	log.Println("Starting Hypemix API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis (pipeline queue + progress store)
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize blob storage and the transfer selector on top of it
	store := storage.New(cfg.BlobStoreURL, cfg.BlobToken)
	selector := transfer.NewSelector(store, cfg.InlineThresholdMB, cfg.MaxPayloadMB)
	log.Printf("Initialized blob storage (inline below %dMB, reject above %dMB)",
		cfg.InlineThresholdMB, cfg.MaxPayloadMB)

	// Initialize the text-generation provider — OpenAI primary, Gemini alternate
	var provider services.TextProvider
	if cfg.TextProvider == "gemini" {
		provider = services.NewGeminiService(cfg.GeminiKey, cfg.GeminiModel)
		log.Printf("Text provider: Gemini (model: %s)", cfg.GeminiModel)
	} else {
		provider = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
		log.Printf("Text provider: OpenAI (model: %s)", cfg.OpenAIModel)
	}

	// Initialize services
	youtubeSvc := services.NewYouTubeService(cfg.YtDlpPath, cfg.MaxSourceDuration, cfg.MaxPayloadMB)
	uploadSvc := services.NewUploadService()
	generator := services.NewTextGenerator(provider, cfg.ChunkWordTarget)
	ttsSvc := services.NewElevenLabsService(cfg.ElevenLabsKey)
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, cfg.TempDir, cfg.SpliceTimeoutSec)

	// The worker is always constructed — the cleanup endpoint reuses its
	// retrying delete logic — but only started when enabled.
	wrk := worker.New(q, store, selector, youtubeSvc, uploadSvc, generator, ttsSvc, ffmpegSvc, cfg.MaxConcurrentSynthesis)

	// Create API handler
	handler := api.NewHandler(q, selector, youtubeSvc, uploadSvc, generator, ttsSvc, ffmpegSvc, wrk, cfg.MaxPayloadMB)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")
		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go wrk.Start(workerCtx, cfg.MaxConcurrentPipelines)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

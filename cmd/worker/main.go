/**
 * OCR Token Worker - Main Entry Point
 *
 * Consumes OCR jobs from Redis (list queue or asynq), extracts per-word tokens
 * with text spans for every page, and publishes the results on the queue's
 * events channel.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocr-tokens/internal/config"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
	"github.com/adverant/nexus/ocr-tokens/internal/processor"
	"github.com/adverant/nexus/ocr-tokens/internal/queue"
)

type queueConsumer interface {
	Start() error
	Stop() error
	GetStats(ctx context.Context) (map[string]int64, error)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(logging.Options{Level: cfg.LogLevel, Development: cfg.IsDevelopment()}); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()
	logger := logging.NewLogger("worker")

	logger.Info("OCR token worker starting",
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency,
		"languages", cfg.LanguageSpec(),
		"dpi", cfg.RasterDPI)

	recognizer, err := processor.NewTesseractOCR(&processor.TesseractConfig{
		Languages:      cfg.Languages,
		TessdataPrefix: cfg.TessdataPrefix,
		PageSegMode:    cfg.PageSegMode,
	})
	if err != nil {
		logger.Error("Failed to initialize Tesseract", "error", err)
		os.Exit(1)
	}

	policy := processor.SkipUnlocated
	if cfg.StrictAlignment {
		policy = processor.AbortOnUnlocated
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Recognizer: recognizer,
		Loader:     processor.NewFileLoader(cfg.RasterDPI, cfg.ExifRotate),
		Binarize:   cfg.Binarize,
		Policy:     policy,
		Logger:     logging.NewLogger("processor"),
	})
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}

	var consumer queueConsumer
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		consumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			TempDir:           cfg.TempDir,
			Logger:            logging.NewLogger("asynq"),
		})
	default:
		consumer, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			TempDir:           cfg.TempDir,
			Logger:            logging.NewLogger("queue"),
		})
	}
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	logger.Info("Waiting for jobs", "events", queue.EventsChannel(cfg.QueueName))

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	statsCtx, statsCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if stats, err := consumer.GetStats(statsCtx); err != nil {
		logger.Warn("Failed to read queue stats", "error", err)
	} else {
		logger.Info("Queue stats", "stats", stats)
	}
	statsCancel()

	if err := consumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}

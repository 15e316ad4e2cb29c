/**
 * Asynq Queue Consumer for the OCR token worker
 *
 * Alternative backend to the list-based RedisConsumer. Tasks of type
 * "ocr:document" carry a JobPayload; failures are returned with SkipRetry so
 * asynq never re-runs a document.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
	"github.com/adverant/nexus/ocr-tokens/internal/processor"
)

// TaskTypeOCRDocument is the asynq task type handled by Consumer.
const TaskTypeOCRDocument = "ocr:document"

// Consumer handles job consumption from an asynq queue
type Consumer struct {
	inspector   *asynq.Inspector
	server      *asynq.Server
	mux         *asynq.ServeMux
	redisClient *redis.Client
	runner      *jobRunner
	publisher   eventPublisher
	config      *ConsumerConfig
	logger      *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	TempDir           string
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisURLOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisURLOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: logger.Sugar(),
		},
	)

	consumer := &Consumer{
		inspector:   asynq.NewInspector(redisOpt),
		server:      server,
		mux:         asynq.NewServeMux(),
		redisClient: redisClient,
		runner:      newJobRunner(cfg.Processor, cfg.TempDir, cfg.ProcessingTimeout, logger),
		publisher:   NewRedisEventPublisher(redisClient, cfg.QueueName),
		config:      cfg,
		logger:      logger,
	}

	consumer.mux.HandleFunc(TaskTypeOCRDocument, consumer.handleOCRDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start() error {
	c.logger.Info("Starting asynq consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping asynq consumer")

	c.server.Shutdown()

	if err := c.inspector.Close(); err != nil {
		return fmt.Errorf("failed to close inspector: %w", err)
	}
	return c.redisClient.Close()
}

// GetStats returns queue statistics. Failed tasks are never retried, so
// asynq keeps them as archived.
func (c *Consumer) GetStats(ctx context.Context) (map[string]int64, error) {
	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return map[string]int64{
		"waiting":        int64(info.Pending),
		"processing":     int64(info.Active),
		"failed":         int64(info.Archived),
		"processedToday": int64(info.Processed),
		"failedToday":    int64(info.Failed),
	}, nil
}

// NewOCRTask builds an asynq task for the payload, assigning a job id when
// the payload has none.
func NewOCRTask(payload *JobPayload, queueName string) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TaskTypeOCRDocument, data,
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
		asynq.TaskID(payload.JobID),
	), nil
}

// Submitter enqueues OCR jobs without running a server.
type Submitter struct {
	client    *asynq.Client
	queueName string
}

// NewSubmitter creates an asynq client for the queue.
func NewSubmitter(redisURL, queueName string) (*Submitter, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Submitter{client: asynq.NewClient(redisOpt), queueName: queueName}, nil
}

// Submit enqueues the payload and returns its job id.
func (s *Submitter) Submit(ctx context.Context, payload *JobPayload) (string, error) {
	return enqueue(ctx, s.client, payload, s.queueName)
}

// Close releases the client connection.
func (s *Submitter) Close() error {
	return s.client.Close()
}

func enqueue(ctx context.Context, client *asynq.Client, payload *JobPayload, queueName string) (string, error) {
	task, err := NewOCRTask(payload, queueName)
	if err != nil {
		return "", err
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info.ID, nil
}

// handleOCRDocument processes one ocr:document task
func (c *Consumer) handleOCRDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job JobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		invalid := errors.NewInvalidJobError("", err.Error())
		c.publish(ctx, &JobEvent{Event: EventFailed, Error: invalid.ToMap()})
		return fmt.Errorf("%v: %w", invalid, asynq.SkipRetry)
	}

	c.publish(ctx, &JobEvent{Event: EventProcessing, JobID: job.JobID})
	c.logger.Info("Processing job", "jobId", job.JobID, "path", job.Path, "filename", job.Filename)

	result, err := c.runner.run(ctx, &job)
	if err != nil {
		c.logger.Error("Job failed", "jobId", job.JobID, "elapsed", time.Since(startTime), "error", err)
		c.publish(ctx, &JobEvent{Event: EventFailed, JobID: job.JobID, Error: errorDetails(err)})
		return fmt.Errorf("document processing failed: %v: %w", err, asynq.SkipRetry)
	}

	c.logger.Info("Job completed", "jobId", job.JobID, "tokens", len(result.Tokens), "elapsed", time.Since(startTime))
	c.publish(ctx, &JobEvent{Event: EventCompleted, JobID: job.JobID, Result: result})
	return nil
}

func (c *Consumer) publish(ctx context.Context, event *JobEvent) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("Failed to publish job event", "jobId", event.JobID, "event", event.Event, "error", err)
	}
}

/**
 * Direct Redis Queue Consumer for the OCR token worker
 *
 * Uses simple Redis LIST operations: producers LPUSH a job id onto the queue
 * and store the job under the "<queue>:data" hash. Results are published on
 * "<queue>:events" and never stored; failed jobs are not retried.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-tokens/internal/errors"
	"github.com/adverant/nexus/ocr-tokens/internal/logging"
	"github.com/adverant/nexus/ocr-tokens/internal/processor"
)

var errNoJobs = stderrors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Payload   JobPayload `json:"payload"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	store     jobStore
	runner    *jobRunner
	publisher eventPublisher
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	TempDir           string
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "ocr:jobs"
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

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		store:     &redisJobStore{client: client, queue: cfg.QueueName},
		runner:    newJobRunner(cfg.Processor, cfg.TempDir, cfg.ProcessingTimeout, logger),
		publisher: NewRedisEventPublisher(client, cfg.QueueName),
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.store.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if stderrors.Is(err, errNoJobs) || c.ctx.Err() != nil {
					continue
				}
				c.logger.Error("Worker error", "worker", id, "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue. Only
// the blocking pop follows shutdown; once a job id is popped the job runs to
// completion (bounded by the processing timeout) and its final status is
// recorded before the payload is deleted.
func (c *RedisConsumer) processNextJob() error {
	jobID, err := c.store.Pop(c.ctx, 5*time.Second)
	if err != nil {
		return err
	}

	ctx := context.WithoutCancel(c.ctx)

	jobData, err := c.store.Load(ctx, jobID)
	if err != nil {
		c.updateJobStatus(ctx, jobID, EventFailed, nil, errors.NewInvalidJobError(jobID, err.Error()))
		return fmt.Errorf("failed to get job data: %w", err)
	}
	defer c.deletePayload(ctx, jobID)

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.updateJobStatus(ctx, jobID, EventFailed, nil, errors.NewInvalidJobError(jobID, err.Error()))
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = job.ID
	}

	c.updateJobStatus(ctx, job.Payload.JobID, EventProcessing, nil, nil)
	c.logger.Info("Processing job", "jobId", job.Payload.JobID, "path", job.Payload.Path, "filename", job.Payload.Filename)

	startTime := time.Now()
	processResult, err := c.runner.run(ctx, &job.Payload)
	if err != nil {
		c.logger.Error("Job failed", "jobId", job.Payload.JobID, "elapsed", time.Since(startTime), "error", err)
		c.updateJobStatus(ctx, job.Payload.JobID, EventFailed, nil, err)
		return nil
	}

	c.logger.Info("Job completed",
		"jobId", job.Payload.JobID,
		"tokens", len(processResult.Tokens),
		"pages", len(processResult.Pages),
		"elapsed", time.Since(startTime))
	c.updateJobStatus(ctx, job.Payload.JobID, EventCompleted, processResult, nil)
	return nil
}

// deletePayload drops the stored job once its outcome is recorded.
func (c *RedisConsumer) deletePayload(ctx context.Context, jobID string) {
	if err := c.store.Delete(ctx, jobID); err != nil {
		c.logger.Warn("Failed to delete job payload", "jobId", jobID, "error", err)
	}
}

// updateJobStatus moves the job between the bookkeeping sets and publishes
// the matching event.
func (c *RedisConsumer) updateJobStatus(ctx context.Context, jobID string, status string, result *processor.ProcessResult, jobErr error) {
	if err := c.store.SetStatus(ctx, jobID, status); err != nil {
		c.logger.Warn("Failed to update job status", "jobId", jobID, "status", status, "error", err)
	}

	event := &JobEvent{Event: status, JobID: jobID, Result: result}
	if jobErr != nil {
		event.Error = errorDetails(jobErr)
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("Failed to publish job event", "jobId", jobID, "event", status, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	return c.store.Stats(ctx)
}

// DataKey returns the hash holding job payloads for a queue.
func DataKey(queueName string) string {
	return fmt.Sprintf("%s:data", queueName)
}

// jobStore is the Redis surface used by RedisConsumer.
type jobStore interface {
	// Pop blocks up to timeout for the next job id; errNoJobs when none arrived.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Load(ctx context.Context, jobID string) (string, error)
	Delete(ctx context.Context, jobID string) error
	SetStatus(ctx context.Context, jobID, status string) error
	Stats(ctx context.Context) (map[string]int64, error)
	Close() error
}

// redisJobStore keeps job ids on a list, payloads in "<queue>:data" and
// status in the "<queue>:processing|completed|failed" sets.
type redisJobStore struct {
	client *redis.Client
	queue  string
}

func (s *redisJobStore) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := s.client.BRPop(ctx, timeout, s.queue).Result()
	if err != nil {
		if err == redis.Nil {
			return "", errNoJobs
		}
		return "", fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return "", fmt.Errorf("invalid job result")
	}
	return result[1], nil
}

func (s *redisJobStore) Load(ctx context.Context, jobID string) (string, error) {
	return s.client.HGet(ctx, DataKey(s.queue), jobID).Result()
}

func (s *redisJobStore) Delete(ctx context.Context, jobID string) error {
	return s.client.HDel(ctx, DataKey(s.queue), jobID).Err()
}

func (s *redisJobStore) SetStatus(ctx context.Context, jobID, status string) error {
	processing := fmt.Sprintf("%s:processing", s.queue)
	pipe := s.client.TxPipeline()
	switch status {
	case EventProcessing:
		pipe.SAdd(ctx, processing, jobID)
	case EventCompleted:
		pipe.SRem(ctx, processing, jobID)
		pipe.SAdd(ctx, fmt.Sprintf("%s:completed", s.queue), jobID)
	case EventFailed:
		pipe.SRem(ctx, processing, jobID)
		pipe.SAdd(ctx, fmt.Sprintf("%s:failed", s.queue), jobID)
	default:
		return fmt.Errorf("unknown job status %q", status)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisJobStore) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := s.client.Pipeline()
	waiting := pipe.LLen(ctx, s.queue)
	processing := pipe.SCard(ctx, fmt.Sprintf("%s:processing", s.queue))
	completed := pipe.SCard(ctx, fmt.Sprintf("%s:completed", s.queue))
	failed := pipe.SCard(ctx, fmt.Sprintf("%s:failed", s.queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

func (s *redisJobStore) Close() error {
	return s.client.Close()
}

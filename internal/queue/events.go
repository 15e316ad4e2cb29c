package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-tokens/internal/processor"
)

// Job lifecycle events
const (
	EventProcessing = "job:processing"
	EventCompleted  = "job:completed"
	EventFailed     = "job:failed"
)

// JobEvent is published on the queue's events channel. Results travel only
// on the channel; nothing is stored.
type JobEvent struct {
	Event     string                   `json:"event"`
	JobID     string                   `json:"jobId"`
	Timestamp string                   `json:"timestamp"`
	Result    *processor.ProcessResult `json:"result,omitempty"`
	Error     map[string]interface{}   `json:"error,omitempty"`
}

type eventPublisher interface {
	Publish(ctx context.Context, event *JobEvent) error
}

// RedisEventPublisher publishes job events over Redis pub/sub.
type RedisEventPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisEventPublisher publishes on "<queueName>:events".
func NewRedisEventPublisher(client *redis.Client, queueName string) *RedisEventPublisher {
	return &RedisEventPublisher{client: client, channel: EventsChannel(queueName)}
}

// EventsChannel returns the pub/sub channel for a queue.
func EventsChannel(queueName string) string {
	return fmt.Sprintf("%s:events", queueName)
}

// Publish sends the event, stamping it if needed.
func (p *RedisEventPublisher) Publish(ctx context.Context, event *JobEvent) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

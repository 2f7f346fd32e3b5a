package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/hypemix/hypemix/internal/models"
	"github.com/hypemix/hypemix/internal/session"
)

const (
	QueuePipeline = "queue:pipeline"

	// statusKeyPrefix namespaces the per-session pipeline status entries.
	statusKeyPrefix = "pipeline:status:"
)

type Queue struct {
	client *redis.Client
}

// Job is one queued pipeline run. The full request travels with the job so
// the worker needs no other lookup to start.
type Job struct {
	ID        uuid.UUID                   `json:"id"`
	SessionID string                      `json:"session_id"`
	Request   models.StartPipelineRequest `json:"request"`
	CreatedAt time.Time                   `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueuePipeline queues a full end-to-end run for the given session.
func (q *Queue) EnqueuePipeline(ctx context.Context, sessionID string, req models.StartPipelineRequest) error {
	job := &Job{
		ID:        uuid.New(),
		SessionID: sessionID,
		Request:   req,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, QueuePipeline, data).Err()
}

// Dequeue blocks up to timeout for the next pipeline job. Returns (nil, nil)
// when the timeout elapses with no work.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, QueuePipeline).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetQueueLength returns the number of pipeline jobs waiting.
func (q *Queue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueuePipeline).Result()
}

// SetStatus stores the pipeline status for a session. The entry expires with
// the session TTL so stale runs vanish on their own.
func (q *Queue) SetStatus(ctx context.Context, status *models.PipelineStatus) error {
	status.UpdatedAt = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	return q.client.Set(ctx, statusKeyPrefix+status.SessionID, data, session.TTL).Err()
}

// GetStatus fetches the pipeline status for a session. Returns (nil, nil)
// when no run exists for the session.
func (q *Queue) GetStatus(ctx context.Context, sessionID string) (*models.PipelineStatus, error) {
	data, err := q.client.Get(ctx, statusKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}

	var status models.PipelineStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &status, nil
}

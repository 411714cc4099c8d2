package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer enqueues parse jobs.
type Producer interface {
	Enqueue(ctx context.Context, p *JobPayload) (string, error)
	Close() error
}

// prepare assigns a job id when the payload has none and validates it.
func prepare(p *JobPayload) error {
	if p.JobID == "" {
		p.JobID = uuid.NewString()
	}
	return p.Validate()
}

// RedisProducer pushes jobs in the list-queue layout RedisConsumer reads.
type RedisProducer struct {
	client     *redis.Client
	keys       queueKeys
	maxRetries int
}

// NewRedisProducer connects to Redis and returns a list-queue producer.
func NewRedisProducer(redisURL, queueName string, maxRetries int) (*RedisProducer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &RedisProducer{client: redis.NewClient(opt), keys: keysFor(queueName), maxRetries: maxRetries}, nil
}

// newRedisJob wraps a payload in the hash record of the list queue.
func newRedisJob(p *JobPayload, maxRetries int) *RedisJobData {
	return &RedisJobData{
		ID:         p.JobID,
		Type:       TaskParseDocument,
		Payload:    *p,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
}

// Enqueue stores the job body and pushes its id.
func (r *RedisProducer) Enqueue(ctx context.Context, p *JobPayload) (string, error) {
	if err := prepare(p); err != nil {
		return "", err
	}
	data, err := json.Marshal(newRedisJob(p, r.maxRetries))
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.keys.data, p.JobID, data)
		pipe.LPush(ctx, r.keys.list, p.JobID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", p.JobID, err)
	}
	return p.JobID, nil
}

func (r *RedisProducer) Close() error { return r.client.Close() }

// AsynqProducer enqueues parse-document tasks.
type AsynqProducer struct {
	client     *asynq.Client
	queueName  string
	maxRetries int
}

// NewAsynqProducer returns a producer for the asynq backend.
func NewAsynqProducer(redisURL, queueName string, maxRetries int) (*AsynqProducer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &AsynqProducer{client: asynq.NewClient(opt), queueName: queueName, maxRetries: maxRetries}, nil
}

// Enqueue submits the job. The job id doubles as the task id, so a job
// is queued at most once at a time.
func (a *AsynqProducer) Enqueue(ctx context.Context, p *JobPayload) (string, error) {
	if err := prepare(p); err != nil {
		return "", err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	task := asynq.NewTask(TaskParseDocument, payload,
		asynq.TaskID(p.JobID),
		asynq.Queue(a.queueName),
		asynq.MaxRetry(a.maxRetries),
		asynq.Retention(24*time.Hour),
	)
	info, err := a.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", p.JobID, err)
	}
	return info.ID, nil
}

func (a *AsynqProducer) Close() error { return a.client.Close() }

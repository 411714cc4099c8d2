/**
 * Direct Redis Queue Consumer for the DocParse Worker
 *
 * Compatible with the TypeScript RedisQueue implementation: job ids are
 * pushed onto a list, job bodies live in a hash, and status is tracked
 * in per-status sets. Retries wait in a sorted set scored by the time
 * they become due and are moved back onto the list by a scheduler.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/docparse-worker/internal/logging"
	"github.com/adverant/nexus/docparse-worker/internal/processor"
)

var errNoJob = stderrors.New("no jobs available")

// queueKeys names the Redis keys of one queue.
type queueKeys struct {
	list       string
	data       string
	processing string
	delayed    string
	completed  string
	failed     string
	results    string
	errors     string
}

func keysFor(queueName string) queueKeys {
	return queueKeys{
		list:       queueName,
		data:       queueName + ":data",
		processing: queueName + ":processing",
		delayed:    queueName + ":delayed",
		completed:  queueName + ":completed",
		failed:     queueName + ":failed",
		results:    queueName + ":results",
		errors:     queueName + ":errors",
	}
}

// RedisConsumer handles job consumption from a Redis list queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	keys   queueKeys
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	MaxRetries        int // default for jobs that carry none
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := logging.NewLogger("RedisConsumer")
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		keys:   keysFor(cfg.QueueName),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the worker goroutines
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.wg.Add(1)
	go c.scheduler()
	return nil
}

// Stop cancels the workers, waits for in-flight jobs and closes the client
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log := c.logger.With("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
		}

		if err := c.processNextJob(); err != nil && !stderrors.Is(err, errNoJob) {
			if c.ctx.Err() != nil {
				return
			}
			log.Warn("Worker error", "error", err)
			select {
			case <-c.ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// scheduler moves due retries from the delayed set back onto the list.
func (c *RedisConsumer) scheduler() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			if err := c.promoteDue(c.ctx, now); err != nil && c.ctx.Err() == nil {
				c.logger.Warn("Failed to promote delayed jobs", "error", err)
			}
		}
	}
}

func (c *RedisConsumer) promoteDue(ctx context.Context, now time.Time) error {
	ids, err := c.client.ZRangeByScore(ctx, c.keys.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		// Only the scheduler that removes the entry pushes it.
		removed, err := c.client.ZRem(ctx, c.keys.delayed, id).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := c.client.LPush(ctx, c.keys.list, id).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// processNextJob blocks for up to 5 seconds waiting for a job id, then
// runs that job.
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJob
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	id := result[1]

	raw, err := c.client.HGet(c.ctx, c.keys.data, id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// A body that cannot be decoded never will be.
		c.client.SAdd(c.ctx, c.keys.failed, id)
		c.client.HSet(c.ctx, c.keys.errors, id, fmt.Sprintf(`{"error":%q}`, err.Error()))
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.ID == "" {
		job.ID = id
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = c.config.MaxRetries
	}

	c.handle(&job)
	return nil
}

// handle runs one job and moves it between the status sets. Workers keep
// going after a shutdown signal until the job ends, so the job record is
// never left in processing.
func (c *RedisConsumer) handle(job *RedisJobData) {
	ctx := context.WithoutCancel(c.ctx)
	p := &job.Payload

	c.client.SAdd(ctx, c.keys.processing, job.ID)

	start := time.Now()
	res, err := c.runner.run(ctx, p)
	if err == nil {
		c.runner.complete(ctx, p, res)
		c.markDone(ctx, job.ID, c.keys.completed, c.keys.results, res)
		return
	}

	job.Attempts++
	if retryable(err) && job.Attempts < job.MaxRetries {
		due := c.requeue(ctx, job, time.Now())
		c.logger.Warn(fmt.Sprintf("[Job %s] Scheduled for retry (attempt %d/%d)", p.JobID, job.Attempts, job.MaxRetries),
			"retry_at", due.Format(time.RFC3339), "error", err)
		return
	}

	update := c.runner.fail(ctx, p, err, time.Since(start))
	c.markDone(ctx, job.ID, c.keys.failed, c.keys.errors, failureBody(err, update, job.Attempts))
}

// requeue stores the updated job and parks its id in the delayed set until
// the retry delay has passed.
func (c *RedisConsumer) requeue(ctx context.Context, job *RedisJobData, now time.Time) time.Time {
	due := retryAt(now, job.Attempts)
	data, err := json.Marshal(job)
	if err != nil {
		c.logger.Error("Failed to encode job for retry", "id", job.ID, "error", err)
		return due
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, c.keys.processing, job.ID)
		pipe.HSet(ctx, c.keys.data, job.ID, data)
		pipe.ZAdd(ctx, c.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to re-queue job", "id", job.ID, "error", err)
	}
	return due
}

// retryAt is when a job that has failed attempts times runs again, using
// the same delays as the asynq consumer.
func retryAt(now time.Time, attempts int) time.Time {
	n := attempts - 1
	if n < 0 {
		n = 0
	}
	return now.Add(retryDelay(n, nil, nil))
}

// markDone moves a job out of the processing set into a final set and
// stores its result or error body.
func (c *RedisConsumer) markDone(ctx context.Context, id, set, hash string, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("Failed to encode job result", "id", id, "error", err)
		data = []byte("{}")
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, c.keys.processing, id)
		pipe.SAdd(ctx, set, id)
		pipe.HSet(ctx, hash, id, data)
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to update queue status", "id", id, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.list)
	processing := pipe.SCard(ctx, c.keys.processing)
	delayed := pipe.ZCard(ctx, c.keys.delayed)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"delayed":    delayed.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

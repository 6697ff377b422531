package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisOpTimeout   = 3 * time.Second
	redisPollTimeout = 5 * time.Second
)

// RedisQueue dispatches jobs through a Redis list so that a separate worker
// process can consume them. Producers LPUSH, consumers BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisQueue constructs a queue bound to the given list key.
func NewRedisQueue(client *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = "qbank:generation-jobs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, key: key, logger: logger}
}

// Key returns the backing list key.
func (q *RedisQueue) Key() string {
	return q.key
}

// Available pings Redis.
func (q *RedisQueue) Available(ctx context.Context) bool {
	if q == nil || q.client == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return q.client.Ping(pingCtx).Err() == nil
}

// Enqueue serialises the job and pushes it to the list.
func (q *RedisQueue) Enqueue(job Job) error {
	if q == nil || q.client == nil {
		return errors.New("redis queue not configured")
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	data, err := EncodeJob(job)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push job to %s: %w", q.key, err)
	}
	return nil
}

// Consume runs cfg.Workers pollers until ctx is cancelled. Failed jobs are pushed
// back with an incremented attempt until cfg.MaxRetries is exceeded.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler, cfg QueueConfig) {
	cfg = cfg.withDefaults()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.poll(ctx, workerID, handler, cfg)
		}(i + 1)
	}
	q.logger.Sugar().Infow("redis queue consumers started", "key", q.key, "workers", cfg.Workers)
	wg.Wait()
	q.logger.Sugar().Infow("redis queue consumers stopped", "key", q.key)
}

func (q *RedisQueue) poll(ctx context.Context, workerID int, handler Handler, cfg QueueConfig) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := q.client.BRPop(ctx, redisPollTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			q.logger.Sugar().Warnw("redis queue poll failed", "key", q.key, "worker", workerID, "error", err)
			sleep(ctx, cfg.RetryDelay)
			continue
		}
		// BRPOP replies with [key, value]
		if len(res) != 2 {
			continue
		}
		job, err := DecodeJob([]byte(res[1]))
		if err != nil {
			q.logger.Sugar().Errorw("discarding undecodable job", "key", q.key, "error", err)
			continue
		}
		if err := runSafely(ctx, handler, job); err != nil {
			q.retry(ctx, job, err, cfg)
		}
	}
}

func (q *RedisQueue) retry(ctx context.Context, job Job, err error, cfg QueueConfig) {
	job.Attempt++
	if job.Attempt > cfg.MaxRetries {
		q.logger.Sugar().Errorw("job exceeded retries", "key", q.key, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "key", q.key, "job_id", job.ID, "attempt", job.Attempt, "error", err)
	sleep(ctx, cfg.RetryDelay)
	if ctx.Err() != nil {
		return
	}
	if err := q.Enqueue(job); err != nil {
		q.logger.Sugar().Errorw("failed to requeue job", "key", q.key, "job_id", job.ID, "error", err)
	}
}

func runSafely(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// EncodeJob renders a job as the JSON envelope stored in Redis.
func EncodeJob(job Job) ([]byte, error) {
	if job.ID == "" {
		return nil, errors.New("job id is required")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return data, nil
}

// DecodeJob parses an envelope produced by EncodeJob. Payload is left as raw JSON.
func DecodeJob(data []byte) (Job, error) {
	var envelope struct {
		ID       string          `json:"id"`
		Type     string          `json:"type"`
		Payload  json.RawMessage `json:"payload,omitempty"`
		Attempt  int             `json:"attempt"`
		Enqueued time.Time       `json:"enqueued"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if envelope.ID == "" {
		return Job{}, errors.New("decode job: missing id")
	}
	job := Job{ID: envelope.ID, Type: envelope.Type, Attempt: envelope.Attempt, Enqueued: envelope.Enqueued}
	if len(envelope.Payload) > 0 {
		job.Payload = envelope.Payload
	}
	return job, nil
}

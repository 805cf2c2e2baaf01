package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"medilink/internal/util"
)

// Job is an analysis-ready event: a session whose medical analysis has
// just been written and awaits doctor review.
type Job struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	PatientID  string    `json:"patientId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// ErrNoJob is returned by Dequeue when no message is available.
var ErrNoJob = errors.New("no job available")

// RedisJobQueue publishes and consumes analysis-ready events over a
// Redis stream with a consumer group.
type RedisJobQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	maxLen   int64
	once     sync.Once
}

// RedisQueueConfig configures the queue.
type RedisQueueConfig struct {
	Addr     string
	Password string
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	MaxLen   int64
}

// NewRedisJobQueue connects to Redis and validates the configuration.
func NewRedisJobQueue(cfg RedisQueueConfig) (*RedisJobQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("queue redis addr is required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "medilink:analysis"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "analysis-review"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = "consumer-" + util.NewID()
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisJobQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
		maxLen:   maxLen,
	}, nil
}

// Enqueue publishes an analysis-ready event. Safe to call from multiple
// goroutines.
func (q *RedisJobQueue) Enqueue(ctx context.Context, sessionID, patientID string) (Job, error) {
	job := Job{
		ID:         util.NewID(),
		SessionID:  sessionID,
		PatientID:  patientID,
		EnqueuedAt: time.Now().UTC(),
	}
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":      job.ID,
			"session_id":  job.SessionID,
			"patient_id":  job.PatientID,
			"enqueued_at": job.EnqueuedAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return Job{}, fmt.Errorf("enqueue analysis job: %w", err)
	}
	return job, nil
}

// Dequeue reads the next pending job for this consumer. Returns ErrNoJob
// when the stream is empty within the block window. The returned message
// id must be passed to Ack once the job is handled.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (Job, string, error) {
	q.once.Do(func() { q.ensureGroup(ctx) })
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return Job{}, "", ErrNoJob
		}
		return Job{}, "", fmt.Errorf("read analysis job: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return Job{}, "", ErrNoJob
	}
	msg := streams[0].Messages[0]
	job := Job{
		ID:        stringValue(msg.Values, "job_id"),
		SessionID: stringValue(msg.Values, "session_id"),
		PatientID: stringValue(msg.Values, "patient_id"),
	}
	if raw := stringValue(msg.Values, "enqueued_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			job.EnqueuedAt = ts
		}
	}
	return job, msg.ID, nil
}

// Ack acknowledges a handled message.
func (q *RedisJobQueue) Ack(ctx context.Context, msgID string) error {
	return q.client.XAck(ctx, q.stream, q.group, msgID).Err()
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	// BUSYGROUP means the group already exists; anything else surfaces on read.
	_ = q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
}

func stringValue(values map[string]any, key string) string {
	v, _ := values[key].(string)
	return v
}

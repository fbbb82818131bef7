package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/financeanalyst/securecore/internal/config"
	"github.com/financeanalyst/securecore/internal/models"
)

const (
	AlertsQueue        = "securecore:alerts:pending"
	AlertsProcessing   = "securecore:alerts:processing"
	AlertsDelivered    = "securecore:alerts:delivered"
	AlertsFailed       = "securecore:alerts:failed"
	WorkerHeartbeatKey = "securecore:workers:heartbeat"

	maxAttempts = 3
)

// Queue buffers security alerts for asynchronous delivery. Higher
// severities are popped first.
type Queue struct {
	client *redis.Client
}

func New(cfg config.RedisConfig) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Envelope is an alert in flight through the delivery queue.
type Envelope struct {
	Alert      models.Alert `json:"alert"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	Attempts   int          `json:"attempts"`
}

// EnqueueAlert queues an alert for delivery. Severity sets priority so
// critical alerts jump the line.
func (q *Queue) EnqueueAlert(ctx context.Context, alert models.Alert) error {
	envelope := Envelope{
		Alert:      alert,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	score := float64(time.Now().Unix()) - float64(alert.Severity.Rank()*1000)

	if err := q.client.ZAdd(ctx, AlertsQueue, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing alert: %w", err)
	}
	return nil
}

// DequeueAlert pops the highest-priority alert, or nil when the queue
// is empty.
func (q *Queue) DequeueAlert(ctx context.Context) (*Envelope, error) {
	results, err := q.client.ZPopMin(ctx, AlertsQueue, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing alert: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	raw := results[0].Member.(string)
	var envelope Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling alert: %w", err)
	}

	if err := q.client.SAdd(ctx, AlertsProcessing, raw).Err(); err != nil {
		q.client.ZAdd(ctx, AlertsQueue, redis.Z{
			Score:  results[0].Score,
			Member: results[0].Member,
		})
		return nil, fmt.Errorf("marking alert as processing: %w", err)
	}
	return &envelope, nil
}

// CompleteAlert records a delivered alert.
func (q *Queue) CompleteAlert(ctx context.Context, envelope *Envelope) error {
	data, _ := json.Marshal(envelope)
	q.client.SRem(ctx, AlertsProcessing, string(data))

	if err := q.client.SAdd(ctx, AlertsDelivered, string(data)).Err(); err != nil {
		return fmt.Errorf("marking alert delivered: %w", err)
	}
	return nil
}

// RequeueAlert puts a failed delivery back with backoff. After
// maxAttempts the alert lands in the failed set.
func (q *Queue) RequeueAlert(ctx context.Context, envelope *Envelope) error {
	data, _ := json.Marshal(envelope)
	q.client.SRem(ctx, AlertsProcessing, string(data))

	envelope.Attempts++
	newData, _ := json.Marshal(envelope)

	if envelope.Attempts >= maxAttempts {
		if err := q.client.SAdd(ctx, AlertsFailed, string(newData)).Err(); err != nil {
			return fmt.Errorf("marking alert failed: %w", err)
		}
		return nil
	}

	backoff := time.Duration(envelope.Attempts*30) * time.Second
	score := float64(time.Now().Add(backoff).Unix())

	if err := q.client.ZAdd(ctx, AlertsQueue, redis.Z{
		Score:  score,
		Member: string(newData),
	}).Err(); err != nil {
		return fmt.Errorf("requeuing alert: %w", err)
	}
	return nil
}

// Stats reports queue depths per state.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	pending, _ := q.client.ZCard(ctx, AlertsQueue).Result()
	processing, _ := q.client.SCard(ctx, AlertsProcessing).Result()
	delivered, _ := q.client.SCard(ctx, AlertsDelivered).Result()
	failed, _ := q.client.SCard(ctx, AlertsFailed).Result()

	stats["pending"] = pending
	stats["processing"] = processing
	stats["delivered"] = delivered
	stats["failed"] = failed

	return stats, nil
}

func (q *Queue) WorkerHeartbeat(ctx context.Context, workerID string) error {
	return q.client.HSet(ctx, WorkerHeartbeatKey, workerID, time.Now().Unix()).Err()
}

func (q *Queue) ActiveWorkers(ctx context.Context, timeout time.Duration) ([]string, error) {
	workers, err := q.client.HGetAll(ctx, WorkerHeartbeatKey).Result()
	if err != nil {
		return nil, fmt.Errorf("getting workers: %w", err)
	}

	var active []string
	cutoff := time.Now().Add(-timeout).Unix()

	for workerID, lastSeen := range workers {
		var ts int64
		_, _ = fmt.Sscanf(lastSeen, "%d", &ts)
		if ts > cutoff {
			active = append(active, workerID)
		}
	}
	return active, nil
}

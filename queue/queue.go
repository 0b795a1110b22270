// Package queue implements a bounded, priority-aware, idempotent request
// queue on top of the shared KV store: enqueue/dequeue/complete with
// lease-based processing and expiry-driven cleanup. All shared state
// lives in the KV store; this package holds no authoritative state of
// its own beyond the cleanup daemon's ticker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/BaSui01/agentflow/internal/kv"
	"github.com/BaSui01/agentflow/llm"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the pending list is at
// capacity and cleanup could not free a slot.
var ErrQueueFull = errors.New("queue full")

const defaultRetention = 600 * time.Second

// Item is a request admitted to the queue.
type Item struct {
	ID             string          `json:"id"`
	Request        llm.ChatRequest `json:"request"`
	Priority       int             `json:"priority"`
	CreatedAt      int64           `json:"created_at"`
	UserID         string          `json:"user_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// processingEntry is the value stored in Q:processing for an in-flight item.
type processingEntry struct {
	Item      Item   `json:"item"`
	StartedAt int64  `json:"started_at"`
	WorkerID  string `json:"worker_id"`
}

// Result is what complete() publishes for a finished item.
type Result struct {
	Response *llm.ChatResponse `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Stats reports queue-wide counters.
type Stats struct {
	Total         int64
	PendingLen    int64
	ProcessingLen int64
	Completed     int64
	Failed        int64
}

// Config configures a Queue instance.
type Config struct {
	Name            string        // queue name, used as the KV key prefix
	MaxSize         int           // bound on pending length
	DefaultTimeout  time.Duration // default item timeout when unset
	ResultRetention time.Duration // default 600s
}

// Queue is a bounded FIFO-with-priority request queue.
type Queue struct {
	kv         kv.Client
	cfg        Config
	logger     *zap.Logger
	onComplete CompletionHook
}

// New builds a Queue backed by client.
func New(client kv.Client, cfg Config, logger *zap.Logger) *Queue {
	if cfg.ResultRetention == 0 {
		cfg.ResultRetention = defaultRetention
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{kv: client, cfg: cfg, logger: logger}
}

// DefaultTimeout returns the queue's configured default item timeout,
// used by callers that need to bound their own wait (e.g. a handler
// polling GetResult) without duplicating Config.
func (q *Queue) DefaultTimeout() time.Duration { return q.cfg.DefaultTimeout }

func (q *Queue) pendingKey() string       { return "Q:" + q.cfg.Name + ":pending" }
func (q *Queue) processingKey() string    { return "Q:" + q.cfg.Name + ":processing" }
func (q *Queue) statsKey() string         { return "Q:" + q.cfg.Name + ":stats" }
func (q *Queue) resultKey(id string) string {
	return "Q:" + q.cfg.Name + ":results:" + id
}
func (q *Queue) idemKey(key string) string {
	return "Q:" + q.cfg.Name + ":idem:" + key
}

// Enqueue admits a request to the queue, returning its item id. If
// idempotencyKey is non-empty and a live mapping already exists, the
// existing id is returned without re-enqueueing or touching stats.
func (q *Queue) Enqueue(ctx context.Context, req llm.ChatRequest, priority int, timeout time.Duration, userID, idempotencyKey string) (string, error) {
	if idempotencyKey != "" {
		if existingID, ok, err := q.kv.Get(ctx, q.idemKey(idempotencyKey)); err == nil && ok {
			return existingID, nil
		} else if err != nil {
			return "", err
		}
	}

	if timeout == 0 {
		timeout = q.cfg.DefaultTimeout
	}

	pendingLen, err := q.kv.LLen(ctx, q.pendingKey())
	if err != nil {
		return "", err
	}
	if q.cfg.MaxSize > 0 && pendingLen >= int64(q.cfg.MaxSize) {
		evicted := q.evictExpired(ctx)
		pendingLen, err = q.kv.LLen(ctx, q.pendingKey())
		if err != nil {
			return "", err
		}
		if evicted == 0 || pendingLen >= int64(q.cfg.MaxSize) {
			return "", ErrQueueFull
		}
	}

	item := Item{
		ID:             uuid.NewString(),
		Request:        req,
		Priority:       priority,
		CreatedAt:      time.Now().Unix(),
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		TimeoutSeconds: int(timeout.Seconds()),
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return "", err
	}

	if priority > 0 {
		err = q.kv.LPush(ctx, q.pendingKey(), string(payload))
	} else {
		err = q.kv.RPush(ctx, q.pendingKey(), string(payload))
	}
	if err != nil {
		return "", err
	}

	if idempotencyKey != "" {
		if _, err := q.kv.SetNX(ctx, q.idemKey(idempotencyKey), item.ID, timeout); err != nil {
			q.logger.Warn("failed to register idempotency mapping", zap.String("id", item.ID), zap.Error(err))
		}
	}

	if _, err := q.kv.HIncrBy(ctx, q.statsKey(), "total", 1); err != nil {
		q.logger.Warn("failed to increment total stat", zap.Error(err))
	}

	return item.ID, nil
}

// Dequeue blocks up to waitSeconds for the next pending item (respecting
// priority-jump ordering already encoded by list side) and, on success,
// records a processing lease. Returns (nil, nil) on timeout.
func (q *Queue) Dequeue(ctx context.Context, waitSeconds int, workerID string) (*Item, error) {
	raw, err := q.kv.BLPop(ctx, time.Duration(waitSeconds)*time.Second, q.pendingKey())
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		q.logger.Error("dropping malformed pending item", zap.Error(err))
		return nil, nil
	}

	entry := processingEntry{Item: item, StartedAt: time.Now().Unix(), WorkerID: workerID}
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if err := q.kv.HSet(ctx, q.processingKey(), item.ID, string(payload)); err != nil {
		return nil, err
	}

	return &item, nil
}

// Complete removes id's processing lease, publishes its result (if any)
// for ResultRetention, and increments the completed/failed counter.
// Idempotent: completing an id with no processing entry (already expired
// by cleanup) is accepted silently.
func (q *Queue) Complete(ctx context.Context, id string, result *Result) error {
	_, existed, err := q.kv.HGet(ctx, q.processingKey(), id)
	if err != nil {
		return err
	}
	if !existed {
		q.logger.Info("complete on missing processing entry, treating as no-op", zap.String("id", id))
		return nil
	}

	if err := q.kv.HDel(ctx, q.processingKey(), id); err != nil {
		return err
	}

	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := q.kv.SetEX(ctx, q.resultKey(id), string(payload), q.cfg.ResultRetention); err != nil {
			q.logger.Warn("failed to publish result", zap.String("id", id), zap.Error(err))
		}
	}

	statField := "completed"
	if result != nil && result.Error != "" {
		statField = "failed"
	}
	if _, err := q.kv.HIncrBy(ctx, q.statsKey(), statField, 1); err != nil {
		q.logger.Warn("failed to increment stat", zap.String("field", statField), zap.Error(err))
	}

	return nil
}

// GetResult fetches id's published result if still within retention.
func (q *Queue) GetResult(ctx context.Context, id string) (*Result, bool, error) {
	raw, ok, err := q.kv.Get(ctx, q.resultKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

// Stats reports queue-wide counters.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	pendingLen, err := q.kv.LLen(ctx, q.pendingKey())
	if err != nil {
		return Stats{}, err
	}
	processingLen, err := q.kv.HLen(ctx, q.processingKey())
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Total:         q.statsTotal(ctx),
		PendingLen:    pendingLen,
		ProcessingLen: processingLen,
		Completed:     q.statField(ctx, "completed"),
		Failed:        q.statField(ctx, "failed"),
	}, nil
}

// CleanupExpired scans Q:processing and removes entries whose
// created_at+timeout has elapsed, without moving them back to pending —
// the upstream call may still be in flight. Malformed entries are removed
// unconditionally. Returns the number of entries removed.
func (q *Queue) CleanupExpired(ctx context.Context) int {
	return q.evictExpired(ctx)
}

func (q *Queue) evictExpired(ctx context.Context) int {
	all, err := q.kv.HGetAll(ctx, q.processingKey())
	if err != nil {
		q.logger.Warn("cleanup: failed to scan processing map", zap.Error(err))
		return 0
	}

	now := time.Now().Unix()
	removed := 0
	for id, raw := range all {
		var entry processingEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.logger.Warn("cleanup: dropping malformed processing entry", zap.String("id", id), zap.Error(err))
			_ = q.kv.HDel(ctx, q.processingKey(), id)
			removed++
			continue
		}
		if entry.Item.CreatedAt+int64(entry.Item.TimeoutSeconds) < now {
			if err := q.kv.HDel(ctx, q.processingKey(), id); err != nil {
				q.logger.Warn("cleanup: failed to evict expired entry", zap.String("id", id), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed
}

func (q *Queue) statsTotal(ctx context.Context) int64 {
	return q.statField(ctx, "total")
}

func (q *Queue) statField(ctx context.Context, field string) int64 {
	v, ok, err := q.kv.HGet(ctx, q.statsKey(), field)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

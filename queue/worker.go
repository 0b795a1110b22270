package queue

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow/llm"
	"github.com/BaSui01/agentflow/types"
	"go.uber.org/zap"
)

// CompletionHook, when set via SetCompletionHook, is invoked once per
// completed item after its result is published — a seam for callers (e.g.
// the metrics collector) to observe outcomes without this package
// depending on anything Prometheus-shaped.
type CompletionHook func(failed bool)

// SetCompletionHook installs fn to run after every Complete call made by
// RunWorker. A nil fn disables the hook.
func (q *Queue) SetCompletionHook(fn CompletionHook) {
	q.onComplete = fn
}

// RunWorker dequeues items and drives them through provider until ctx is
// cancelled. waitSeconds bounds each blocking dequeue poll so the worker
// notices cancellation promptly even when the queue sits empty.
func (q *Queue) RunWorker(ctx context.Context, workerID string, provider llm.Provider, waitSeconds int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := q.Dequeue(ctx, waitSeconds, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("dequeue failed, retrying", zap.Error(err))
			continue
		}
		if item == nil {
			continue
		}

		result := q.process(ctx, provider, item)
		if err := q.Complete(ctx, item.ID, result); err != nil {
			q.logger.Error("failed to publish result", zap.String("id", item.ID), zap.Error(err))
		}
		if q.onComplete != nil {
			q.onComplete(result.Error != "")
		}
	}
}

// process drives a single item through provider, bounded by its own
// per-item timeout rather than the worker's lifetime context.
func (q *Queue) process(ctx context.Context, provider llm.Provider, item *Item) *Result {
	timeout := time.Duration(item.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = q.cfg.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := provider.ChatCompletion(callCtx, &item.Request)
	if err != nil {
		return &Result{Error: errorMessage(err)}
	}
	return &Result{Response: resp}
}

func errorMessage(err error) string {
	if typedErr, ok := err.(*types.Error); ok {
		return typedErr.Message
	}
	return err.Error()
}

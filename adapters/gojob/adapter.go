package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDPageViewPrune      = "resultlink.page_views.prune"
	ScriptPathPageViewPrune = "resultlink/page_views/prune"

	ParamTTLSeconds = "ttl_seconds"

	// TerminalCodeInvalidMessage marks prune messages that can never succeed.
	TerminalCodeInvalidMessage job.TerminalErrorCode = "invalid_prune_message"
)

// Pruner deletes page_view events older than ttl and reports how many rows
// went away.
type Pruner interface {
	Prune(ctx context.Context, ttl time.Duration) (int, error)
}

// DefaultRetryPolicy retries failed prunes with exponential backoff and
// dead-letters the message on the fifth failure.
func DefaultRetryPolicy() worker.DefaultRetryPolicy {
	return worker.DefaultRetryPolicy{
		MaxAttempts: 5,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    30 * time.Second,
			MaxInterval: 10 * time.Minute,
		},
	}
}

// NewPruneMessage builds the execution message for one retention run. Runs
// sharing the same window collapse onto one idempotency key.
func NewPruneMessage(ttl time.Duration, window time.Time) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDPageViewPrune,
		ScriptPath: ScriptPathPageViewPrune,
		Parameters: map[string]any{
			ParamTTLSeconds: int64(ttl / time.Second),
		},
		IdempotencyKey: fmt.Sprintf("%s:%d", JobIDPageViewPrune, window.UTC().Unix()),
		DedupPolicy:    job.DedupPolicyDrop,
	}
}

// ParsePruneMessage reads the retention ttl back out of msg. Queue backends
// that round-trip parameters through JSON hand numbers back as float64 or
// json.Number, so every numeric shape is accepted.
func ParsePruneMessage(msg *job.ExecutionMessage) (time.Duration, error) {
	if msg == nil {
		return 0, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDPageViewPrune {
		return 0, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, ok := msg.Parameters[ParamTTLSeconds]
	if !ok {
		return 0, fmt.Errorf("gojob: %s parameter is required", ParamTTLSeconds)
	}
	seconds, err := toSeconds(raw)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("gojob: %s must be positive", ParamTTLSeconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func toSeconds(raw any) (int64, error) {
	switch value := raw.(type) {
	case int:
		return int64(value), nil
	case int64:
		return value, nil
	case int32:
		return int64(value), nil
	case float64:
		if value != math.Trunc(value) {
			return 0, fmt.Errorf("gojob: %s must be a whole number", ParamTTLSeconds)
		}
		return int64(value), nil
	case json.Number:
		return value.Int64()
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("gojob: %s is not a number: %w", ParamTTLSeconds, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("gojob: %s has unsupported type %T", ParamTTLSeconds, raw)
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// EnqueuePrune schedules one retention run for the window containing now.
func (a *EnqueuerAdapter) EnqueuePrune(ctx context.Context, ttl time.Duration, now time.Time) (queue.EnqueueReceipt, error) {
	if a == nil || a.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	if ttl <= 0 {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: retention ttl must be positive")
	}
	return a.enqueuer.Enqueue(ctx, NewPruneMessage(ttl, now.Truncate(time.Minute)))
}

// Schedule enqueues a retention run immediately and then every interval
// until ctx is done. Enqueue failures are reported through onError and do not
// stop the loop.
func (a *EnqueuerAdapter) Schedule(ctx context.Context, ttl time.Duration, interval time.Duration, onError func(error)) error {
	if interval <= 0 {
		return fmt.Errorf("gojob: prune interval must be positive")
	}
	enqueue := func(now time.Time) {
		if _, err := a.EnqueuePrune(ctx, ttl, now); err != nil && onError != nil {
			onError(err)
		}
	}
	enqueue(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			enqueue(now)
		}
	}
}

var _ worker.Hook = (*LoggingHook)(nil)

package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultIdleDelay is how long Run waits after an empty poll or a dequeue
// error before asking the queue again.
const DefaultIdleDelay = time.Second

// ErrQueueEmpty is returned by ProcessNext when a polling queue has nothing
// ready.
var ErrQueueEmpty = errors.New("gojob: no delivery ready")

// attemptsReader is implemented by deliveries that track redelivery, such as
// the memory queue and go-job's SQL adapter.
type attemptsReader interface {
	Attempts() int
}

// RetentionWorker drains prune messages from a queue and applies them to a
// Pruner. Bad messages are dead-lettered; prune failures are nacked with
// whatever the RetryPolicy decides.
type RetentionWorker struct {
	dequeuer  queue.Dequeuer
	pruner    Pruner
	hook      worker.Hook
	policy    worker.RetryPolicy
	idleDelay time.Duration
	logger    glog.Logger
	now       func() time.Time
}

type WorkerOption func(*RetentionWorker)

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *RetentionWorker) {
		if hook != nil {
			w.hook = hook
		}
	}
}

func WithRetryPolicy(policy worker.RetryPolicy) WorkerOption {
	return func(w *RetentionWorker) {
		if policy != nil {
			w.policy = policy
		}
	}
}

func WithIdleDelay(delay time.Duration) WorkerOption {
	return func(w *RetentionWorker) {
		if delay >= 0 {
			w.idleDelay = delay
		}
	}
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(w *RetentionWorker) {
		w.logger = glog.Ensure(logger)
	}
}

func NewRetentionWorker(dequeuer queue.Dequeuer, pruner Pruner, opts ...WorkerOption) (*RetentionWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if pruner == nil {
		return nil, fmt.Errorf("gojob: pruner is required")
	}
	w := &RetentionWorker{
		dequeuer:  dequeuer,
		pruner:    pruner,
		hook:      nopHook{},
		policy:    DefaultRetryPolicy(),
		idleDelay: DefaultIdleDelay,
		logger:    glog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Run processes deliveries until ctx is done.
func (w *RetentionWorker) Run(ctx context.Context) error {
	for {
		delivery, err := w.dequeuer.Dequeue(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.logger.Warn("retention dequeue failed", "error", err.Error())
		}
		if err != nil || delivery == nil {
			if !sleepContext(ctx, w.idleDelay) {
				return ctx.Err()
			}
			continue
		}
		if _, err := w.Handle(ctx, delivery); err != nil {
			w.logger.Warn("retention run failed", "error", err.Error())
		}
	}
}

// ProcessNext handles exactly one delivery and returns the number of pruned
// events.
func (w *RetentionWorker) ProcessNext(ctx context.Context) (int, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	if delivery == nil {
		return 0, ErrQueueEmpty
	}
	return w.Handle(ctx, delivery)
}

func (w *RetentionWorker) Handle(ctx context.Context, delivery queue.Delivery) (int, error) {
	if delivery == nil {
		return 0, fmt.Errorf("gojob: delivery is required")
	}
	attempt := 1
	if reader, ok := delivery.(attemptsReader); ok && reader.Attempts() > 0 {
		attempt = reader.Attempts()
	}
	event := worker.Event{
		Message:   delivery.Message(),
		Delivery:  delivery,
		Attempt:   attempt,
		StartedAt: w.now(),
	}
	w.hook.OnStart(ctx, event)

	ttl, err := ParsePruneMessage(event.Message)
	if err != nil {
		err = job.NewTerminalError(TerminalCodeInvalidMessage, err.Error(), err)
		return 0, w.fail(ctx, event, err, queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		})
	}

	deleted, err := w.pruner.Prune(ctx, ttl)
	if err != nil {
		return 0, w.fail(ctx, event, err, w.policy.Decide(attempt, err))
	}

	event.Duration = w.now().Sub(event.StartedAt)
	if err := delivery.Ack(ctx); err != nil {
		event.Err = err
		w.hook.OnFailure(ctx, event)
		return deleted, err
	}
	w.hook.OnSuccess(ctx, event)
	w.logger.Info("page views pruned",
		"deleted", deleted,
		"ttl", ttl.String(),
		"attempt", attempt,
	)
	return deleted, nil
}

// fail nacks the delivery with opts. Options the queue would refuse are
// replaced by a plain failed disposition so the message never loops.
func (w *RetentionWorker) fail(ctx context.Context, event worker.Event, err error, opts queue.NackOptions) error {
	if invalid := queue.ValidateNackOptions(opts); invalid != nil {
		opts = queue.NackOptions{Disposition: queue.NackDispositionFailed, Reason: invalid.Error()}
	}
	event.Err = err
	event.Delay = opts.Delay
	event.Duration = w.now().Sub(event.StartedAt)
	if opts.Disposition == queue.NackDispositionRetry {
		w.hook.OnRetry(ctx, event)
	} else {
		w.hook.OnFailure(ctx, event)
	}
	return errors.Join(err, event.Delivery.Nack(ctx, opts))
}

// LoggingHook reports worker lifecycle events through a glog logger.
type LoggingHook struct {
	Logger glog.Logger
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger().Debug("retention job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger().Info("retention job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger().Error("retention job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger().Warn("retention job retrying", eventFields(event)...)
}

func (h *LoggingHook) logger() glog.Logger {
	if h == nil {
		return glog.Nop()
	}
	return glog.Ensure(h.Logger)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt, "duration", event.Duration.String()}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

type nopHook struct{}

func (nopHook) OnStart(context.Context, worker.Event)   {}
func (nopHook) OnSuccess(context.Context, worker.Event) {}
func (nopHook) OnFailure(context.Context, worker.Event) {}
func (nopHook) OnRetry(context.Context, worker.Event)   {}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package gojob

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-relay/core"
)

// JobHandler executes one relay job message. core.Service satisfies it.
type JobHandler interface {
	HandleJob(ctx context.Context, msg *core.JobExecutionMessage) error
}

type Consumer struct {
	dequeuer   core.JobDequeuer
	handler    JobHandler
	hook       core.JobWorkerHook
	retryDelay time.Duration
	clock      func() time.Time
}

type ConsumerOption func(*Consumer)

func WithWorkerHook(hook core.JobWorkerHook) ConsumerOption {
	return func(c *Consumer) {
		c.hook = hook
	}
}

// WithRetryDelay sets the nack delay for failed jobs. The delivery ledger
// owns per-endpoint backoff; this only paces whole-job retries.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func NewConsumer(dequeuer core.JobDequeuer, handler JobHandler, opts ...ConsumerOption) *Consumer {
	consumer := &Consumer{
		dequeuer:   dequeuer,
		handler:    handler,
		retryDelay: 30 * time.Second,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(consumer)
		}
	}
	return consumer
}

// ProcessNext dequeues one message, runs it, and settles the delivery. The
// handler error is returned after a successful nack.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.dequeuer == nil || c.handler == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	startedAt := c.clock()
	event := core.JobWorkerEvent{Message: msg, Attempt: 1, StartedAt: startedAt}
	if counted, ok := delivery.(interface{ Attempt() int }); ok && counted.Attempt() > 0 {
		event.Attempt = counted.Attempt()
	}
	c.emit(ctx, event, core.JobWorkerHook.OnStart)

	handleErr := c.handler.HandleJob(ctx, msg)
	event.Duration = c.clock().Sub(startedAt)
	if handleErr == nil {
		if err := delivery.Ack(ctx); err != nil {
			return err
		}
		c.emit(ctx, event, core.JobWorkerHook.OnSuccess)
		return nil
	}

	event.Err = handleErr
	event.Delay = c.retryDelay
	c.emit(ctx, event, core.JobWorkerHook.OnFailure)
	if err := delivery.Nack(ctx, core.JobNackOptions{
		Delay:   c.retryDelay,
		Requeue: true,
		Reason:  handleErr.Error(),
	}); err != nil {
		return fmt.Errorf("gojob: nack after %v: %w", handleErr, err)
	}
	c.emit(ctx, event, core.JobWorkerHook.OnRetry)
	return handleErr
}

func (c *Consumer) emit(ctx context.Context, event core.JobWorkerEvent, fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	if c.hook == nil {
		return
	}
	fn(c.hook, ctx, event)
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Debug("relay job started", eventArgs(event)...)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Info("relay job completed", eventArgs(event)...)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Error("relay job failed", eventArgs(event)...)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Warn("relay job requeued", eventArgs(event)...)
}

func (h *LoggingHook) log(ctx context.Context) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	return h.logger.WithContext(ctx)
}

func eventArgs(event core.JobWorkerEvent) []any {
	args := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if event.Message != nil {
		args = append(args, "job_id", event.Message.JobID)
		if event.Message.IdempotencyKey != "" {
			args = append(args, "idempotency_key", event.Message.IdempotencyKey)
		}
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-relay/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDeliverEvents = core.JobIDDeliverEvents
	JobIDRetrySweep    = core.JobIDRetrySweep
	JobIDArchiveSweep  = core.JobIDArchiveSweep
)

// IsRelayJob reports whether jobID is one the relay service can handle.
func IsRelayJob(jobID string) bool {
	switch strings.TrimSpace(jobID) {
	case JobIDDeliverEvents, JobIDRetrySweep, JobIDArchiveSweep:
		return true
	default:
		return false
	}
}

// NewSweepMessage builds a retry or archive sweep job. The idempotency key is
// bucketed by window, so overlapping schedulers enqueue one sweep per window.
func NewSweepMessage(jobID string, now time.Time, window time.Duration) (*core.JobExecutionMessage, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID != JobIDRetrySweep && jobID != JobIDArchiveSweep {
		return nil, fmt.Errorf("gojob: %q is not a sweep job", jobID)
	}
	if window <= 0 {
		window = time.Minute
	}
	bucket := now.UTC().Truncate(window)
	return &core.JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobID,
		Parameters:     map[string]any{"window_start": bucket.Format(time.RFC3339)},
		IdempotencyKey: fmt.Sprintf("%s:%d", jobID, bucket.Unix()),
		DedupPolicy:    string(job.DedupPolicyDrop),
	}, nil
}

// RetryPolicy bounds whole-job requeues. Per-endpoint retries live in the
// delivery ledger; this only stops a poisoned job from looping.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: 5 * time.Minute, DeadLetterOnMax: true}
}

// NormalizeAttempt clamps the delay and settles the final attempt as a dead
// letter instead of another requeue.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	opts.Delay = max(opts.Delay, 0)
	if p.MaxDelay > 0 {
		opts.Delay = min(opts.Delay, p.MaxDelay)
	}
	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	switch {
	case exhausted:
		opts.Requeue = false
		opts.DeadLetter = opts.DeadLetter || p.DeadLetterOnMax
	case opts.DeadLetter:
		opts.Requeue = false
	}
	// a nack that neither requeues nor dead letters would lose the job
	if !opts.Requeue && !opts.DeadLetter {
		opts.Requeue = true
	}
	return opts
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	jobID, script, key, policy := trimFields(msg.JobID, msg.ScriptPath, msg.IdempotencyKey, msg.DedupPolicy)
	return &job.ExecutionMessage{
		JobID:          jobID,
		ScriptPath:     script,
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: key,
		DedupPolicy:    job.DeduplicationPolicy(policy),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	jobID, script, key, policy := trimFields(msg.JobID, msg.ScriptPath, msg.IdempotencyKey, string(msg.DedupPolicy))
	return &core.JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     script,
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: key,
		DedupPolicy:    policy,
	}
}

// ToNackOptions maps a relay nack onto a go-job disposition. Dead letter wins
// over requeue; a nack that does neither is a terminal failure.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	disposition := queue.NackDispositionFailed
	switch {
	case opts.DeadLetter:
		disposition = queue.NackDispositionDeadLetter
	case opts.Requeue:
		disposition = queue.NackDispositionRetry
	}
	return queue.NackOptions{Disposition: disposition, Delay: opts.Delay, Reason: opts.Reason}
}

func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	return core.JobNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Disposition == queue.NackDispositionRetry,
		DeadLetter: opts.Disposition == queue.NackDispositionDeadLetter,
		Reason:     opts.Reason,
	}
}

// EnqueuerAdapter publishes relay jobs to a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

// Enqueue forwards relay jobs only. The script path defaults to the job id.
func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	switch {
	case a == nil || a.enqueuer == nil:
		return fmt.Errorf("gojob: enqueuer is not configured")
	case msg == nil:
		return fmt.Errorf("gojob: execution message is required")
	case !IsRelayJob(msg.JobID):
		return fmt.Errorf("gojob: unsupported relay job %q", msg.JobID)
	}
	out := ToExecutionMessage(msg)
	if out.ScriptPath == "" {
		out.ScriptPath = out.JobID
	}
	_, err := a.enqueuer.Enqueue(ctx, out)
	return err
}

// DeliveryAdapter settles one dequeued go-job delivery. Nack applies the
// retry policy using the attempt the dequeuer observed.
type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
	attempt  int
	settled  func()
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy, attempt: 1}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

// Attempt is 1 for the first delivery of a message.
func (d *DeliveryAdapter) Attempt() int {
	if d == nil {
		return 0
	}
	return d.attempt
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	if err := d.delivery.Ack(ctx); err != nil {
		return err
	}
	d.finish()
	return nil
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, d.Attempt())
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	if err := d.delivery.Nack(ctx, ToNackOptions(normalized)); err != nil {
		return err
	}
	if !normalized.Requeue {
		d.finish()
	}
	return nil
}

func (d *DeliveryAdapter) finish() {
	if d.settled != nil {
		d.settled()
	}
}

// DequeuerAdapter pulls go-job deliveries and counts redeliveries per
// idempotency key. The count is dropped once a message is acked or dead
// lettered. Messages without a key always report attempt 1.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy

	mu       sync.Mutex
	attempts map[string]int
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy, attempts: map[string]int{}}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil || delivery == nil {
		return nil, err
	}
	adapted := NewDeliveryAdapter(delivery, a.policy)
	key := ""
	if msg := delivery.Message(); msg != nil {
		key = strings.TrimSpace(msg.IdempotencyKey)
	}
	if key == "" {
		return adapted, nil
	}

	a.mu.Lock()
	a.attempts[key]++
	adapted.attempt = a.attempts[key]
	a.mu.Unlock()
	adapted.settled = func() {
		a.mu.Lock()
		delete(a.attempts, key)
		a.mu.Unlock()
	}
	return adapted, nil
}

// WorkerHookAdapter exposes a relay hook to go-job workers.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnStart)
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnSuccess)
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnFailure)
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(ctx, event, core.JobWorkerHook.OnRetry)
}

func (a *WorkerHookAdapter) forward(ctx context.Context, event worker.Event, fn func(core.JobWorkerHook, context.Context, core.JobWorkerEvent)) {
	if a == nil || a.hook == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	fn(a.hook, ctx, core.JobWorkerEvent{
		Message:   FromExecutionMessage(msg),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

func trimFields(jobID, script, key, policy string) (string, string, string, string) {
	return strings.TrimSpace(jobID), strings.TrimSpace(script), strings.TrimSpace(key), strings.TrimSpace(policy)
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = (*LoggingHook)(nil)
)

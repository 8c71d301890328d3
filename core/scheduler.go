package core

import (
	"time"
)

type RetryPolicy struct {
	Backoff []time.Duration
	// MaxAttempts of zero or less leaves the backoff length as the only bound.
	MaxAttempts int
}

// NextDelay reports the delay before the next attempt after failureCount
// failures, or false when the job is exhausted.
func (p RetryPolicy) NextDelay(failureCount int) (time.Duration, bool) {
	if failureCount <= 0 {
		return 0, false
	}
	if p.MaxAttempts > 0 && failureCount >= p.MaxAttempts {
		return 0, false
	}
	index := failureCount - 1
	if index >= len(p.Backoff) {
		return 0, false
	}
	return p.Backoff[index], true
}

type ScheduleDecision struct {
	Attempt DeliveryAttempt
	Health  HealthUpdate
}

// Scheduler is the only place that advances a delivery job's lifecycle. It is
// pure: callers persist the decision.
type Scheduler struct {
	backoff            []time.Duration
	maxAttempts        int
	failureCap         int
	autoPause          bool
	autoPauseThreshold int
}

func NewScheduler(cfg Config) Scheduler {
	return Scheduler{
		backoff:            cfg.Delivery.Backoff(),
		maxAttempts:        cfg.Delivery.MaxAttempts,
		failureCap:         cfg.Health.FailureCap,
		autoPause:          cfg.Health.AutoPause,
		autoPauseThreshold: cfg.Health.AutoPauseThreshold,
	}
}

func (s Scheduler) Policy(sub Subscription) RetryPolicy {
	policy := RetryPolicy{
		Backoff:     append([]time.Duration(nil), s.backoff...),
		MaxAttempts: s.maxAttempts,
	}
	if sub.MaxRetries > 0 {
		policy.MaxAttempts = sub.MaxRetries
	}
	return policy
}

func (s Scheduler) Schedule(attempt DeliveryAttempt, sub Subscription, result AttemptResult, now time.Time) ScheduleDecision {
	now = now.UTC()
	next := attempt
	next.AttemptCount++
	next.LastHTTPStatus = result.HTTPStatus
	next.ResponseBody = result.ResponseBody
	next.ResponseTimeMS = result.ResponseTime.Milliseconds()
	next.UpdatedAt = now

	if result.Success {
		next.Status = DeliveryStatusSucceeded
		next.LastError = ""
		next.NextAttemptAt = nil
		next.DeliveredAt = &now
		return ScheduleDecision{Attempt: next, Health: s.healthUpdate(sub, true, now)}
	}

	next.LastError = result.Error
	if delay, ok := s.Policy(sub).NextDelay(next.AttemptCount); ok {
		nextAt := now.Add(delay)
		next.Status = DeliveryStatusFailedRetrying
		next.NextAttemptAt = &nextAt
	} else {
		next.Status = DeliveryStatusFailedExhausted
		next.NextAttemptAt = nil
	}
	return ScheduleDecision{Attempt: next, Health: s.healthUpdate(sub, false, now)}
}

// Exhaust terminates a job without an outbound request.
func (s Scheduler) Exhaust(attempt DeliveryAttempt, reason string, now time.Time) DeliveryAttempt {
	next := attempt
	next.Status = DeliveryStatusFailedExhausted
	next.NextAttemptAt = nil
	next.LastError = reason
	next.UpdatedAt = now.UTC()
	return next
}

func (s Scheduler) healthUpdate(sub Subscription, success bool, now time.Time) HealthUpdate {
	update := HealthUpdate{
		SubscriptionID: sub.ID,
		Success:        success,
		At:             now,
		FailureCap:     s.failureCap,
	}
	if s.autoPause {
		update.PauseThreshold = s.autoPauseThreshold
		if sub.FailureThreshold > 0 {
			update.PauseThreshold = sub.FailureThreshold
		}
	}
	return update
}

package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// summaryTally collects per-pair outcomes from concurrent workers.
type summaryTally struct {
	mu      sync.Mutex
	summary DeliverySummary
}

func (t *summaryTally) record(status DeliveryStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch status {
	case DeliveryStatusSucceeded:
		t.summary.Delivered++
	case DeliveryStatusFailedRetrying:
		t.summary.Failed++
	case DeliveryStatusFailedExhausted:
		t.summary.Exhausted++
	}
}

func (t *summaryTally) deduplicated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Deduplicated++
}

func (t *summaryTally) skipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Skipped++
}

func (t *summaryTally) unknownEvent(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.UnknownEventIDs = append(t.summary.UnknownEventIDs, id)
}

func (t *summaryTally) snapshot() DeliverySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.summary
	out.UnknownEventIDs = append([]string(nil), t.summary.UnknownEventIDs...)
	return out
}

// DeliverEvents runs event mode: every matched (event, subscription) pair gets
// at most one delivery job, and newly created jobs are attempted once.
func (s *Service) DeliverEvents(ctx context.Context, eventIDs []string) (summary DeliverySummary, err error) {
	startedAt := time.Now()
	ids := normalizeIDs(eventIDs)
	defer func() {
		s.observeOperation(ctx, startedAt, "deliver_events", err, summaryFields(ModeEvent, summary, map[string]any{
			"event_count": len(ids),
		}))
	}()
	if s == nil {
		return DeliverySummary{}, fmt.Errorf("core: service is nil")
	}
	if len(ids) == 0 {
		return DeliverySummary{}, badInput("core: event_ids are required")
	}

	subscriptions, err := s.subscriptionStore.ListActiveSubscriptions(ctx)
	if err != nil {
		return DeliverySummary{}, storeFailure(err, "core: list active subscriptions failed")
	}

	tally := &summaryTally{}
	var aborted atomic.Bool
	workers := s.newPool()
	var loadErr error
	for _, id := range ids {
		if aborted.Load() {
			break
		}
		event, getErr := s.eventStore.GetEvent(ctx, id)
		if getErr != nil {
			if errors.Is(getErr, ErrEventNotFound) || errors.Is(getErr, ErrUnknownEventType) {
				tally.unknownEvent(id)
				continue
			}
			loadErr = storeFailure(getErr, fmt.Sprintf("core: load event %s failed", id))
			aborted.Store(true)
			break
		}
		for _, sub := range Match(event, subscriptions) {
			workers.Go(func() error {
				if aborted.Load() {
					return nil
				}
				if err := s.deliverPair(ctx, event, sub, tally); err != nil {
					aborted.Store(true)
					return err
				}
				return nil
			})
		}
	}
	poolErr := workers.Wait()
	summary = tally.snapshot()
	if err := joinErrors(loadErr, poolErr); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Service) deliverPair(ctx context.Context, event Event, sub Subscription, tally *summaryTally) error {
	attempt, created, err := s.attemptStore.CreateIfAbsent(ctx, NewDeliveryAttempt{
		EventID:        event.ID,
		SubscriptionID: sub.ID,
		EventType:      event.Type,
		CreatedAt:      s.now(),
	})
	if err != nil {
		return storeFailure(err, "core: create delivery attempt failed")
	}
	if !created {
		tally.deduplicated()
		return nil
	}
	return s.runAttempt(ctx, attempt, event, sub, tally)
}

// RetryDue runs retry mode. It only executes what the scheduler already
// committed to: due retries and pending rows abandoned past the stale window.
func (s *Service) RetryDue(ctx context.Context) (summary DeliverySummary, err error) {
	startedAt := time.Now()
	var due []DeliveryAttempt
	defer func() {
		s.observeOperation(ctx, startedAt, "retry_due", err, summaryFields(ModeRetry, summary, map[string]any{
			"due_count": len(due),
		}))
	}()
	if s == nil {
		return DeliverySummary{}, fmt.Errorf("core: service is nil")
	}

	now := s.now()
	due, err = s.attemptStore.ListDue(ctx, DueQuery{
		Now:         now,
		StaleBefore: now.Add(-s.config.Delivery.StaleAfter()),
		Limit:       s.config.Delivery.BatchSize,
	})
	if err != nil {
		return DeliverySummary{}, storeFailure(err, "core: list due deliveries failed")
	}
	if len(due) == 0 {
		return DeliverySummary{}, nil
	}

	subscriptions, events, err := s.loadRetryContext(ctx, due)
	if err != nil {
		return DeliverySummary{}, err
	}

	tally := &summaryTally{}
	var aborted atomic.Bool
	workers := s.newPool()
	for _, row := range due {
		workers.Go(func() error {
			if aborted.Load() {
				return nil
			}
			if err := s.retryRow(ctx, row, subscriptions, events, tally); err != nil {
				aborted.Store(true)
				return err
			}
			return nil
		})
	}
	err = workers.Wait()
	summary = tally.snapshot()
	return summary, err
}

type retryEvent struct {
	event Event
	err   error
}

func (s *Service) loadRetryContext(
	ctx context.Context,
	due []DeliveryAttempt,
) (map[string]*Subscription, map[string]retryEvent, error) {
	subscriptions := map[string]*Subscription{}
	events := map[string]retryEvent{}
	for _, row := range due {
		if _, seen := subscriptions[row.SubscriptionID]; !seen {
			sub, err := s.subscriptionStore.GetSubscription(ctx, row.SubscriptionID)
			switch {
			case err == nil:
				subscriptions[row.SubscriptionID] = &sub
			case errors.Is(err, ErrSubscriptionNotFound):
				subscriptions[row.SubscriptionID] = nil
			default:
				return nil, nil, storeFailure(err, "core: load subscription failed")
			}
		}
		if _, seen := events[row.EventID]; !seen {
			event, err := s.eventStore.GetEvent(ctx, row.EventID)
			switch {
			case err == nil:
				events[row.EventID] = retryEvent{event: event}
			case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrUnknownEventType):
				events[row.EventID] = retryEvent{err: err}
			default:
				return nil, nil, storeFailure(err, "core: load event failed")
			}
		}
	}
	return subscriptions, events, nil
}

func (s *Service) retryRow(
	ctx context.Context,
	row DeliveryAttempt,
	subscriptions map[string]*Subscription,
	events map[string]retryEvent,
	tally *summaryTally,
) error {
	claimed, ok, err := s.attemptStore.Claim(ctx, row.ID, row.Version, s.now())
	if err != nil {
		return storeFailure(err, "core: claim delivery attempt failed")
	}
	if !ok {
		tally.skipped()
		return nil
	}

	sub := subscriptions[row.SubscriptionID]
	if sub == nil || !sub.Deliverable() {
		return s.exhaust(ctx, claimed, "subscription inactive", tally)
	}
	loaded := events[row.EventID]
	if loaded.err != nil {
		return s.exhaust(ctx, claimed, "event not found", tally)
	}
	return s.runAttempt(ctx, claimed, loaded.event, *sub, tally)
}

func (s *Service) exhaust(ctx context.Context, attempt DeliveryAttempt, reason string, tally *summaryTally) error {
	updated, err := s.attemptStore.UpdateAttempt(ctx, s.scheduler.Exhaust(attempt, reason, s.now()))
	if err != nil {
		return storeFailure(err, "core: update delivery attempt failed")
	}
	tally.record(updated.Status)
	s.logWarn(ctx, "delivery exhausted without attempt", map[string]any{
		"delivery_id":     attempt.ID,
		"event_id":        attempt.EventID,
		"subscription_id": attempt.SubscriptionID,
		"reason":          reason,
	})
	return nil
}

// runAttempt executes one outbound request for a claimed or newly created row
// and persists the scheduler's decision.
func (s *Service) runAttempt(
	ctx context.Context,
	attempt DeliveryAttempt,
	event Event,
	sub Subscription,
	tally *summaryTally,
) error {
	var result AttemptResult
	body, err := BuildPayload(event)
	if err != nil {
		result = AttemptResult{Error: fmt.Sprintf("encode payload: %v", err)}
	} else {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("core: outbound limiter: %w", err)
			}
		}
		result = s.executor.Attempt(ctx, DeliveryRequest{
			DeliveryID:   attempt.ID,
			EventType:    event.Type,
			Subscription: sub,
			Body:         body,
		})
	}

	decision := s.scheduler.Schedule(attempt, sub, result, s.now())
	updated, err := s.attemptStore.UpdateAttempt(ctx, decision.Attempt)
	if err != nil {
		return storeFailure(err, "core: update delivery attempt failed")
	}
	health, err := s.subscriptionStore.RecordHealth(ctx, decision.Health)
	if err != nil {
		return storeFailure(err, "core: record subscription health failed")
	}
	if !result.Success && health.PausedAt != nil && sub.PausedAt == nil {
		s.logWarn(ctx, "subscription auto-paused", map[string]any{
			"subscription_id": sub.ID,
			"failure_count":   health.FailureCount,
			"reason":          health.PausedReason,
		})
	}
	tally.record(updated.Status)
	s.observeAttempt(ctx, updated, result)
	return nil
}

// SendTest runs test mode: one synthetic ping to one subscription, recorded
// outside the delivery attempt table.
func (s *Service) SendTest(ctx context.Context, subscriptionID string) (result TestDeliveryResult, err error) {
	startedAt := time.Now()
	subscriptionID = strings.TrimSpace(subscriptionID)
	defer func() {
		s.observeOperation(ctx, startedAt, "send_test", err, map[string]any{
			"mode":            string(ModeTest),
			"subscription_id": subscriptionID,
			"success":         result.Success,
			"http_status":     result.HTTPStatus,
		})
	}()
	if s == nil {
		return TestDeliveryResult{}, fmt.Errorf("core: service is nil")
	}
	if subscriptionID == "" {
		return TestDeliveryResult{}, badInput("core: subscription_id is required")
	}
	if s.testDeliveryStore == nil {
		return TestDeliveryResult{}, fmt.Errorf("core: test delivery store is required")
	}

	sub, err := s.subscriptionStore.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return TestDeliveryResult{}, notFound(err, RelayErrorSubscriptionNotFound)
		}
		return TestDeliveryResult{}, storeFailure(err, "core: load subscription failed")
	}

	now := s.now()
	deliveryID := uuid.NewString()
	attempt := AttemptResult{}
	body, err := BuildTestPayload(sub.ID, now)
	if err != nil {
		attempt.Error = fmt.Sprintf("encode payload: %v", err)
	} else {
		attempt = s.executor.Attempt(ctx, DeliveryRequest{
			DeliveryID:   deliveryID,
			EventType:    EventTypeTest,
			Subscription: sub,
			Body:         body,
		})
	}

	recorded, err := s.testDeliveryStore.RecordTestDelivery(ctx, TestDelivery{
		ID:             deliveryID,
		SubscriptionID: sub.ID,
		Success:        attempt.Success,
		HTTPStatus:     attempt.HTTPStatus,
		Error:          attempt.Error,
		ResponseBody:   attempt.ResponseBody,
		ResponseTimeMS: attempt.ResponseTime.Milliseconds(),
		CreatedAt:      now,
	})
	if err != nil {
		return TestDeliveryResult{}, storeFailure(err, "core: record test delivery failed")
	}
	return TestDeliveryResult{
		Success:        attempt.Success,
		HTTPStatus:     attempt.HTTPStatus,
		Error:          attempt.Error,
		TestDeliveryID: recorded.ID,
	}, nil
}

// Invoke dispatches the internal invocation contract by mode.
func (s *Service) Invoke(ctx context.Context, req InvocationRequest) (InvocationResponse, error) {
	mode := Mode(strings.TrimSpace(strings.ToLower(string(req.Mode))))
	switch mode {
	case ModeEvent:
		summary, err := s.DeliverEvents(ctx, req.EventIDs)
		return InvocationResponse{Mode: mode, Summary: &summary}, err
	case ModeRetry:
		summary, err := s.RetryDue(ctx)
		return InvocationResponse{Mode: mode, Summary: &summary}, err
	case ModeTest:
		result, err := s.SendTest(ctx, req.SubscriptionID)
		if err != nil {
			return InvocationResponse{Mode: mode}, err
		}
		return InvocationResponse{Mode: mode, Test: &result}, nil
	default:
		return InvocationResponse{}, invalidMode(req.Mode)
	}
}

func invalidMode(mode Mode) error {
	return badInput(fmt.Sprintf("%s: %q", ErrInvalidMode.Error(), mode))
}

func (s *Service) newPool() *pool.ErrorPool {
	limit := s.config.Delivery.Concurrency
	if limit <= 0 {
		limit = DefaultConfig().Delivery.Concurrency
	}
	return pool.New().WithMaxGoroutines(limit).WithErrors()
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func summaryFields(mode Mode, summary DeliverySummary, extra map[string]any) map[string]any {
	fields := cloneFields(extra)
	fields["mode"] = string(mode)
	fields["delivered"] = summary.Delivered
	fields["failed"] = summary.Failed
	fields["exhausted"] = summary.Exhausted
	fields["deduplicated"] = summary.Deduplicated
	fields["skipped"] = summary.Skipped
	if len(summary.UnknownEventIDs) > 0 {
		fields["unknown_event_ids"] = strings.Join(summary.UnknownEventIDs, ",")
	}
	return fields
}

package core

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/webhooks"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func TestDeliverEvents_DeliversSignedPayloadOnce(t *testing.T) {
	clock := newTestClock()
	var hits atomic.Int32
	var gotHeaders http.Header
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock)

	summary, err := svc.DeliverEvents(context.Background(), []string{"evt_1"})
	if err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	if summary.Delivered != 1 || summary.Failed != 0 || summary.Exhausted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one outbound request, got %d", hits.Load())
	}

	verifier := webhooks.NewSignatureVerifier("secret-sub_1", 5*time.Minute)
	verifier.Now = clock.Now
	if err := verifier.Verify(gotHeaders, gotBody); err != nil {
		t.Fatalf("expected verifiable signature: %v", err)
	}
	if gotHeaders.Get("X-Event-Type") != string(EventTypeScooterStatusChanged) {
		t.Fatalf("unexpected event type header %q", gotHeaders.Get("X-Event-Type"))
	}

	attempts := store.attemptsFor("evt_1")
	if len(attempts) != 1 {
		t.Fatalf("expected one delivery job, got %d", len(attempts))
	}
	attempt := attempts[0]
	if attempt.Status != DeliveryStatusSucceeded || attempt.AttemptCount != 1 {
		t.Fatalf("unexpected attempt state: %+v", attempt)
	}
	if attempt.LastHTTPStatus != http.StatusOK || attempt.DeliveredAt == nil {
		t.Fatalf("expected delivered attempt with status 200, got %+v", attempt)
	}
	if gotHeaders.Get("X-Webhook-Id") != attempt.ID {
		t.Fatalf("expected delivery id header %q, got %q", attempt.ID, gotHeaders.Get("X-Webhook-Id"))
	}
	if attempt.ResponseBody != `{"ok":true}` {
		t.Fatalf("unexpected response body %q", attempt.ResponseBody)
	}
	sub := store.subscription("sub_1")
	if sub.FailureCount != 0 || sub.LastSuccessAt == nil {
		t.Fatalf("expected healthy subscription, got %+v", sub)
	}
}

func TestDeliverEvents_TimeoutsExhaustAfterThreeAttempts(t *testing.T) {
	clock := newTestClock()
	var calls atomic.Int32
	client := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, context.DeadlineExceeded
	})

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", "https://partner.example/hooks"))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock, WithHTTPClient(client))
	ctx := context.Background()

	summary, err := svc.DeliverEvents(ctx, []string{"evt_1"})
	if err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected retrying failure, got %+v", summary)
	}
	attempt := store.attemptsFor("evt_1")[0]
	if attempt.Status != DeliveryStatusFailedRetrying || attempt.AttemptCount != 1 {
		t.Fatalf("unexpected first attempt: %+v", attempt)
	}
	if !strings.HasPrefix(attempt.LastError, "timeout after") {
		t.Fatalf("expected timeout error, got %q", attempt.LastError)
	}
	if attempt.NextAttemptAt == nil || !attempt.NextAttemptAt.Equal(clock.Now().Add(10*time.Second)) {
		t.Fatalf("expected retry in 10s, got %v", attempt.NextAttemptAt)
	}

	summary, err = svc.RetryDue(ctx)
	if err != nil {
		t.Fatalf("retry due before deadline: %v", err)
	}
	if !emptySummary(summary) || calls.Load() != 1 {
		t.Fatalf("expected nothing due yet, got %+v with %d calls", summary, calls.Load())
	}

	clock.Advance(10 * time.Second)
	summary, err = svc.RetryDue(ctx)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	attempt = store.attemptsFor("evt_1")[0]
	if summary.Failed != 1 || attempt.AttemptCount != 2 || attempt.Status != DeliveryStatusFailedRetrying {
		t.Fatalf("unexpected second attempt: summary=%+v attempt=%+v", summary, attempt)
	}
	if !attempt.NextAttemptAt.Equal(clock.Now().Add(60 * time.Second)) {
		t.Fatalf("expected retry in 60s, got %v", attempt.NextAttemptAt)
	}

	clock.Advance(60 * time.Second)
	summary, err = svc.RetryDue(ctx)
	if err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	attempt = store.attemptsFor("evt_1")[0]
	if summary.Exhausted != 1 || attempt.Status != DeliveryStatusFailedExhausted || attempt.AttemptCount != 3 {
		t.Fatalf("expected exhausted after three attempts: summary=%+v attempt=%+v", summary, attempt)
	}
	if attempt.NextAttemptAt != nil {
		t.Fatalf("expected no next attempt on exhausted job")
	}

	clock.Advance(time.Hour)
	summary, err = svc.RetryDue(ctx)
	if err != nil {
		t.Fatalf("retry after exhaustion: %v", err)
	}
	if calls.Load() != 3 || !emptySummary(summary) {
		t.Fatalf("expected exhausted job to stay untouched, calls=%d summary=%+v", calls.Load(), summary)
	}
	if sub := store.subscription("sub_1"); sub.FailureCount != 3 || sub.LastFailureAt == nil {
		t.Fatalf("expected three recorded failures, got %+v", sub)
	}
}

func TestDeliverEvents_ConcurrentInvocationsDeliverOnce(t *testing.T) {
	clock := newTestClock()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock)

	const invocations = 5
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := DeliverySummary{}
	for range invocations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := svc.DeliverEvents(context.Background(), []string{"evt_1", "evt_1"})
			if err != nil {
				t.Errorf("deliver events: %v", err)
				return
			}
			mu.Lock()
			total.Delivered += summary.Delivered
			total.Deduplicated += summary.Deduplicated
			mu.Unlock()
		}()
	}
	wg.Wait()

	if hits.Load() != 1 {
		t.Fatalf("expected exactly one outbound request, got %d", hits.Load())
	}
	if total.Delivered != 1 || total.Deduplicated != invocations-1 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	if got := len(store.attemptsFor("evt_1")); got != 1 {
		t.Fatalf("expected one delivery job, got %d", got)
	}
}

func TestDeliverEvents_MatchesOnlyOptedInTerritorySubscriptions(t *testing.T) {
	clock := newTestClock()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	global := testSubscription("sub_global", server.URL)
	german := testSubscription("sub_de", server.URL)
	german.Countries = []string{"de"}
	french := testSubscription("sub_fr", server.URL)
	french.Countries = []string{"FR"}
	other := testSubscription("sub_other", server.URL, EventTypeUserRegistered)
	paused := testSubscription("sub_paused", server.URL)
	pausedAt := clock.Now()
	paused.PausedAt = &pausedAt
	for _, sub := range []Subscription{global, german, french, other, paused} {
		store.putSubscription(sub)
	}
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	store.putEvent(testEvent("evt_internal", EventType("billing_invoice_created"), clock.Now()))
	svc := newTestService(t, store, clock)

	summary, err := svc.DeliverEvents(context.Background(), []string{"evt_1", "evt_internal"})
	if err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	if summary.Delivered != 2 || hits.Load() != 2 {
		t.Fatalf("expected global and DE deliveries, got %+v with %d hits", summary, hits.Load())
	}
	attempts := store.attemptsFor("evt_1")
	if len(attempts) != 2 || attempts[0].SubscriptionID != "sub_de" || attempts[1].SubscriptionID != "sub_global" {
		t.Fatalf("unexpected matched jobs: %+v", attempts)
	}
	if len(store.attemptsFor("evt_internal")) != 0 {
		t.Fatalf("expected internal event type to be ignored")
	}
}

func TestDeliverEvents_ReportsUnknownEventsAndContinues(t *testing.T) {
	clock := newTestClock()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock)

	summary, err := svc.DeliverEvents(context.Background(), []string{" missing ", "evt_1", ""})
	if err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	if summary.Delivered != 1 {
		t.Fatalf("expected known event to be delivered, got %+v", summary)
	}
	if len(summary.UnknownEventIDs) != 1 || summary.UnknownEventIDs[0] != "missing" {
		t.Fatalf("expected missing event to be reported, got %+v", summary.UnknownEventIDs)
	}
}

func TestDeliverEvents_RejectsEmptyInput(t *testing.T) {
	svc := newTestService(t, newMemoryStore(), newTestClock())
	_, err := svc.DeliverEvents(context.Background(), []string{" ", ""})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != RelayErrorBadInput {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestDeliverEvents_StoreFailureAborts(t *testing.T) {
	store := newMemoryStore()
	store.listErr = errors.New("connection refused")
	svc := newTestService(t, store, newTestClock())

	_, err := svc.DeliverEvents(context.Background(), []string{"evt_1"})
	if err == nil {
		t.Fatalf("expected store failure")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != RelayErrorStoreFailure {
		t.Fatalf("expected store failure text code, got %v", err)
	}
}

func TestDeliverEvents_StopsLoadingEventsAfterDeliveryFailure(t *testing.T) {
	clock := newTestClock()
	store := newMemoryStore()
	store.createErr = errors.New("connection reset")
	store.putSubscription(testSubscription("sub_1", "https://partner.example/hook"))
	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		store.putEvent(testEvent(id, EventTypeScooterStatusChanged, clock.Now()))
	}
	cfg := DefaultConfig()
	cfg.Delivery.Concurrency = 1
	svc := newConfiguredTestService(t, cfg, store, clock)

	_, err := svc.DeliverEvents(context.Background(), []string{"evt_1", "evt_2", "evt_3"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode != RelayErrorStoreFailure {
		t.Fatalf("expected store failure, got %v", err)
	}
	store.mu.Lock()
	lookups := append([]string(nil), store.eventLookups...)
	store.mu.Unlock()
	if len(lookups) != 2 || lookups[0] != "evt_1" || lookups[1] != "evt_2" {
		t.Fatalf("expected loading to stop after the failed pair, got %v", lookups)
	}
}

func TestRetryDue_RecoversStalePendingJobs(t *testing.T) {
	clock := newTestClock()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_stale", EventTypeScooterStatusChanged, clock.Now()))
	store.putEvent(testEvent("evt_fresh", EventTypeScooterStatusChanged, clock.Now()))
	store.putAttempt(DeliveryAttempt{
		ID:             "att_stale",
		EventID:        "evt_stale",
		SubscriptionID: "sub_1",
		EventType:      EventTypeScooterStatusChanged,
		Status:         DeliveryStatusPending,
		Version:        1,
		CreatedAt:      clock.Now().Add(-10 * time.Minute),
		UpdatedAt:      clock.Now().Add(-10 * time.Minute),
	})
	store.putAttempt(DeliveryAttempt{
		ID:             "att_fresh",
		EventID:        "evt_fresh",
		SubscriptionID: "sub_1",
		EventType:      EventTypeScooterStatusChanged,
		Status:         DeliveryStatusPending,
		Version:        1,
		CreatedAt:      clock.Now().Add(-time.Minute),
		UpdatedAt:      clock.Now().Add(-time.Minute),
	})
	svc := newTestService(t, store, clock)

	summary, err := svc.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("retry due: %v", err)
	}
	if summary.Delivered != 1 || hits.Load() != 1 {
		t.Fatalf("expected only the stale job to run, got %+v with %d hits", summary, hits.Load())
	}
	stale := store.attemptsFor("evt_stale")[0]
	if stale.Status != DeliveryStatusSucceeded || stale.AttemptCount != 1 {
		t.Fatalf("unexpected stale job state: %+v", stale)
	}
	if fresh := store.attemptsFor("evt_fresh")[0]; fresh.Status != DeliveryStatusPending {
		t.Fatalf("expected fresh pending job to be left alone, got %+v", fresh)
	}
}

func TestRetryDue_ExhaustsJobsForInactiveSubscriptions(t *testing.T) {
	clock := newTestClock()
	var calls atomic.Int32
	client := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unexpected request")
	})

	store := newMemoryStore()
	sub := testSubscription("sub_1", "https://partner.example/hooks")
	sub.IsActive = false
	store.putSubscription(sub)
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	due := clock.Now().Add(-time.Second)
	store.putAttempt(DeliveryAttempt{
		ID:             "att_1",
		EventID:        "evt_1",
		SubscriptionID: "sub_1",
		EventType:      EventTypeScooterStatusChanged,
		AttemptCount:   1,
		Status:         DeliveryStatusFailedRetrying,
		NextAttemptAt:  &due,
		Version:        2,
		CreatedAt:      clock.Now().Add(-time.Minute),
		UpdatedAt:      clock.Now().Add(-time.Minute),
	})
	store.putAttempt(DeliveryAttempt{
		ID:             "att_2",
		EventID:        "evt_gone",
		SubscriptionID: "sub_missing",
		EventType:      EventTypeScooterStatusChanged,
		AttemptCount:   1,
		Status:         DeliveryStatusFailedRetrying,
		NextAttemptAt:  &due,
		Version:        2,
		CreatedAt:      clock.Now().Add(-time.Minute),
		UpdatedAt:      clock.Now().Add(-time.Minute),
	})
	svc := newTestService(t, store, clock, WithHTTPClient(client))

	summary, err := svc.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("retry due: %v", err)
	}
	if summary.Exhausted != 2 || calls.Load() != 0 {
		t.Fatalf("expected both jobs exhausted without requests, got %+v with %d calls", summary, calls.Load())
	}
	attempt, err := store.GetAttempt(context.Background(), "att_1")
	if err != nil {
		t.Fatalf("get attempt: %v", err)
	}
	if attempt.Status != DeliveryStatusFailedExhausted || attempt.LastError != "subscription inactive" {
		t.Fatalf("unexpected exhausted job: %+v", attempt)
	}
	if attempt.AttemptCount != 1 {
		t.Fatalf("expected attempt count to stay at 1, got %d", attempt.AttemptCount)
	}
}

func TestRetryDue_ExhaustsJobsForMissingEvents(t *testing.T) {
	clock := newTestClock()
	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", "https://partner.example/hooks"))
	due := clock.Now().Add(-time.Second)
	store.putAttempt(DeliveryAttempt{
		ID:             "att_1",
		EventID:        "evt_deleted",
		SubscriptionID: "sub_1",
		AttemptCount:   1,
		Status:         DeliveryStatusFailedRetrying,
		NextAttemptAt:  &due,
		Version:        1,
		CreatedAt:      due,
		UpdatedAt:      due,
	})
	svc := newTestService(t, store, clock)

	summary, err := svc.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("retry due: %v", err)
	}
	attempt, _ := store.GetAttempt(context.Background(), "att_1")
	if summary.Exhausted != 1 || attempt.LastError != "event not found" {
		t.Fatalf("expected event-not-found exhaustion, got %+v / %+v", summary, attempt)
	}
}

type losingClaimStore struct {
	*memoryStore
}

func (s losingClaimStore) Claim(context.Context, string, int, time.Time) (DeliveryAttempt, bool, error) {
	return DeliveryAttempt{}, false, nil
}

func TestRetryDue_SkipsJobsClaimedElsewhere(t *testing.T) {
	clock := newTestClock()
	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", "https://partner.example/hooks"))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	due := clock.Now().Add(-time.Second)
	store.putAttempt(DeliveryAttempt{
		ID:             "att_1",
		EventID:        "evt_1",
		SubscriptionID: "sub_1",
		AttemptCount:   1,
		Status:         DeliveryStatusFailedRetrying,
		NextAttemptAt:  &due,
		Version:        1,
		CreatedAt:      due,
		UpdatedAt:      due,
	})
	svc := newTestService(t, store, clock, WithAttemptStore(losingClaimStore{memoryStore: store}))

	summary, err := svc.RetryDue(context.Background())
	if err != nil {
		t.Fatalf("retry due: %v", err)
	}
	if summary.Skipped != 1 || summary.Failed != 0 || summary.Delivered != 0 {
		t.Fatalf("expected lost claim to be skipped, got %+v", summary)
	}
}

func TestDeliverEvents_AutoPausesAfterConsecutiveFailures(t *testing.T) {
	clock := newTestClock()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newMemoryStore()
	sub := testSubscription("sub_1", server.URL)
	sub.FailureThreshold = 2
	store.putSubscription(sub)
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	store.putEvent(testEvent("evt_2", EventTypeScooterStatusChanged, clock.Now()))
	store.putEvent(testEvent("evt_3", EventTypeScooterStatusChanged, clock.Now()))

	cfg := DefaultConfig()
	cfg.Health.AutoPause = true
	svc := newConfiguredTestService(t, cfg, store, clock)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2"} {
		if _, err := svc.DeliverEvents(ctx, []string{id}); err != nil {
			t.Fatalf("deliver %s: %v", id, err)
		}
	}
	paused := store.subscription("sub_1")
	if paused.IsActive || paused.PausedAt == nil {
		t.Fatalf("expected subscription to be paused, got %+v", paused)
	}
	if !strings.Contains(paused.PausedReason, "2 consecutive delivery failures") {
		t.Fatalf("unexpected pause reason %q", paused.PausedReason)
	}

	summary, err := svc.DeliverEvents(ctx, []string{"evt_3"})
	if err != nil {
		t.Fatalf("deliver after pause: %v", err)
	}
	if !emptySummary(summary) {
		t.Fatalf("expected paused subscription to receive nothing, got %+v", summary)
	}
}

func TestDeliverEvents_SubscriptionMaxRetriesOverridesDefault(t *testing.T) {
	clock := newTestClock()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := newMemoryStore()
	sub := testSubscription("sub_1", server.URL)
	sub.MaxRetries = 1
	store.putSubscription(sub)
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock)

	summary, err := svc.DeliverEvents(context.Background(), []string{"evt_1"})
	if err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	attempt := store.attemptsFor("evt_1")[0]
	if summary.Exhausted != 1 || attempt.Status != DeliveryStatusFailedExhausted {
		t.Fatalf("expected single attempt budget, got %+v / %+v", summary, attempt)
	}
	if attempt.LastError != "HTTP 502" || attempt.LastHTTPStatus != http.StatusBadGateway {
		t.Fatalf("unexpected failure details: %+v", attempt)
	}
}

func TestSendTest_RecordsOutsideDeliveryJobs(t *testing.T) {
	clock := newTestClock()
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	svc := newTestService(t, store, clock)

	result, err := svc.SendTest(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("send test: %v", err)
	}
	if result.Success || result.HTTPStatus != http.StatusServiceUnavailable || result.Error != "HTTP 503" {
		t.Fatalf("unexpected test result: %+v", result)
	}
	if result.TestDeliveryID == "" {
		t.Fatalf("expected test delivery id")
	}
	if !strings.Contains(gotBody, `"event_type":"webhook.test"`) || !strings.Contains(gotBody, TestEventID) {
		t.Fatalf("unexpected test payload %s", gotBody)
	}
	page, _ := store.ListAttempts(context.Background(), DeliveryFilter{IncludeArchived: true})
	if page.Total != 0 {
		t.Fatalf("expected no delivery jobs for test mode, got %d", page.Total)
	}
	tests := store.testDeliveries()
	if len(tests) != 1 || tests[0].HTTPStatus != http.StatusServiceUnavailable {
		t.Fatalf("expected one recorded test delivery, got %+v", tests)
	}
	if sub := store.subscription("sub_1"); sub.FailureCount != 0 {
		t.Fatalf("expected test delivery to leave health untouched, got %d", sub.FailureCount)
	}
}

func TestSendTest_UnknownSubscription(t *testing.T) {
	svc := newTestService(t, newMemoryStore(), newTestClock())
	_, err := svc.SendTest(context.Background(), "sub_missing")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected wrapped ErrSubscriptionNotFound, got %v", err)
	}
}

func TestInvoke_DispatchesByMode(t *testing.T) {
	clock := newTestClock()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	svc := newTestService(t, store, clock)
	ctx := context.Background()

	resp, err := svc.Invoke(ctx, InvocationRequest{Mode: "EVENT", EventIDs: []string{"evt_1"}})
	if err != nil || resp.Summary == nil || resp.Summary.Delivered != 1 {
		t.Fatalf("unexpected event mode response: %+v err=%v", resp, err)
	}
	resp, err = svc.Invoke(ctx, InvocationRequest{Mode: ModeRetry})
	if err != nil || resp.Summary == nil {
		t.Fatalf("unexpected retry mode response: %+v err=%v", resp, err)
	}
	resp, err = svc.Invoke(ctx, InvocationRequest{Mode: ModeTest, SubscriptionID: "sub_1"})
	if err != nil || resp.Test == nil || !resp.Test.Success {
		t.Fatalf("unexpected test mode response: %+v err=%v", resp, err)
	}
	if _, err := svc.Invoke(ctx, InvocationRequest{Mode: "replay"}); err == nil {
		t.Fatalf("expected invalid mode error")
	}
}

func TestDeliverEvents_RecordsMetrics(t *testing.T) {
	clock := newTestClock()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMemoryStore()
	store.putSubscription(testSubscription("sub_1", server.URL))
	store.putEvent(testEvent("evt_1", EventTypeScooterStatusChanged, clock.Now()))
	metrics := newRecordingMetrics()
	svc := newTestService(t, store, clock, WithMetricsRecorder(metrics))

	if _, err := svc.DeliverEvents(context.Background(), []string{"evt_1"}); err != nil {
		t.Fatalf("deliver events: %v", err)
	}
	if metrics.counter("relay.deliver_events.total") != 1 {
		t.Fatalf("expected operation counter")
	}
	if metrics.counter("relay.attempt.total") != 1 {
		t.Fatalf("expected attempt counter")
	}
}

func emptySummary(summary DeliverySummary) bool {
	return summary.Delivered == 0 &&
		summary.Failed == 0 &&
		summary.Exhausted == 0 &&
		summary.Deduplicated == 0 &&
		summary.Skipped == 0 &&
		len(summary.UnknownEventIDs) == 0
}

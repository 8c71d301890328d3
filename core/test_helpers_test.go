package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu            sync.Mutex
	events        map[string]Event
	subscriptions map[string]Subscription
	attempts      map[string]DeliveryAttempt
	tests         []TestDelivery
	nextID        int

	listErr   error
	createErr error
	updateErr error

	eventLookups []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events:        map[string]Event{},
		subscriptions: map[string]Subscription{},
		attempts:      map[string]DeliveryAttempt{},
	}
}

func (m *memoryStore) putEvent(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
}

func (m *memoryStore) putSubscription(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
}

func (m *memoryStore) putAttempt(attempt DeliveryAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.ID] = attempt
}

func (m *memoryStore) attemptsFor(eventID string) []DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []DeliveryAttempt{}
	for _, attempt := range m.attempts {
		if attempt.EventID == eventID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out
}

func (m *memoryStore) subscription(id string) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscriptions[id]
}

func (m *memoryStore) GetEvent(_ context.Context, id string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventLookups = append(m.eventLookups, id)
	event, ok := m.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return event, nil
}

func (m *memoryStore) ListActiveSubscriptions(context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []Subscription{}
	for _, sub := range m.subscriptions {
		if sub.Deliverable() {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) GetSubscription(_ context.Context, id string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return sub, nil
}

func (m *memoryStore) RecordHealth(_ context.Context, update HealthUpdate) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscriptions[update.SubscriptionID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, update.SubscriptionID)
	}
	at := update.At
	if update.Success {
		sub.FailureCount = 0
		sub.LastSuccessAt = &at
	} else {
		sub.FailureCount++
		if update.FailureCap > 0 && sub.FailureCount > update.FailureCap {
			sub.FailureCount = update.FailureCap
		}
		sub.LastFailureAt = &at
		if update.PauseThreshold > 0 && sub.FailureCount >= update.PauseThreshold && sub.PausedAt == nil {
			sub.IsActive = false
			sub.PausedAt = &at
			sub.PausedReason = fmt.Sprintf("Auto-paused: %d consecutive delivery failures", sub.FailureCount)
		}
	}
	sub.UpdatedAt = at
	m.subscriptions[sub.ID] = sub
	return sub, nil
}

func (m *memoryStore) CreateIfAbsent(_ context.Context, in NewDeliveryAttempt) (DeliveryAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return DeliveryAttempt{}, false, m.createErr
	}
	for _, existing := range m.attempts {
		if existing.EventID == in.EventID && existing.SubscriptionID == in.SubscriptionID {
			return existing, false, nil
		}
	}
	m.nextID++
	attempt := DeliveryAttempt{
		ID:             fmt.Sprintf("att_%d", m.nextID),
		EventID:        in.EventID,
		SubscriptionID: in.SubscriptionID,
		EventType:      in.EventType,
		Status:         DeliveryStatusPending,
		Version:        1,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.CreatedAt,
	}
	m.attempts[attempt.ID] = attempt
	return attempt, true, nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return DeliveryAttempt{}, fmt.Errorf("%w: %s", ErrAttemptNotFound, id)
	}
	return attempt, nil
}

func (m *memoryStore) Claim(_ context.Context, id string, version int, now time.Time) (DeliveryAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok || attempt.Version != version {
		return DeliveryAttempt{}, false, nil
	}
	attempt.Status = DeliveryStatusPending
	attempt.Version++
	attempt.UpdatedAt = now
	m.attempts[id] = attempt
	return attempt, true, nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, attempt DeliveryAttempt) (DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return DeliveryAttempt{}, m.updateErr
	}
	if _, ok := m.attempts[attempt.ID]; !ok {
		return DeliveryAttempt{}, fmt.Errorf("%w: %s", ErrAttemptNotFound, attempt.ID)
	}
	attempt.Version++
	m.attempts[attempt.ID] = attempt
	return attempt, nil
}

func (m *memoryStore) ListDue(_ context.Context, query DueQuery) ([]DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []DeliveryAttempt{}
	for _, attempt := range m.attempts {
		if attempt.ArchivedAt != nil {
			continue
		}
		switch attempt.Status {
		case DeliveryStatusFailedRetrying:
			if attempt.NextAttemptAt != nil && !attempt.NextAttemptAt.After(query.Now) {
				out = append(out, attempt)
			}
		case DeliveryStatusPending:
			if attempt.UpdatedAt.Before(query.StaleBefore) {
				out = append(out, attempt)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []DeliveryAttempt{}
	for _, attempt := range m.attempts {
		if filter.EventID != "" && attempt.EventID != filter.EventID {
			continue
		}
		if filter.SubscriptionID != "" && attempt.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if filter.Status != "" && attempt.Status != filter.Status {
			continue
		}
		if !filter.IncludeArchived && attempt.ArchivedAt != nil {
			continue
		}
		items = append(items, attempt)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	total := len(items)
	if filter.Offset < len(items) {
		items = items[filter.Offset:]
	} else {
		items = nil
	}
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return DeliveryPage{Items: items, Total: total}, nil
}

func (m *memoryStore) ArchiveTerminal(_ context.Context, before time.Time, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for id, attempt := range m.attempts {
		if attempt.ArchivedAt != nil || !attempt.Status.Terminal() || !attempt.UpdatedAt.Before(before) {
			continue
		}
		archivedAt := now
		attempt.ArchivedAt = &archivedAt
		m.attempts[id] = attempt
		count++
	}
	return count, nil
}

func (m *memoryStore) CountByStatus(_ context.Context, filter StatusCountFilter) (StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := StatusCounts{}
	for _, attempt := range m.attempts {
		if filter.SubscriptionID != "" && attempt.SubscriptionID != filter.SubscriptionID {
			continue
		}
		if !filter.IncludeArchived && attempt.ArchivedAt != nil {
			continue
		}
		switch attempt.Status {
		case DeliveryStatusPending:
			counts.Pending++
		case DeliveryStatusSucceeded:
			counts.Succeeded++
		case DeliveryStatusFailedRetrying:
			counts.FailedRetrying++
		case DeliveryStatusFailedExhausted:
			counts.FailedExhausted++
		}
	}
	return counts, nil
}

func (m *memoryStore) RecordTestDelivery(_ context.Context, delivery TestDelivery) (TestDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests = append(m.tests, delivery)
	return delivery, nil
}

func (m *memoryStore) testDeliveries() []TestDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tests)
}

// testClock is a controllable clock shared by the service and assertions.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]int64{}, histograms: map[string]int{}}
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += value
}

func (r *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name]++
}

func (r *recordingMetrics) counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	messages []*JobExecutionMessage
	err      error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func testSubscription(id string, url string, types ...EventType) Subscription {
	if len(types) == 0 {
		types = []EventType{EventTypeScooterStatusChanged}
	}
	return Subscription{
		ID:         id,
		URL:        url,
		Secret:     "secret-" + id,
		EventTypes: types,
		IsActive:   true,
	}
}

func testEvent(id string, eventType EventType, createdAt time.Time) Event {
	return Event{
		ID:        id,
		Type:      eventType,
		Country:   "DE",
		ScooterID: "scooter-1",
		Payload:   map[string]any{"status": "active"},
		CreatedAt: createdAt,
	}
}

type fataler interface {
	Fatalf(format string, args ...any)
}

func newTestService(t fataler, store *memoryStore, clock *testClock, opts ...Option) *Service {
	return newConfiguredTestService(t, DefaultConfig(), store, clock, opts...)
}

func newConfiguredTestService(t fataler, cfg Config, store *memoryStore, clock *testClock, opts ...Option) *Service {
	base := []Option{
		WithEventStore(store),
		WithSubscriptionStore(store),
		WithAttemptStore(store),
		WithTestDeliveryStore(store),
		WithStatusCounter(store),
		WithClock(clock.Now),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

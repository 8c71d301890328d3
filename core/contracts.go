package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// EventStore reads immutable event records. Missing events are reported with
// an error wrapping ErrEventNotFound.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (Event, error)
}

type SubscriptionStore interface {
	ListActiveSubscriptions(ctx context.Context) ([]Subscription, error)
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	RecordHealth(ctx context.Context, update HealthUpdate) (Subscription, error)
}

type AttemptStore interface {
	// CreateIfAbsent atomically inserts a pending attempt for the pair. When a
	// row already exists it is returned with created=false.
	CreateIfAbsent(ctx context.Context, in NewDeliveryAttempt) (attempt DeliveryAttempt, created bool, err error)
	GetAttempt(ctx context.Context, id string) (DeliveryAttempt, error)
	// Claim leases a row by compare-and-set on its version. It returns false
	// when another invocation changed the row first.
	Claim(ctx context.Context, id string, version int, now time.Time) (DeliveryAttempt, bool, error)
	UpdateAttempt(ctx context.Context, attempt DeliveryAttempt) (DeliveryAttempt, error)
	ListDue(ctx context.Context, query DueQuery) ([]DeliveryAttempt, error)
	ListAttempts(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
	ArchiveTerminal(ctx context.Context, before time.Time, now time.Time) (int, error)
}

type StatusCounter interface {
	CountByStatus(ctx context.Context, filter StatusCountFilter) (StatusCounts, error)
}

type TestDeliveryStore interface {
	RecordTestDelivery(ctx context.Context, delivery TestDelivery) (TestDelivery, error)
}

// StoreProvider is implemented by repository factories that build every store
// the service needs from a persistence client.
type StoreProvider interface {
	EventStore() EventStore
	SubscriptionStore() SubscriptionStore
	AttemptStore() AttemptStore
	TestDeliveryStore() TestDeliveryStore
	StatusCounter() StatusCounter
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type OutboundLimiter interface {
	Wait(ctx context.Context) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type eventRecord struct {
	bun.BaseModel `bun:"table:relay_events,alias:re"`

	ID        string         `bun:"id,pk"`
	EventType string         `bun:"event_type,notnull"`
	TenantID  string         `bun:"tenant_id,notnull"`
	Country   string         `bun:"country,notnull"`
	ScooterID string         `bun:"scooter_id,notnull"`
	UserID    string         `bun:"user_id,notnull"`
	Payload   map[string]any `bun:"payload,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type subscriptionRecord struct {
	bun.BaseModel `bun:"table:relay_subscriptions,alias:rs"`

	ID               string     `bun:"id,pk"`
	TenantID         string     `bun:"tenant_id,notnull"`
	URL              string     `bun:"url,notnull"`
	Secret           string     `bun:"secret,notnull"`
	EventTypes       []string   `bun:"event_types,type:jsonb,notnull"`
	Countries        []string   `bun:"countries,type:jsonb,notnull"`
	IsActive         bool       `bun:"is_active,notnull"`
	TimeoutSeconds   int        `bun:"timeout_seconds,notnull"`
	MaxRetries       int        `bun:"max_retries,notnull"`
	FailureThreshold int        `bun:"failure_threshold,notnull"`
	FailureCount     int        `bun:"failure_count,notnull"`
	LastSuccessAt    *time.Time `bun:"last_success_at,nullzero"`
	LastFailureAt    *time.Time `bun:"last_failure_at,nullzero"`
	PausedAt         *time.Time `bun:"paused_at,nullzero"`
	PausedReason     string     `bun:"paused_reason,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:relay_delivery_attempts,alias:rda"`

	ID             string     `bun:"id,pk"`
	EventID        string     `bun:"event_id,notnull"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	EventType      string     `bun:"event_type,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull"`
	Status         string     `bun:"status,notnull"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	LastHTTPStatus int        `bun:"last_http_status,notnull"`
	LastError      string     `bun:"last_error,notnull"`
	ResponseBody   string     `bun:"response_body,notnull"`
	ResponseTimeMS int64      `bun:"response_time_ms,notnull"`
	Version        int        `bun:"version,notnull"`
	DeliveredAt    *time.Time `bun:"delivered_at,nullzero"`
	ArchivedAt     *time.Time `bun:"archived_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type testDeliveryRecord struct {
	bun.BaseModel `bun:"table:relay_test_deliveries,alias:rtd"`

	ID             string    `bun:"id,pk"`
	SubscriptionID string    `bun:"subscription_id,notnull"`
	Success        bool      `bun:"success,notnull"`
	HTTPStatus     int       `bun:"http_status,notnull"`
	Error          string    `bun:"error,notnull"`
	ResponseBody   string    `bun:"response_body,notnull"`
	ResponseTimeMS int64     `bun:"response_time_ms,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type statusCountRow struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

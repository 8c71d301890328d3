package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-relay/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

func (s *SubscriptionStore) ListActiveSubscriptions(ctx context.Context) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true).Where("?TableAlias.paused_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SubscriptionStore) GetSubscription(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record, err := findSubscription(ctx, s.db, id)
	if err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

// CreateSubscription registers a partner endpoint. New rows start active with
// a zero failure count.
func (s *SubscriptionStore) CreateSubscription(ctx context.Context, sub core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	if strings.TrimSpace(sub.URL) == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription url is required")
	}
	if strings.TrimSpace(sub.Secret) == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription secret is required")
	}
	if _, err := core.ParseEventTypes(eventTypeStrings(sub.EventTypes)); err != nil {
		return core.Subscription{}, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(sub.ID) == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = sub.CreatedAt
	sub.FailureCount = 0
	sub.PausedAt = nil
	sub.PausedReason = ""

	record := newSubscriptionRecord(sub)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Subscription{}, fmt.Errorf("sqlstore: subscription %q already exists: %w", record.ID, err)
		}
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

// RecordHealth applies one delivery outcome to the subscription's health
// columns inside a transaction so concurrent outcomes serialize.
func (s *SubscriptionStore) RecordHealth(ctx context.Context, update core.HealthUpdate) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id := strings.TrimSpace(update.SubscriptionID)
	if id == "" {
		return core.Subscription{}, fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	at := update.At.UTC()
	if update.At.IsZero() {
		at = time.Now().UTC()
	}

	var result core.Subscription
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := tx.NewUpdate().
			Model((*subscriptionRecord)(nil)).
			Set("updated_at = ?", at).
			Where("id = ?", id)
		if update.Success {
			query = query.
				Set("failure_count = 0").
				Set("last_success_at = ?", at)
		} else {
			query = query.Set("last_failure_at = ?", at)
			if update.FailureCap > 0 {
				query = query.Set(
					"failure_count = CASE WHEN failure_count + 1 > ? THEN ? ELSE failure_count + 1 END",
					update.FailureCap,
					update.FailureCap,
				)
			} else {
				query = query.Set("failure_count = failure_count + 1")
			}
		}
		res, err := query.Exec(ctx)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return fmt.Errorf("%w: id %q", core.ErrSubscriptionNotFound, id)
		}

		record, err := findSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if !update.Success && update.PauseThreshold > 0 &&
			record.FailureCount >= update.PauseThreshold && record.PausedAt == nil {
			reason := fmt.Sprintf("Auto-paused: %d consecutive delivery failures", record.FailureCount)
			if _, err := tx.NewUpdate().
				Model((*subscriptionRecord)(nil)).
				Set("is_active = ?", false).
				Set("paused_at = ?", at).
				Set("paused_reason = ?", reason).
				Where("id = ?", id).
				Where("paused_at IS NULL").
				Exec(ctx); err != nil {
				return err
			}
			record.IsActive = false
			record.PausedAt = timePointer(at)
			record.PausedReason = reason
		}
		result = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Subscription{}, err
	}
	return result, nil
}

// ResumeSubscription reactivates a paused endpoint and clears its failure
// streak.
func (s *SubscriptionStore) ResumeSubscription(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("is_active = ?", true).
		Set("paused_at = NULL").
		Set("paused_reason = ''").
		Set("failure_count = 0").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return core.Subscription{}, fmt.Errorf("%w: id %q", core.ErrSubscriptionNotFound, id)
	}
	return s.GetSubscription(ctx, id)
}

func findSubscription(ctx context.Context, db bun.IDB, id string) (*subscriptionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", core.ErrSubscriptionNotFound)
	}
	record := &subscriptionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %q", core.ErrSubscriptionNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func eventTypeStrings(types []core.EventType) []string {
	out := make([]string, 0, len(types))
	for _, eventType := range types {
		out = append(out, string(eventType))
	}
	return out
}

package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-relay/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type TestDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*testDeliveryRecord]
}

func NewTestDeliveryStore(db *bun.DB) (*TestDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*testDeliveryRecord](db, testDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid test delivery repository wiring: %w", err)
		}
	}
	return &TestDeliveryStore{db: db, repo: repo}, nil
}

func (s *TestDeliveryStore) RecordTestDelivery(ctx context.Context, delivery core.TestDelivery) (core.TestDelivery, error) {
	if s == nil || s.repo == nil {
		return core.TestDelivery{}, fmt.Errorf("sqlstore: test delivery store is not configured")
	}
	if strings.TrimSpace(delivery.SubscriptionID) == "" {
		return core.TestDelivery{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	if parseUUID(delivery.ID) == uuid.Nil {
		delivery.ID = uuid.NewString()
	}
	createdAt := delivery.CreatedAt.UTC()
	if delivery.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	record := &testDeliveryRecord{
		ID:             delivery.ID,
		SubscriptionID: strings.TrimSpace(delivery.SubscriptionID),
		Success:        delivery.Success,
		HTTPStatus:     delivery.HTTPStatus,
		Error:          delivery.Error,
		ResponseBody:   delivery.ResponseBody,
		ResponseTimeMS: delivery.ResponseTimeMS,
		CreatedAt:      createdAt,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.TestDelivery{}, err
	}
	return created.toDomain(), nil
}

// ListTestDeliveries returns the newest test pings for a subscription.
func (s *TestDeliveryStore) ListTestDeliveries(ctx context.Context, subscriptionID string, limit int) ([]core.TestDelivery, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: test delivery store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subscription_id", "=", strings.TrimSpace(subscriptionID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.TestDelivery, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

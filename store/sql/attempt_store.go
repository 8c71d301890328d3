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

var errAttemptVersionConflict = errors.New("sqlstore: delivery attempt version conflict")

// AttemptStore is the delivery ledger. The (event_id, subscription_id) unique
// index makes CreateIfAbsent the idempotency point.
type AttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewAttemptStore(db *bun.DB) (*AttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, deliveryAttemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery attempt repository wiring: %w", err)
		}
	}
	return &AttemptStore{db: db, repo: repo}, nil
}

func (s *AttemptStore) CreateIfAbsent(ctx context.Context, in core.NewDeliveryAttempt) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	eventID := strings.TrimSpace(in.EventID)
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	if eventID == "" || subscriptionID == "" {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: event id and subscription id are required")
	}
	now := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		now = time.Now().UTC()
	}
	record := &deliveryAttemptRecord{
		ID:             uuid.NewString(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		EventType:      string(in.EventType),
		Status:         string(core.DeliveryStatusPending),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (event_id, subscription_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	if affected > 0 {
		return record.toDomain(), true, nil
	}

	existing := &deliveryAttemptRecord{}
	err = s.db.NewSelect().
		Model(existing).
		Where("?TableAlias.event_id = ?", eventID).
		Where("?TableAlias.subscription_id = ?", subscriptionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	return existing.toDomain(), false, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	record, err := findAttempt(ctx, s.db, id)
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	return record.toDomain(), nil
}

func (s *AttemptStore) Claim(ctx context.Context, id string, version int, now time.Time) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusPending)).
		Set("version = version + 1").
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Where("version = ?", version).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusPending),
			string(core.DeliveryStatusFailedRetrying),
		})).
		Where("archived_at IS NULL").
		Exec(ctx)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	if affected == 0 {
		return core.DeliveryAttempt{}, false, nil
	}
	claimed, err := s.GetAttempt(ctx, id)
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	return claimed, true, nil
}

// UpdateAttempt writes the outcome columns guarded by the caller's version
// and returns the row with its version bumped.
func (s *AttemptStore) UpdateAttempt(ctx context.Context, attempt core.DeliveryAttempt) (core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	id := strings.TrimSpace(attempt.ID)
	if id == "" {
		return core.DeliveryAttempt{}, fmt.Errorf("%w: empty id", core.ErrAttemptNotFound)
	}
	if !attempt.Status.Valid() {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: invalid delivery status %q", attempt.Status)
	}
	updatedAt := attempt.UpdatedAt.UTC()
	if attempt.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	res, err := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("status = ?", string(attempt.Status)).
		Set("attempt_count = ?", attempt.AttemptCount).
		Set("next_attempt_at = ?", cloneTimePointer(attempt.NextAttemptAt)).
		Set("last_http_status = ?", attempt.LastHTTPStatus).
		Set("last_error = ?", attempt.LastError).
		Set("response_body = ?", attempt.ResponseBody).
		Set("response_time_ms = ?", attempt.ResponseTimeMS).
		Set("delivered_at = ?", cloneTimePointer(attempt.DeliveredAt)).
		Set("version = version + 1").
		Set("updated_at = ?", updatedAt).
		Where("id = ?", id).
		Where("version = ?", attempt.Version).
		Exec(ctx)
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.DeliveryAttempt{}, err
	}
	if affected == 0 {
		if _, lookupErr := findAttempt(ctx, s.db, id); lookupErr != nil {
			return core.DeliveryAttempt{}, lookupErr
		}
		return core.DeliveryAttempt{}, fmt.Errorf("%w: id %q version %d", errAttemptVersionConflict, id, attempt.Version)
	}
	return s.GetAttempt(ctx, id)
}

func (s *AttemptStore) ListDue(ctx context.Context, query core.DueQuery) ([]core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	now := query.Now.UTC()
	staleBefore := query.StaleBefore.UTC()
	records := make([]*deliveryAttemptRecord, 0)
	q := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.archived_at IS NULL").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.status = ?", string(core.DeliveryStatusFailedRetrying)).
						Where("?TableAlias.next_attempt_at <= ?", now)
				}).
				WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
					return q.
						Where("?TableAlias.status = ?", string(core.DeliveryStatusPending)).
						Where("?TableAlias.updated_at < ?", staleBefore)
				})
		}).
		OrderExpr("COALESCE(?TableAlias.next_attempt_at, ?TableAlias.updated_at) ASC").
		OrderExpr("?TableAlias.created_at ASC")
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, filter.Offset))
	}
	if eventID := strings.TrimSpace(filter.EventID); eventID != "" {
		selectors = append(selectors, repository.SelectBy("event_id", "=", eventID))
	}
	if subscriptionID := strings.TrimSpace(filter.SubscriptionID); subscriptionID != "" {
		selectors = append(selectors, repository.SelectBy("subscription_id", "=", subscriptionID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if !filter.IncludeArchived {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.archived_at IS NULL")
		}))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.DeliveryPage{}, err
	}
	items := make([]core.DeliveryAttempt, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeliveryPage{Items: items, Total: total}, nil
}

func (s *AttemptStore) ArchiveTerminal(ctx context.Context, before time.Time, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("archived_at = ?", now.UTC()).
		Where("archived_at IS NULL").
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusSucceeded),
			string(core.DeliveryStatusFailedExhausted),
		})).
		Where("updated_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *AttemptStore) CountByStatus(ctx context.Context, filter core.StatusCountFilter) (core.StatusCounts, error) {
	if s == nil || s.db == nil {
		return core.StatusCounts{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	rows := make([]statusCountRow, 0, 4)
	q := s.db.NewSelect().
		Model((*deliveryAttemptRecord)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Group("status")
	if subscriptionID := strings.TrimSpace(filter.SubscriptionID); subscriptionID != "" {
		q = q.Where("?TableAlias.subscription_id = ?", subscriptionID)
	}
	if !filter.IncludeArchived {
		q = q.Where("?TableAlias.archived_at IS NULL")
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return core.StatusCounts{}, err
	}
	var counts core.StatusCounts
	for _, row := range rows {
		switch core.DeliveryStatus(row.Status) {
		case core.DeliveryStatusPending:
			counts.Pending = row.Count
		case core.DeliveryStatusSucceeded:
			counts.Succeeded = row.Count
		case core.DeliveryStatusFailedRetrying:
			counts.FailedRetrying = row.Count
		case core.DeliveryStatusFailedExhausted:
			counts.FailedExhausted = row.Count
		}
	}
	return counts, nil
}

func findAttempt(ctx context.Context, db bun.IDB, id string) (*deliveryAttemptRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", core.ErrAttemptNotFound)
	}
	record := &deliveryAttemptRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %q", core.ErrAttemptNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

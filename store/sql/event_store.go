package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-relay/core"
	"github.com/uptrace/bun"
)

// EventStore reads the immutable event log. It never validates event types.
type EventStore struct {
	db *bun.DB
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &EventStore{db: db}, nil
}

func (s *EventStore) GetEvent(ctx context.Context, id string) (core.Event, error) {
	if s == nil || s.db == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Event{}, fmt.Errorf("%w: empty id", core.ErrEventNotFound)
	}
	record := &eventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Event{}, fmt.Errorf("%w: id %q", core.ErrEventNotFound, id)
		}
		return core.Event{}, err
	}
	return record.toDomain(), nil
}

// InsertEvent appends an event. Upstream producers normally own this table;
// the method exists for seeding and for embedders that emit through relay.
func (s *EventStore) InsertEvent(ctx context.Context, event core.Event) (core.Event, error) {
	if s == nil || s.db == nil {
		return core.Event{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return core.Event{}, fmt.Errorf("sqlstore: event id is required")
	}
	if strings.TrimSpace(string(event.Type)) == "" {
		return core.Event{}, fmt.Errorf("sqlstore: event type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	record := newEventRecord(event)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Event{}, fmt.Errorf("sqlstore: event %q already exists: %w", record.ID, err)
		}
		return core.Event{}, err
	}
	return record.toDomain(), nil
}

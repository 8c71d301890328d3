package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	JobIDDeliverEvents = "relay.deliver_events"
	JobIDRetrySweep    = "relay.retry_sweep"
	JobIDArchiveSweep  = "relay.archive_sweep"

	jobParamEventIDs = "event_ids"
)

// EnqueueEvents hands event ids to the configured job queue instead of
// delivering inline. Keys are stable so duplicate enqueues collapse.
func (s *Service) EnqueueEvents(ctx context.Context, eventIDs []string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.jobEnqueuer == nil {
		return fmt.Errorf("core: job enqueuer is required")
	}
	ids := normalizeIDs(eventIDs)
	if len(ids) == 0 {
		return badInput("core: event_ids are required")
	}
	sorted := append([]string(nil), ids...)
	slices.Sort(sorted)
	msg := &JobExecutionMessage{
		JobID:          JobIDDeliverEvents,
		Parameters:     map[string]any{jobParamEventIDs: ids},
		IdempotencyKey: "deliver:" + strings.Join(sorted, ","),
		DedupPolicy:    "drop",
	}
	if err := s.jobEnqueuer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("core: enqueue delivery job: %w", err)
	}
	s.logDebug(ctx, "delivery job enqueued", map[string]any{
		"job_id":      msg.JobID,
		"event_count": len(ids),
	})
	return nil
}

// HandleJob executes one queued relay job.
func (s *Service) HandleJob(ctx context.Context, msg *JobExecutionMessage) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if msg == nil {
		return badInput("core: job message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDDeliverEvents:
		ids, err := jobEventIDs(msg.Parameters)
		if err != nil {
			return err
		}
		_, err = s.DeliverEvents(ctx, ids)
		return err
	case JobIDRetrySweep:
		_, err := s.RetryDue(ctx)
		return err
	case JobIDArchiveSweep:
		_, err := s.ArchiveTerminal(ctx)
		return err
	default:
		return badInput(fmt.Sprintf("core: unsupported job id %q", msg.JobID))
	}
}

func jobEventIDs(params map[string]any) ([]string, error) {
	switch typed := params[jobParamEventIDs].(type) {
	case []string:
		return typed, nil
	case []any:
		out := make([]string, 0, len(typed))
		for _, value := range typed {
			id, ok := value.(string)
			if !ok {
				return nil, badInput(fmt.Sprintf("core: event id %v is not a string", value))
			}
			out = append(out, id)
		}
		return out, nil
	case string:
		return strings.Split(typed, ","), nil
	default:
		return nil, badInput("core: job parameter event_ids is required")
	}
}

// ArchiveTerminal marks terminal jobs older than the retention window as
// archived. Archived rows drop out of due queries and default reports.
func (s *Service) ArchiveTerminal(ctx context.Context) (archived int, err error) {
	startedAt := time.Now()
	defer func() {
		s.observeOperation(ctx, startedAt, "archive_terminal", err, map[string]any{
			"archived": archived,
		})
	}()
	if s == nil {
		return 0, fmt.Errorf("core: service is nil")
	}
	window := s.config.Retention.ArchiveAfter()
	if window <= 0 {
		return 0, nil
	}
	now := s.now()
	archived, err = s.attemptStore.ArchiveTerminal(ctx, now.Add(-window), now)
	if err != nil {
		return 0, storeFailure(err, "core: archive terminal deliveries failed")
	}
	return archived, nil
}

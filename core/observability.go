package core

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// observeOperation emits one counter, one duration sample and one log line
// per service operation. mode and subscription_id fields become metric tags.
func (s *Service) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	operation = cmp.Or(normalizeOperation(operation), "unknown")
	elapsed := time.Since(startedAt)
	status, level := "success", levelInfo
	if err != nil {
		status, level = "failure", levelError
	}

	tags := map[string]string{"operation": operation, "status": status}
	for _, key := range []string{"mode", "subscription_id"} {
		if value, ok := fields[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	totalName, durationName := OperationMetricNames(operation)
	s.recordCounter(ctx, totalName, 1, tags)
	s.recordHistogram(ctx, durationName, float64(elapsed.Milliseconds()), tags)

	logged := cloneFields(fields)
	logged["operation"] = operation
	logged["status"] = status
	logged["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logged["error"] = err.Error()
		s.log(ctx, level, operation+" failed", logged)
		return
	}
	s.log(ctx, level, operation+" succeeded", logged)
}

// observeAttempt records one outbound request outcome.
func (s *Service) observeAttempt(ctx context.Context, attempt DeliveryAttempt, result AttemptResult) {
	if s == nil {
		return
	}
	tags := map[string]string{"status": string(attempt.Status)}
	s.recordCounter(ctx, MetricAttemptTotal, 1, tags)
	s.recordHistogram(ctx, MetricAttemptDuration, float64(result.ResponseTime.Milliseconds()), tags)
	if result.Success {
		s.logDebug(ctx, "delivery attempt succeeded", map[string]any{
			"delivery_id":     attempt.ID,
			"event_id":        attempt.EventID,
			"subscription_id": attempt.SubscriptionID,
			"http_status":     result.HTTPStatus,
		})
		return
	}
	s.logWarn(ctx, "delivery attempt failed", map[string]any{
		"delivery_id":     attempt.ID,
		"event_id":        attempt.EventID,
		"subscription_id": attempt.SubscriptionID,
		"attempt_count":   attempt.AttemptCount,
		"status":          string(attempt.Status),
		"http_status":     result.HTTPStatus,
		"error":           result.Error,
	})
}

type logLevel uint8

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func (s *Service) logDebug(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelDebug, message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.log(ctx, levelWarn, message, fields)
}

// log redacts fields, attaches them to FieldsLogger implementations and
// also passes them as sorted key/value args.
func (s *Service) log(ctx context.Context, level logLevel, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case levelDebug:
		logger.Debug(message, args...)
	case levelWarn:
		logger.Warn(message, args...)
	case levelError:
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(fields))
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

var operationReplacer = strings.NewReplacer(" ", "_", "-", "_")

func normalizeOperation(operation string) string {
	return operationReplacer.Replace(strings.ToLower(strings.TrimSpace(operation)))
}

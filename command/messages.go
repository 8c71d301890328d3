package command

import (
	"strings"

	"github.com/goliatone/go-relay/core"
)

const (
	TypeDeliverEvents   = "relay.command.deliver_events"
	TypeRetryDue        = "relay.command.retry_due"
	TypeSendTest        = "relay.command.send_test"
	TypeInvoke          = "relay.command.invoke"
	TypeEnqueueEvents   = "relay.command.enqueue_events"
	TypeArchiveTerminal = "relay.command.archive_terminal"
)

type DeliverEventsMessage struct {
	EventIDs []string
}

func (DeliverEventsMessage) Type() string { return TypeDeliverEvents }

func (m DeliverEventsMessage) Validate() error {
	return validateEventIDs(m.EventIDs)
}

type RetryDueMessage struct{}

func (RetryDueMessage) Type() string { return TypeRetryDue }

func (RetryDueMessage) Validate() error { return nil }

type SendTestMessage struct {
	SubscriptionID string
}

func (SendTestMessage) Type() string { return TypeSendTest }

func (m SendTestMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return commandValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

// InvokeMessage carries a raw invocation body; the mode decides which of
// the other fields are read.
type InvokeMessage struct {
	Request core.InvocationRequest
}

func (InvokeMessage) Type() string { return TypeInvoke }

func (m InvokeMessage) Validate() error {
	switch core.Mode(strings.ToLower(strings.TrimSpace(string(m.Request.Mode)))) {
	case core.ModeEvent:
		return validateEventIDs(m.Request.EventIDs)
	case core.ModeRetry:
		return nil
	case core.ModeTest:
		if strings.TrimSpace(m.Request.SubscriptionID) == "" {
			return commandValidationError("subscription_id", "subscription id is required in test mode")
		}
		return nil
	default:
		return commandValidationError("mode", "mode must be one of event, retry, test")
	}
}

type EnqueueEventsMessage struct {
	EventIDs []string
}

func (EnqueueEventsMessage) Type() string { return TypeEnqueueEvents }

func (m EnqueueEventsMessage) Validate() error {
	return validateEventIDs(m.EventIDs)
}

type ArchiveTerminalMessage struct{}

func (ArchiveTerminalMessage) Type() string { return TypeArchiveTerminal }

func (ArchiveTerminalMessage) Validate() error { return nil }

func validateEventIDs(ids []string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			return nil
		}
	}
	return commandValidationError("event_ids", "at least one event id is required")
}

package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-relay/core"
)

type DeliveryService interface {
	DeliverEvents(ctx context.Context, eventIDs []string) (core.DeliverySummary, error)
	RetryDue(ctx context.Context) (core.DeliverySummary, error)
	SendTest(ctx context.Context, subscriptionID string) (core.TestDeliveryResult, error)
	Invoke(ctx context.Context, req core.InvocationRequest) (core.InvocationResponse, error)
}

type JobService interface {
	EnqueueEvents(ctx context.Context, eventIDs []string) error
	ArchiveTerminal(ctx context.Context) (int, error)
}

type DeliverEventsCommand struct {
	service DeliveryService
}

func NewDeliverEventsCommand(service DeliveryService) *DeliverEventsCommand {
	return &DeliverEventsCommand{service: service}
}

func (c *DeliverEventsCommand) Execute(ctx context.Context, msg DeliverEventsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.DeliverEvents(ctx, msg.EventIDs)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDueCommand struct {
	service DeliveryService
}

func NewRetryDueCommand(service DeliveryService) *RetryDueCommand {
	return &RetryDueCommand{service: service}
}

func (c *RetryDueCommand) Execute(ctx context.Context, _ RetryDueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry service is required")
	}
	out, err := c.service.RetryDue(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendTestCommand struct {
	service DeliveryService
}

func NewSendTestCommand(service DeliveryService) *SendTestCommand {
	return &SendTestCommand{service: service}
}

func (c *SendTestCommand) Execute(ctx context.Context, msg SendTestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: test delivery service is required")
	}
	out, err := c.service.SendTest(ctx, msg.SubscriptionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type InvokeCommand struct {
	service DeliveryService
}

func NewInvokeCommand(service DeliveryService) *InvokeCommand {
	return &InvokeCommand{service: service}
}

func (c *InvokeCommand) Execute(ctx context.Context, msg InvokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: invoke service is required")
	}
	out, err := c.service.Invoke(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type EnqueueEventsCommand struct {
	service JobService
}

func NewEnqueueEventsCommand(service JobService) *EnqueueEventsCommand {
	return &EnqueueEventsCommand{service: service}
}

func (c *EnqueueEventsCommand) Execute(ctx context.Context, msg EnqueueEventsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	return c.service.EnqueueEvents(ctx, msg.EventIDs)
}

type ArchiveTerminalCommand struct {
	service JobService
}

func NewArchiveTerminalCommand(service JobService) *ArchiveTerminalCommand {
	return &ArchiveTerminalCommand{service: service}
}

func (c *ArchiveTerminalCommand) Execute(ctx context.Context, _ ArchiveTerminalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: job service is required")
	}
	archived, err := c.service.ArchiveTerminal(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, archived)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

package relay

import (
	"fmt"

	relaycommand "github.com/goliatone/go-relay/command"
	relayquery "github.com/goliatone/go-relay/query"
)

type CommandQueryService interface {
	relaycommand.DeliveryService
	relaycommand.JobService
	relayquery.DeliveryReader
}

type Commands struct {
	DeliverEvents   *relaycommand.DeliverEventsCommand
	RetryDue        *relaycommand.RetryDueCommand
	SendTest        *relaycommand.SendTestCommand
	Invoke          *relaycommand.InvokeCommand
	EnqueueEvents   *relaycommand.EnqueueEventsCommand
	ArchiveTerminal *relaycommand.ArchiveTerminalCommand
}

type Queries struct {
	ListDeliveries     *relayquery.ListDeliveriesQuery
	GetDelivery        *relayquery.GetDeliveryQuery
	DeliveriesForEvent *relayquery.DeliveriesForEventQuery
	DeadLetters        *relayquery.DeadLettersQuery
	StatusCounts       *relayquery.StatusCountsQuery
	SubscriptionHealth *relayquery.SubscriptionHealthQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	healthReader relayquery.SubscriptionHealthReader
}

// WithHealthReader overrides where subscription health is read from. By
// default the service itself is used when it implements the reader.
func WithHealthReader(reader relayquery.SubscriptionHealthReader) FacadeOption {
	return func(options *facadeOptions) {
		options.healthReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("relay: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.healthReader
	if reader == nil {
		if candidate, ok := service.(relayquery.SubscriptionHealthReader); ok {
			reader = candidate
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		DeliverEvents:   relaycommand.NewDeliverEventsCommand(service),
		RetryDue:        relaycommand.NewRetryDueCommand(service),
		SendTest:        relaycommand.NewSendTestCommand(service),
		Invoke:          relaycommand.NewInvokeCommand(service),
		EnqueueEvents:   relaycommand.NewEnqueueEventsCommand(service),
		ArchiveTerminal: relaycommand.NewArchiveTerminalCommand(service),
	}
	facade.queries = Queries{
		ListDeliveries:     relayquery.NewListDeliveriesQuery(service),
		GetDelivery:        relayquery.NewGetDeliveryQuery(service),
		DeliveriesForEvent: relayquery.NewDeliveriesForEventQuery(service),
		DeadLetters:        relayquery.NewDeadLettersQuery(service),
		StatusCounts:       relayquery.NewStatusCountsQuery(service),
		SubscriptionHealth: relayquery.NewSubscriptionHealthQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var (
	_ CommandQueryService                 = (*Service)(nil)
	_ relayquery.SubscriptionHealthReader = (*Service)(nil)
)

package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DeliverEventsMessage]   = (*DeliverEventsCommand)(nil)
	_ gocmd.Commander[RetryDueMessage]        = (*RetryDueCommand)(nil)
	_ gocmd.Commander[SendTestMessage]        = (*SendTestCommand)(nil)
	_ gocmd.Commander[InvokeMessage]          = (*InvokeCommand)(nil)
	_ gocmd.Commander[EnqueueEventsMessage]   = (*EnqueueEventsCommand)(nil)
	_ gocmd.Commander[ArchiveTerminalMessage] = (*ArchiveTerminalCommand)(nil)
)

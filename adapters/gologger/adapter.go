package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-relay/adapters/gojob"
	"github.com/goliatone/go-relay/core"
)

const (
	ServiceLoggerName = "relay"
	JobLoggerName     = "relay.jobs"
)

// Resolve picks provider > logger > nop. An empty name resolves the service
// logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = ServiceLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// ServiceOptions resolves the relay service logger once and returns the
// matching core options.
func ServiceOptions(provider glog.LoggerProvider, logger glog.Logger) []core.Option {
	resolvedProvider, resolvedLogger := Resolve(ServiceLoggerName, provider, logger)
	return []core.Option{
		core.WithLoggerProvider(resolvedProvider),
		core.WithLogger(glog.Ensure(resolvedLogger)),
	}
}

// JobHook returns a worker hook that logs relay job lifecycle events on the
// jobs logger.
func JobHook(provider glog.LoggerProvider, logger glog.Logger) *gojob.LoggingHook {
	_, resolved := Resolve(JobLoggerName, provider, logger)
	return gojob.NewLoggingHook(resolved)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logging, then wraps it for go-job workers.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

package core

import (
	"net/http"

	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/time/rate"
)

var (
	_ HTTPDoer        = (*http.Client)(nil)
	_ OutboundLimiter = (*rate.Limiter)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

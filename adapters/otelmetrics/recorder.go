// Package otelmetrics exports relay counters and histograms through an
// OpenTelemetry meter.
package otelmetrics

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-relay/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const ScopeName = "github.com/goliatone/go-relay"

type ErrorHandler func(name string, err error)

type Recorder struct {
	meter      metric.Meter
	onError    ErrorHandler
	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

type Option func(*Recorder)

func WithErrorHandler(handler ErrorHandler) Option {
	return func(r *Recorder) {
		r.onError = handler
	}
}

// NewRecorder builds a recorder on the given provider. A nil provider falls
// back to the global one.
func NewRecorder(provider metric.MeterProvider, opts ...Option) *Recorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	recorder := &Recorder{
		meter:      provider.Meter(ScopeName),
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder
}

func (r *Recorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	counter, ok := r.counter(name)
	if !ok {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	histogram, ok := r.histogram(name)
	if !ok {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) counter(name string) (metric.Int64Counter, bool) {
	name = strings.TrimSpace(name)
	if r == nil || name == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, true
	}
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		r.report(name, err)
		return nil, false
	}
	r.counters[name] = counter
	return counter, true
}

func (r *Recorder) histogram(name string) (metric.Float64Histogram, bool) {
	name = strings.TrimSpace(name)
	if r == nil || name == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, true
	}
	var opts []metric.Float64HistogramOption
	if strings.HasSuffix(name, "_ms") {
		opts = append(opts, metric.WithUnit("ms"))
	}
	histogram, err := r.meter.Float64Histogram(name, opts...)
	if err != nil {
		r.report(name, err)
		return nil, false
	}
	r.histograms[name] = histogram
	return histogram, true
}

func (r *Recorder) report(name string, err error) {
	if r.onError != nil {
		r.onError(name, err)
		return
	}
	otel.Handle(err)
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, tags[key]))
	}
	return attrs
}

var _ core.MetricsRecorder = (*Recorder)(nil)

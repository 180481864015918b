package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameCacheLookups   = "asn.cache.lookups"
	metricNameProviderCalls  = "asn.provider.calls"
	metricNameProviderErrors = "asn.provider.errors"
	metricNameProviderTime   = "asn.provider.duration"
	metricNameMatches        = "asn.matcher.matches"
)

// Metrics records service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups   metric.Int64Counter
	providerCalls  metric.Int64Counter
	providerErrors metric.Int64Counter
	providerTime   metric.Float64Histogram
	matches        metric.Int64Counter
}

func New(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}
	meter := meterProvider.Meter("github.com/ak7sky/asn-service")

	cacheLookups, err := meter.Int64Counter(metricNameCacheLookups,
		metric.WithDescription("ASN cache lookups by kind and outcome"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter(metricNameProviderCalls,
		metric.WithDescription("Calls to the ASN data provider"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	providerErrors, err := meter.Int64Counter(metricNameProviderErrors,
		metric.WithDescription("Failed calls to the ASN data provider"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	providerTime, err := meter.Float64Histogram(metricNameProviderTime,
		metric.WithDescription("ASN data provider call duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15))
	if err != nil {
		return nil, err
	}
	matches, err := meter.Int64Counter(metricNameMatches,
		metric.WithDescription("Addresses checked against a compiled matcher"),
		metric.WithUnit("{address}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		cacheLookups:   cacheLookups,
		providerCalls:  providerCalls,
		providerErrors: providerErrors,
		providerTime:   providerTime,
		matches:        matches,
	}, nil
}

func (m *Metrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("hit", hit),
	))
}

func (m *Metrics) RecordProviderCall(ctx context.Context, provider, op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerTime.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.providerErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordMatches(ctx context.Context, results int, matched int) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.matches.Add(ctx, int64(matched), metric.WithAttributes(attribute.Bool("matched", true)))
	m.matches.Add(ctx, int64(results-matched), metric.WithAttributes(attribute.Bool("matched", false)))
}

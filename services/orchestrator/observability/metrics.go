// Copyright (C) 2025 Pizza Alchemy (engineering@pizzaalchemy.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "alchemychat"

// ChatMetrics tracks request, streaming and retrieval behavior.
//
// Metrics:
//   - RequestsTotal: completed chat requests by endpoint and status
//   - RetrievalTotal: context retrieval outcomes by source
//   - TimeToFirstTokenSeconds: latency from request to first token
//   - StreamDurationSeconds: full stream duration by endpoint and status
//   - ActiveStreams: currently open SSE streams
//   - ErrorsTotal: errors by endpoint and code
//   - KeepAlivesTotal: SSE keepalive pings sent
//   - SummaryCompressionsTotal: raw-to-summary history transitions
type ChatMetrics struct {
	RequestsTotal            *prometheus.CounterVec
	RetrievalTotal           *prometheus.CounterVec
	TimeToFirstTokenSeconds  *prometheus.HistogramVec
	StreamDurationSeconds    *prometheus.HistogramVec
	ActiveStreams            *prometheus.GaugeVec
	ErrorsTotal              *prometheus.CounterVec
	KeepAlivesTotal          *prometheus.CounterVec
	SummaryCompressionsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *ChatMetrics

// InitMetrics registers all metrics with the default registry. Call once
// from main before serving.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chat_requests_total",
				Help:      "Total chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RetrievalTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retrieval_total",
				Help:      "Context retrieval outcomes by source (semantic, keyword, none)",
			},
			[]string{"source"},
		),
		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "time_to_first_token_seconds",
				Help:      "Latency from request receipt to first streamed token",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration by endpoint and status",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "status"},
		),
		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_streams",
				Help:      "Number of currently open SSE streams",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and code",
			},
			[]string{"endpoint", "code"},
		),
		KeepAlivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "keepalives_total",
				Help:      "Total SSE keepalive pings sent",
			},
			[]string{"endpoint"},
		),
		SummaryCompressionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "summary_compressions_total",
				Help:      "Raw-to-summary history transitions",
			},
		),
	}
	return DefaultMetrics
}

// ErrorCode is a categorized error type for metrics labels.
type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation"
	ErrorCodeBackend    ErrorCode = "backend"
	ErrorCodeStreamInit ErrorCode = "stream_init"
	ErrorCodeWrite      ErrorCode = "write"
)

// Endpoint identifies which HTTP surface produced a metric.
type Endpoint string

const (
	EndpointChat       Endpoint = "chat"
	EndpointChatStream Endpoint = "chat_stream"
	EndpointIngest     Endpoint = "ingest"
)

// RetrievalSource identifies which path produced a context block.
type RetrievalSource string

const (
	RetrievalSemantic RetrievalSource = "semantic"
	RetrievalKeyword  RetrievalSource = "keyword"
	RetrievalNone     RetrievalSource = "none"
)

func (m *ChatMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

func (m *ChatMetrics) RecordRetrieval(source RetrievalSource) {
	m.RetrievalTotal.WithLabelValues(string(source)).Inc()
}

func (m *ChatMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

func (m *ChatMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

func (m *ChatMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

func (m *ChatMetrics) RecordTimeToFirstToken(endpoint Endpoint, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

func (m *ChatMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

func (m *ChatMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

func (m *ChatMetrics) RecordSummaryCompression() {
	m.SummaryCompressionsTotal.Inc()
}

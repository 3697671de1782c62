// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Mara Janssens, Fabwerk

package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics is the prometheus instrumentation for one bridge process.
type Metrics struct {
	FramesTotal     prometheus.Counter
	BytesDropped    prometheus.Counter
	Resolved        prometheus.Counter
	SpontaneousMsgs prometheus.Counter
	Orphans         prometheus.Counter
	Malformed       prometheus.Counter
	Timeouts        prometheus.Counter
	Duplicates      prometheus.Counter
	Published       prometheus.Counter
	PublishErrors   prometheus.Counter
	Reconnects      prometheus.Counter
	Pending         prometheus.Gauge
	ResponseLatency prometheus.Histogram
}

// NewMetrics creates and registers the bridge metric set on the default
// registerer.
func NewMetrics() *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_frames_total",
			Help: "Complete frames extracted from the serial stream.",
		}),
		BytesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_dropped_bytes_total",
			Help: "Stream bytes discarded during frame resynchronization.",
		}),
		Resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_responses_resolved_total",
			Help: "Query responses matched to their pending request.",
		}),
		SpontaneousMsgs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_spontaneous_total",
			Help: "Unsolicited machine messages passed through.",
		}),
		Orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_orphan_responses_total",
			Help: "Query responses with no live pending request.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_malformed_frames_total",
			Help: "Frames whose code token could not be trusted.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_request_timeouts_total",
			Help: "Pending requests expired without an answer.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_duplicate_requests_total",
			Help: "Queries skipped because the code was already pending.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_published_total",
			Help: "Messages accepted by the broker.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_publish_errors_total",
			Help: "Messages the broker did not accept.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qbridge_transport_reconnects_total",
			Help: "Successful serial transport reconnections.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qbridge_pending_requests",
			Help: "Requests currently awaiting a response.",
		}),
		ResponseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "qbridge_response_latency_seconds",
			Help:    "Latency from query write to matched response.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	prometheus.MustRegister(
		m.FramesTotal,
		m.BytesDropped,
		m.Resolved,
		m.SpontaneousMsgs,
		m.Orphans,
		m.Malformed,
		m.Timeouts,
		m.Duplicates,
		m.Published,
		m.PublishErrors,
		m.Reconnects,
		m.Pending,
		m.ResponseLatency,
	)

	return m
}

// ServeMetrics exposes /metrics on addr until ctx is canceled.
func ServeMetrics(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listener starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
	}
}

// Package metrics exposes ProxyD's Prometheus collectors: record counts,
// sync outcomes, and lookup traffic/latency.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Registry is the collector registry every ProxyD metric is registered
// against, kept separate from prometheus.DefaultRegisterer so tests can
// build a fresh one per case.
var Registry = prometheus.NewRegistry()

var (
	RecordCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "proxyd_record_count",
		Help: "Total number of IP records in the store",
	})

	LastSyncTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "proxyd_last_sync_timestamp",
		Help: "Unix timestamp of the last successful sync",
	})

	SyncSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proxyd_sync_success_total",
		Help: "Total number of successful syncs",
	})

	SyncFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proxyd_sync_failures_total",
		Help: "Total number of failed syncs",
	})

	LookupRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proxyd_lookup_requests_total",
		Help: "Total number of lookup requests",
	})

	LookupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "proxyd_lookup_hits_total",
		Help: "Total number of lookup requests that matched a record",
	})

	LookupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "proxyd_lookup_latency_seconds",
		Help:    "Lookup latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})

	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "proxyd_sync_duration_seconds",
		Help:    "Duration of a sync cycle in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

// Register adds every collector to Registry. It is idempotent: a
// double-registration is silently ignored rather than treated as fatal,
// since it only happens under test re-initialization.
func Register() {
	for name, c := range map[string]prometheus.Collector{
		"record_count":        RecordCount,
		"last_sync_timestamp": LastSyncTimestamp,
		"sync_success":        SyncSuccess,
		"sync_failures":       SyncFailures,
		"lookup_requests":     LookupRequests,
		"lookup_hits":         LookupHits,
		"lookup_latency":      LookupLatency,
		"sync_duration":       SyncDuration,
	} {
		if err := Registry.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic("metrics: failed to register " + name + ": " + err.Error())
			}
		}
	}
}

// Gather renders every registered metric in Prometheus text exposition
// format, the payload served at /metrics.
func Gather() (string, error) {
	families, err := Registry.Gather()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	encoder := expfmt.NewEncoder(&sb, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// Handler returns the http.Handler serving Registry in Prometheus
// exposition format, for a caller to mount at /metrics; cmd/proxyd does not
// mount it.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

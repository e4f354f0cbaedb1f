// Package metrics collects and exposes Prometheus metrics for the HTTP
// surface, the credential verifier, and the remote todo API adapter.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the collection interface consumed by the todo façade and
// the auth path.
type Recorder interface {
	RecordAuthFailure(reason string)
	RecordUpstreamLatency(duration time.Duration)
	RecordUpstreamError()
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheRollback()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	httpRequests    *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	upstreamErrors  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheRollbacks  prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoapp_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoapp_auth_failures_total",
			Help: "Failed sign-in attempts by failure kind",
		}, []string{"reason"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoapp_upstream_latency_seconds",
			Help:    "Latency of calls to the remote todo API",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoapp_upstream_errors_total",
			Help: "Failed calls to the remote todo API",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoapp_todo_cache_hits_total",
			Help: "Todo page cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoapp_todo_cache_misses_total",
			Help: "Todo page cache misses",
		}),
		cacheRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoapp_todo_cache_rollbacks_total",
			Help: "Optimistic cache mutations rolled back after upstream failure",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.authFailures,
		c.upstreamLatency,
		c.upstreamErrors,
		c.cacheHits,
		c.cacheMisses,
		c.cacheRollbacks,
	)

	return c
}

func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordUpstreamError() {
	c.upstreamErrors.Inc()
}

func (c *Collector) RecordCacheHit() {
	c.cacheHits.Inc()
}

func (c *Collector) RecordCacheMiss() {
	c.cacheMisses.Inc()
}

func (c *Collector) RecordCacheRollback() {
	c.cacheRollbacks.Inc()
}

// Middleware counts every request by method and response status.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(wrapped.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(statusCode int) {
	if sw.wroteHeader {
		return
	}
	sw.status = statusCode
	sw.wroteHeader = true
	sw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack hands the connection to protocol upgrades (websocket) passing
// through this wrapper.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", sw.ResponseWriter)
	}
	return hj.Hijack()
}

// Handler returns the /metrics scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

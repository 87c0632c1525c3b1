// Package metrics exposes Prometheus instrumentation for the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the per-subsystem metric collectors.
type Metrics struct {
	Cache *CacheMetrics
	HTTP  *HTTPMetrics
	Push  *PushMetrics
}

// NewMetrics creates and registers all collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cache: newCacheMetrics(),
		HTTP:  newHTTPMetrics(),
		Push:  newPushMetrics(),
	}
	reg.MustRegister(
		m.Cache.hits, m.Cache.misses, m.Cache.evictions, m.Cache.stores,
		m.HTTP.sseConnections, m.HTTP.sseMessages,
		m.Push.deliveries, m.Push.actionDispatches,
	)
	return m
}

// CacheMetrics tracks response cache behavior per cache name.
type CacheMetrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	stores    *prometheus.CounterVec
}

func newCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_cache_hits_total",
			Help: "Cache lookups served from a stored entry.",
		}, []string{"cache"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_cache_misses_total",
			Help: "Cache lookups with no usable stored entry.",
		}, []string{"cache"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_cache_evictions_total",
			Help: "Entries removed by expiry or maintenance.",
		}, []string{"cache"}),
		stores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_cache_stores_total",
			Help: "Entries written to the cache.",
		}, []string{"cache"}),
	}
}

func (c *CacheMetrics) RecordHit(cache string)      { c.hits.WithLabelValues(cache).Inc() }
func (c *CacheMetrics) RecordMiss(cache string)     { c.misses.WithLabelValues(cache).Inc() }
func (c *CacheMetrics) RecordEviction(cache string) { c.evictions.WithLabelValues(cache).Inc() }
func (c *CacheMetrics) RecordStore(cache string)    { c.stores.WithLabelValues(cache).Inc() }

// HTTPMetrics tracks streaming connections to clients.
type HTTPMetrics struct {
	sseConnections *prometheus.GaugeVec
	sseMessages    *prometheus.CounterVec
}

func newHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		sseConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tempo_sse_connections",
			Help: "Currently open SSE connections.",
		}, []string{"endpoint"}),
		sseMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_sse_messages_total",
			Help: "SSE messages sent, by endpoint and event type.",
		}, []string{"endpoint", "event"}),
	}
}

func (h *HTTPMetrics) SSEConnectionStarted(endpoint string) {
	h.sseConnections.WithLabelValues(endpoint).Inc()
}

func (h *HTTPMetrics) SSEConnectionClosed(endpoint string) {
	h.sseConnections.WithLabelValues(endpoint).Dec()
}

func (h *HTTPMetrics) RecordSSEMessageSent(endpoint, event string) {
	h.sseMessages.WithLabelValues(endpoint, event).Inc()
}

// PushMetrics tracks push ingest and click-action dispatch.
type PushMetrics struct {
	deliveries       *prometheus.CounterVec
	actionDispatches *prometheus.CounterVec
}

func newPushMetrics() *PushMetrics {
	return &PushMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_push_deliveries_total",
			Help: "Push payloads rendered into notifications, by priority.",
		}, []string{"priority"}),
		actionDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempo_push_action_dispatches_total",
			Help: "Notification click actions dispatched, by action and result.",
		}, []string{"action", "result"}),
	}
}

func (p *PushMetrics) RecordDelivery(priority string) {
	p.deliveries.WithLabelValues(priority).Inc()
}

func (p *PushMetrics) RecordActionDispatch(action, result string) {
	p.actionDispatches.WithLabelValues(action, result).Inc()
}

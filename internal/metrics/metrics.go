// Package metrics exposes the service's Prometheus counters. Tier 2 and
// tier 3 resolution are best-effort, so their hit rates are tracked here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	shardLoads   *prometheus.CounterVec
	resolveTiers *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
}

// New registers the counters on reg. A nil *Metrics is valid and records nothing.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		shardLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_shard_loads_total",
			Help: "Shard loads by where the records came from (cache, network, error).",
		}, []string{"source"}),
		resolveTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_resolve_tier_total",
			Help: "Property resolution attempts per tier and outcome.",
		}, []string{"tier", "outcome"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_cache_errors_total",
			Help: "Shard cache operations that failed and fell back to the network.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.shardLoads, m.resolveTiers, m.cacheErrors)
	return m
}

func (m *Metrics) ShardLoad(source string) {
	if m == nil {
		return
	}
	m.shardLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) ResolveTier(tier, outcome string) {
	if m == nil {
		return
	}
	m.resolveTiers.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) CacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(op).Inc()
}

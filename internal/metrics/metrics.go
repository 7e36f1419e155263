package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache and provider Prometheus metrics.
var (
	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resume_refiner",
			Name:      "cache_operations_total",
			Help:      "Cache lookups by result",
		},
		[]string{"result"}, // "hit" / "miss" / "expired"
	)

	CacheInvalidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "resume_refiner",
			Name:      "cache_invalidations_total",
			Help:      "Cache entries deleted by explicit invalidation",
		},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resume_refiner",
			Name:      "provider_tokens_total",
			Help:      "Tokens reported by the AI provider",
		},
		[]string{"provider", "model", "type"}, // type: "prompt" / "completion"
	)
)

// Register adds all collectors to the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CacheOperationsTotal,
		CacheInvalidationsTotal,
		ProviderTokensTotal,
	)
}

// Counters holds the process-lifetime cache tallies. It is owned explicitly
// by whoever constructs the cache store rather than living as package state,
// so tests can assert on exact values. Prometheus counters are incremented
// alongside.
type Counters struct {
	hits               atomic.Int64
	misses             atomic.Int64
	expired            atomic.Int64
	invalidationDelete atomic.Int64
}

func (c *Counters) Hit() {
	c.hits.Add(1)
	CacheOperationsTotal.WithLabelValues("hit").Inc()
}

func (c *Counters) Miss() {
	c.misses.Add(1)
	CacheOperationsTotal.WithLabelValues("miss").Inc()
}

func (c *Counters) Expired() {
	c.expired.Add(1)
	CacheOperationsTotal.WithLabelValues("expired").Inc()
}

func (c *Counters) InvalidationDeleted(count int64) {
	if count <= 0 {
		return
	}
	c.invalidationDelete.Add(count)
	CacheInvalidationsTotal.Add(float64(count))
}

func (c *Counters) Hits() int64                { return c.hits.Load() }
func (c *Counters) Misses() int64              { return c.misses.Load() }
func (c *Counters) ExpiredCount() int64        { return c.expired.Load() }
func (c *Counters) InvalidationDeletes() int64 { return c.invalidationDelete.Load() }

// Snapshot returns the current counter values keyed by metric name.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"cache_hits":                 c.hits.Load(),
		"cache_misses":               c.misses.Load(),
		"cache_expired":              c.expired.Load(),
		"invalidation_deleted_total": c.invalidationDelete.Load(),
	}
}

// RecordTokenUsage reports provider token consumption.
func RecordTokenUsage(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

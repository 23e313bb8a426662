package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/permitgate/pkg/config"
)

// maxPolicyLabels caps distinct policy label values; matches beyond it are
// counted under "other".
const maxPolicyLabels = 5000

// Collector owns every PermitGate metric. It satisfies the engine's
// MetricsRecorder and the rule store's reload recorder.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	policyMatches      *prometheus.CounterVec
	mergeConflicts     *prometheus.CounterVec
	bundleReloads      *prometheus.CounterVec
	policiesLoaded     prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec

	policyLimiter *CardinalityLimiter
}

// NewCollector creates and registers the metrics. A nil registry gets a
// fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace

	c := &Collector{
		config:   cfg,
		registry: registry,

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "evaluations_total",
				Help:      "Total number of category evaluations by outcome",
			},
			[]string{"category", "outcome"},
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of a category evaluation in seconds",
				// evaluations are in-memory: 1µs to ~16ms
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15),
			},
			[]string{"category"},
		),

		policyMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "policy_matches_total",
				Help:      "Number of times a policy matched a fact",
			},
			[]string{"category", "policy"},
		),

		mergeConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "merge_conflicts_total",
				Help:      "Fields whose matched policies declared differing merge strategies",
			},
			[]string{"category", "field"},
		),

		bundleReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "bundle_reloads_total",
				Help:      "Rule bundle reload attempts by status",
			},
			[]string{"status"},
		),

		policiesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "policies_loaded",
				Help:      "Policies in the active rule snapshot",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		policyLimiter: NewCardinalityLimiter(maxPolicyLabels),
	}

	registry.MustRegister(
		c.evaluationsTotal,
		c.evaluationDuration,
		c.policyMatches,
		c.mergeConflicts,
		c.bundleReloads,
		c.policiesLoaded,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordEvaluation records one category evaluation.
func (c *Collector) RecordEvaluation(category, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.evaluationsTotal.WithLabelValues(category, outcome).Inc()
	c.evaluationDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordPolicyMatch records a matched policy.
func (c *Collector) RecordPolicyMatch(category, policyID string) {
	if !c.config.Enabled {
		return
	}
	if !c.policyLimiter.Allow(category + "/" + policyID) {
		policyID = "other"
	}
	c.policyMatches.WithLabelValues(category, policyID).Inc()
}

// RecordMergeConflict records a field whose strategy was contested.
func (c *Collector) RecordMergeConflict(category, field string) {
	if !c.config.Enabled {
		return
	}
	c.mergeConflicts.WithLabelValues(category, field).Inc()
}

// RecordReload records a bundle reload. On success the policies gauge is
// set to the new snapshot's size.
func (c *Collector) RecordReload(success bool, policies int) {
	if !c.config.Enabled {
		return
	}
	if !success {
		c.bundleReloads.WithLabelValues("failure").Inc()
		return
	}
	c.bundleReloads.WithLabelValues("success").Inc()
	c.policiesLoaded.Set(float64(policies))
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(route string, code int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.httpRequests.WithLabelValues(route, statusLabel(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// CardinalityLimiter bounds the number of distinct label sets a metric may
// create.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is known or still fits under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (validation, upstream or internal).
	OutcomeError = "error"
	// OutcomeNotFound labels lookups that matched nothing.
	OutcomeNotFound = "not_found"
	// OutcomeSkipped labels fan-out entities excluded before any remote call.
	OutcomeSkipped = "skipped"

	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheCoalesced = "coalesced"
)

const namespace = "volcano_risk"

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "TTL cache lookups partitioned by endpoint kind and result.",
		},
		[]string{"kind", "result"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to the remote backend partitioned by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Remote backend request latency in seconds, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"endpoint"},
	)

	fanoutInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fanout_inflight",
			Help:      "Indicator fetches currently in flight across all fan-out batches.",
		},
	)

	fanoutEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_entities_total",
			Help:      "Entities processed by the map fan-out partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	viewRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_requests_total",
			Help:      "Search, entity and map views served, partitioned by view and outcome.",
		},
		[]string{"view", "outcome"},
	)

	viewDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_seconds",
			Help:      "View assembly latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"view"},
	)

	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Scheduled refresh cycles partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches volcano-risk collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cacheRequestsTotal,
		upstreamRequestsTotal,
		upstreamDurationSeconds,
		fanoutInflight,
		fanoutEntitiesTotal,
		viewRequestsTotal,
		viewDurationSeconds,
		refreshCyclesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCacheLookup counts one cache lookup result for kind.
func ObserveCacheLookup(kind, result string) {
	cacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveUpstream records one logical backend request, retries included.
func ObserveUpstream(endpoint string, duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	upstreamDurationSeconds.WithLabelValues(endpoint).Observe(clamp(duration).Seconds())
}

// FanoutStarted marks one fan-out fetch in flight and returns the matching release.
func FanoutStarted() func() {
	fanoutInflight.Inc()
	return fanoutInflight.Dec
}

// ObserveFanoutEntity counts one entity outcome of a fan-out.
func ObserveFanoutEntity(outcome string) {
	fanoutEntitiesTotal.WithLabelValues(outcome).Inc()
}

// ObserveView records a view duration and outcome label.
func ObserveView(view string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeNotFound:
	default:
		outcome = OutcomeError
	}
	viewRequestsTotal.WithLabelValues(view, outcome).Inc()
	viewDurationSeconds.WithLabelValues(view).Observe(clamp(duration).Seconds())
}

// ObserveRefreshCycle counts one scheduler cycle.
func ObserveRefreshCycle(outcome string) {
	if outcome != OutcomeSuccess {
		outcome = OutcomeError
	}
	refreshCyclesTotal.WithLabelValues(outcome).Inc()
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

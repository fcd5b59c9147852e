package telemetry

import "github.com/prometheus/client_golang/prometheus"

// ServiceCacheLookupsTotal counts service-cache lookups by outcome.
var ServiceCacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apigateway",
		Subsystem: "service_cache",
		Name:      "lookups_total",
		Help:      "Total number of service-cache lookups by outcome.",
	},
	[]string{"outcome"}, // hit, miss
)

// HandlerCacheLookupsTotal counts handler-cache lookups by outcome.
var HandlerCacheLookupsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apigateway",
		Subsystem: "handler_cache",
		Name:      "lookups_total",
		Help:      "Total number of handler-cache lookups by outcome.",
	},
	[]string{"outcome"}, // hit, inflight, build
)

// HandlerBuildDuration tracks how long handler construction takes.
var HandlerBuildDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "apigateway",
		Subsystem: "handler",
		Name:      "build_duration_seconds",
		Help:      "Time to build a tenant handler via the external factory.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"outcome"}, // success, error
)

// PoolRefcount reports the current refcount per dbname.
var PoolRefcount = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "apigateway",
		Subsystem: "pool",
		Name:      "refcount",
		Help:      "Current reference count of each named database pool.",
	},
	[]string{"dbname"},
)

// InvalidationsTotal counts cache invalidations by trigger.
var InvalidationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apigateway",
		Subsystem: "invalidation",
		Name:      "total",
		Help:      "Total number of cache entries invalidated, by trigger.",
	},
	[]string{"trigger"}, // notify, flush
)

// ListenerReconnectsTotal counts successful LISTEN connections,
// including the first one.
var ListenerReconnectsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "apigateway",
		Subsystem: "notify",
		Name:      "reconnects_total",
		Help:      "Total number of times the LISTEN connection was re-established.",
	},
)

// AuthOutcomesTotal counts authentication outcomes.
var AuthOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "apigateway",
		Subsystem: "auth",
		Name:      "outcomes_total",
		Help:      "Total number of authentication attempts by outcome.",
	},
	[]string{"outcome"}, // anonymous, authenticated, unauthenticated, bad_token
)

// All returns every apigateway-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		ServiceCacheLookupsTotal,
		HandlerCacheLookupsTotal,
		HandlerBuildDuration,
		PoolRefcount,
		InvalidationsTotal,
		ListenerReconnectsTotal,
		AuthOutcomesTotal,
	}
}

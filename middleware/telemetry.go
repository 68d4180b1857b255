package middleware

import (
	"context"
	"sync"
	"time"

	cowboy "github.com/MomsFriendlyDevCo/Cowboy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TelemetryConfig configures the Prometheus telemetry middleware.
type TelemetryConfig struct {
	// Namespace is the metrics namespace (default: "cowboy").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

func defaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Namespace: "cowboy",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// telemetry holds the collector set. Collectors register with Prometheus
// once per process, so the set is a singleton shared by every router that
// names this middleware.
type telemetry struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

var (
	globalTelemetry   *telemetry
	globalTelemetryMu sync.Mutex
)

func initTelemetry(config TelemetryConfig) *telemetry {
	factory := promauto.With(config.Registry)

	return &telemetry{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of requests dispatched",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "path", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Request processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method", "path"}),

		requestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_errors_total",
			Help:        "Total number of requests finalized through the error path",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "path"}),
	}
}

func init() {
	cowboy.RegisterMiddleware("telemetry", telemetryMiddleware)
}

// telemetryMiddleware observes every request passing through the chain. The
// measurements are taken in response hooks rather than around a next()
// call, because chains here run sequentially: the before-serve hook fires at
// finalization with the definitive status code, and the error hook fires
// when the dispatcher converts a middleware failure into an error response.
func telemetryMiddleware(rt *cowboy.Router, opts ...any) (cowboy.HandlerFunc, error) {
	config := defaultTelemetryConfig()
	if len(opts) > 0 {
		c, ok := opts[0].(TelemetryConfig)
		if !ok {
			return nil, &cowboy.ConfigError{Message: "telemetry option must be a TelemetryConfig"}
		}
		if c.Namespace == "" {
			c.Namespace = config.Namespace
		}
		if c.Buckets == nil {
			c.Buckets = config.Buckets
		}
		if c.Registry == nil {
			c.Registry = config.Registry
		}
		config = c
	}

	globalTelemetryMu.Lock()
	if globalTelemetry == nil {
		globalTelemetry = initTelemetry(config)
	}
	m := globalTelemetry
	globalTelemetryMu.Unlock()

	return func(ctx context.Context, req *cowboy.Request, res *cowboy.Response) (any, error) {
		begin := time.Now()
		method, path := req.Method, req.Path

		res.AfterError(func(ctx context.Context, res *cowboy.Response, err error) {
			m.requestErrors.WithLabelValues(method, path).Inc()
		})
		res.BeforeServe(func(ctx context.Context, res *cowboy.Response) error {
			m.requestDuration.WithLabelValues(method, path).Observe(time.Since(begin).Seconds())
			m.requestsTotal.WithLabelValues(method, path, statusLabel(res.StatusCode())).Inc()
			return nil
		})
		return nil, nil
	}, nil
}

// statusLabel buckets status codes by class to keep label cardinality low.
func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

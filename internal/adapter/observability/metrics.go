package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	InspectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspects_total",
			Help: "Total number of inspect requests by outcome",
		},
		[]string{"outcome"},
	)
	InspectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inspect_duration_seconds",
			Help:    "End-to-end inspect duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	BotsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_bots",
			Help: "Number of bots by state",
		},
		[]string{"state"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_queue_depth",
			Help: "Resident entries in the admission queue",
		},
	)

	// Float wear distribution of successfully inspected items.
	PaintWearHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inspect_paint_wear",
			Help:    "Distribution of inspected paint wear values [0,1]",
			Buckets: []float64{0, 0.07, 0.15, 0.38, 0.45, 1.0},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(InspectsTotal)
	prometheus.MustRegister(InspectDuration)
	prometheus.MustRegister(BotsByState)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(PaintWearHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveInspect records one completed inspect request.
func ObserveInspect(outcome string, dur time.Duration) {
	InspectsTotal.WithLabelValues(outcome).Inc()
	InspectDuration.WithLabelValues(outcome).Observe(dur.Seconds())
}

// ObservePaintWear records the wear value of a successful inspect.
func ObservePaintWear(wear float64) {
	if wear >= 0 && wear <= 1 {
		PaintWearHistogram.Observe(wear)
	}
}

// UpdateFleetGauges refreshes the fleet gauges from a stats snapshot.
func UpdateFleetGauges(states map[string]int, queueDepth int) {
	for state, n := range states {
		BotsByState.WithLabelValues(state).Set(float64(n))
	}
	QueueDepth.Set(float64(queueDepth))
}

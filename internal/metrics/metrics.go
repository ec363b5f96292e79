package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once         sync.Once
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantkeeper",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantkeeper",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	normalizeJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantkeeper",
			Subsystem: "normalize",
			Name:      "jobs_total",
			Help:      "Image normalization jobs by backend and result.",
		},
		[]string{"backend", "result"},
	)
	normalizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantkeeper",
			Subsystem: "normalize",
			Name:      "duration_seconds",
			Help:      "Image normalization latency by backend.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)
	normalizeInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plantkeeper",
			Subsystem: "normalize",
			Name:      "in_flight",
			Help:      "Image normalization jobs currently running or queued.",
		},
	)
	imageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantkeeper",
			Subsystem: "images",
			Name:      "uploads_total",
			Help:      "Image uploads by result.",
		},
		[]string{"result"},
	)
	plants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plantkeeper",
			Subsystem: "store",
			Name:      "plants",
			Help:      "Number of plants in the last saved collection.",
		},
	)
)

func init() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			normalizeJobs, normalizeDuration, normalizeInFlight,
			imageUploads, plants,
		)
	})
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveNormalize records one finished normalization job. result is one of
// "ok", "error" or "discarded".
func ObserveNormalize(backend, result string, elapsed time.Duration) {
	normalizeJobs.WithLabelValues(backend, result).Inc()
	normalizeDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func NormalizeStarted()  { normalizeInFlight.Inc() }
func NormalizeFinished() { normalizeInFlight.Dec() }

// ObserveUpload counts an image upload by result ("accepted" or "rejected").
func ObserveUpload(result string) { imageUploads.WithLabelValues(result).Inc() }

// SetPlantCount reports the collection size after a save.
func SetPlantCount(n int) { plants.Set(float64(n)) }

package pmtiles

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const metricsNamespace = "pmtiles"

var (
	buildInfoMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "buildinfo",
	}, []string{"version", "revision"})
	buildTimeMetric = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "buildtime",
	})
)

func init() {
	prometheus.MustRegister(buildInfoMetric, buildTimeMetric)
}

// SetBuildInfo publishes the program version, git revision and RFC 3339 build
// time. An unparseable date is reported as 0.
func SetBuildInfo(version, commit, date string) {
	buildInfoMetric.WithLabelValues(version, commit).Set(1)
	var built float64
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		built = float64(t.Unix())
	}
	buildTimeMetric.Set(built)
}

type metrics struct {
	requests        *prometheus.CounterVec
	responseSize    *prometheus.HistogramVec
	requestDuration *prometheus.HistogramVec

	cacheEntries   prometheus.Gauge
	cacheSizeBytes prometheus.Gauge
	cacheRequests  *prometheus.CounterVec
	archiveLoads   *prometheus.CounterVec

	bucketRequests        *prometheus.CounterVec
	bucketRequestDuration *prometheus.HistogramVec
}

// statusLabel marks requests whose client went away as "canceled".
func statusLabel(ctx context.Context, status string) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return "canceled"
	}
	return status
}

// startRequest times one HTTP request. The returned function records it once;
// later calls are ignored.
func (m *metrics) startRequest() func(ctx context.Context, archive, handler string, status, responseSize int) {
	start := time.Now()
	var once sync.Once
	return func(ctx context.Context, archive, handler string, status, responseSize int) {
		once.Do(func() {
			statusString := strconv.Itoa(status)
			if status == 404 {
				// unknown archive names would grow the label set without bound
				archive = ""
			} else {
				statusString = statusLabel(ctx, statusString)
			}
			m.requests.WithLabelValues(archive, handler, statusString).Inc()
			m.responseSize.WithLabelValues(archive, handler, statusString).Observe(float64(responseSize))
			m.requestDuration.WithLabelValues(archive, handler, statusString).Observe(time.Since(start).Seconds())
		})
	}
}

// startBucketRequest times one read from the bucket; kind is "archive" for
// header and directory loads and "tile" for tile payloads.
func (m *metrics) startBucketRequest(archive, kind string) func(ctx context.Context, status string) {
	start := time.Now()
	var once sync.Once
	return func(ctx context.Context, status string) {
		once.Do(func() {
			if status == "404" || status == "403" {
				archive = ""
			} else {
				status = statusLabel(ctx, status)
			}
			m.bucketRequests.WithLabelValues(archive, kind, status).Inc()
			m.bucketRequestDuration.WithLabelValues(archive, status).Observe(time.Since(start).Seconds())
		})
	}
}

func (m *metrics) updateCacheStats(sizeBytes, entries int) {
	m.cacheEntries.Set(float64(entries))
	m.cacheSizeBytes.Set(float64(sizeBytes))
}

func (m *metrics) cacheRequest(archive, status string) {
	m.cacheRequests.WithLabelValues(archive, status).Inc()
}

// archiveLoad counts cache fills by outcome: "loaded", "shared" when the
// caller joined a fill already in flight, or "failed".
func (m *metrics) archiveLoad(archive string, err error, shared bool) {
	result := "loaded"
	switch {
	case err != nil:
		result = "failed"
	case shared:
		result = "shared"
	}
	m.archiveLoads.WithLabelValues(archive, result).Inc()
}

// register registers metric, returning the already registered collector of
// the same description when there is one.
func register[K prometheus.Collector](logger *zap.Logger, metric K) K {
	if err := prometheus.Register(metric); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(K); ok {
				return existing
			}
		}
		logger.Warn("registering metric", zap.Error(err))
	}
	return metric
}

func createMetrics(scope string, logger *zap.Logger) *metrics {
	requestLabels := []string{"archive", "handler", "status"}
	// 1 KiB to 1 MiB
	sizeBuckets := prometheus.ExponentialBuckets(1024, 2, 11)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return register(logger, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: scope, Name: name, Help: help,
		}, labels))
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return register(logger, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: scope, Name: name, Help: help, Buckets: buckets,
		}, labels))
	}
	gauge := func(name, help string) prometheus.Gauge {
		return register(logger, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: scope, Name: name, Help: help,
		}))
	}

	return &metrics{
		requests:        counter("requests_total", "Overall number of requests to the service", requestLabels...),
		responseSize:    histogram("response_size_bytes", "Overall response size in bytes", sizeBuckets, requestLabels...),
		requestDuration: histogram("request_duration_seconds", "Overall request duration in seconds", prometheus.DefBuckets, requestLabels...),

		cacheEntries:   gauge("archive_cache_entries", "Number of archives whose header and root directory are cached"),
		cacheSizeBytes: gauge("archive_cache_size_bytes", "Approximate archive cache usage in bytes"),
		cacheRequests:  counter("archive_cache_requests", "Requests to the archive cache by archive and status (hit/miss)", "archive", "status"),
		archiveLoads:   counter("archive_loads_total", "Archive cache fills by archive and result (loaded/shared/failed)", "archive", "result"),

		bucketRequests:        counter("bucket_requests_total", "Requests to the underlying bucket", "archive", "kind", "status"),
		bucketRequestDuration: histogram("bucket_request_duration_seconds", "Request duration in seconds for individual requests to the underlying bucket", prometheus.DefBuckets, "archive", "status"),
	}
}

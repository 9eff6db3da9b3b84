package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the content engine.
type Metrics struct {
	registry                *prometheus.Registry
	packagesCreatedTotal    prometheus.Counter
	packagesGeneratedTotal  prometheus.Counter
	packagesFailedTotal     prometheus.Counter
	imagesBatchesTotal      prometheus.Counter
	storageWriteErrorsTotal prometheus.Counter
	trackedPackages         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	packagesCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_packages_created_total",
		Help: "Total number of content packages created",
	})
	packagesGeneratedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_packages_generated_total",
		Help: "Total number of packages that finished generation successfully",
	})
	packagesFailedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_packages_failed_total",
		Help: "Total number of packages that ended in a failed state",
	})
	imagesBatchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_image_batches_total",
		Help: "Total number of image batches generated",
	})
	storageWriteErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_storage_write_errors_total",
		Help: "Total number of failed sink writes",
	})
	trackedPackages := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "content_tracked_packages",
		Help: "Number of packages currently held in the in-memory registry",
	})

	registry.MustRegister(
		packagesCreatedTotal,
		packagesGeneratedTotal,
		packagesFailedTotal,
		imagesBatchesTotal,
		storageWriteErrorsTotal,
		trackedPackages,
	)

	return &Metrics{
		registry:                registry,
		packagesCreatedTotal:    packagesCreatedTotal,
		packagesGeneratedTotal:  packagesGeneratedTotal,
		packagesFailedTotal:     packagesFailedTotal,
		imagesBatchesTotal:      imagesBatchesTotal,
		storageWriteErrorsTotal: storageWriteErrorsTotal,
		trackedPackages:         trackedPackages,
	}
}

// IncPackagesCreated increments the created packages counter.
func (m *Metrics) IncPackagesCreated() {
	if m == nil {
		return
	}
	m.packagesCreatedTotal.Inc()
}

// IncPackagesGenerated increments the generated packages counter.
func (m *Metrics) IncPackagesGenerated() {
	if m == nil {
		return
	}
	m.packagesGeneratedTotal.Inc()
}

// IncPackagesFailed increments the failed packages counter.
func (m *Metrics) IncPackagesFailed() {
	if m == nil {
		return
	}
	m.packagesFailedTotal.Inc()
}

// IncImageBatches increments the image batch counter.
func (m *Metrics) IncImageBatches() {
	if m == nil {
		return
	}
	m.imagesBatchesTotal.Inc()
}

// IncStorageWriteErrors increments the failed sink write counter.
func (m *Metrics) IncStorageWriteErrors() {
	if m == nil {
		return
	}
	m.storageWriteErrorsTotal.Inc()
}

// SetTrackedPackages sets the registry size gauge.
func (m *Metrics) SetTrackedPackages(n int) {
	if m == nil {
		return
	}
	m.trackedPackages.Set(float64(n))
}

// Handler returns an http.Handler that serves the Prometheus scrape endpoint.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
